// Package ws serves the chat client's JSON-RPC 2.0 API over WebSocket.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sourcegraph/jsonrpc2"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/chat"
	"github.com/robert2687/pers-code-assist/logger"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/rpc"
	"github.com/robert2687/pers-code-assist/session"
	"github.com/robert2687/pers-code-assist/settings"
	"github.com/robert2687/pers-code-assist/watch"
)

type Config struct {
	// Token, when set, must be presented by an "auth" request before any
	// other method.
	Token    string
	Version  string
	DevMode  bool
	Registry *agentrole.Registry
	Store    *session.Store
	Chat     *chat.Client
	Turns    *process.Manager
	Settings *settings.Store
}

// RPCHandler handles JSON-RPC 2.0 over WebSocket.
type RPCHandler struct {
	token         string
	version       string
	devMode       bool
	registry      *agentrole.Registry
	store         *session.Store
	chat          *chat.Client
	turns         *process.Manager
	settingsStore *settings.Store

	agentListWatcher    *watch.AgentListWatcher
	sessionListWatcher  *watch.SessionListWatcher
	chatMessagesWatcher *watch.ChatMessagesWatcher
	noticeWatcher       *watch.NoticeWatcher
	settingsWatcher     *watch.SettingsWatcher
}

// NewRPCHandler wires the watchers to their sources and starts them.
func NewRPCHandler(cfg Config) *RPCHandler {
	h := &RPCHandler{
		token:         cfg.Token,
		version:       cfg.Version,
		devMode:       cfg.DevMode,
		registry:      cfg.Registry,
		store:         cfg.Store,
		chat:          cfg.Chat,
		turns:         cfg.Turns,
		settingsStore: cfg.Settings,

		agentListWatcher:    watch.NewAgentListWatcher(cfg.Registry),
		sessionListWatcher:  watch.NewSessionListWatcher(cfg.Store, cfg.Turns),
		chatMessagesWatcher: watch.NewChatMessagesWatcher(cfg.Store, cfg.Turns),
		noticeWatcher:       watch.NewNoticeWatcher(cfg.Chat),
		settingsWatcher:     watch.NewSettingsWatcher(cfg.Settings),
	}

	cfg.Turns.SetOnStateChange(func(e process.StateChangeEvent) {
		h.sessionListWatcher.OnTurnStateChange(e)
		h.chatMessagesWatcher.OnTurnStateChange(e)
	})

	h.agentListWatcher.Start()
	h.sessionListWatcher.Start()
	h.chatMessagesWatcher.Start()
	h.noticeWatcher.Start()
	h.settingsWatcher.Start()
	return h
}

// Stop stops the RPC handler and releases resources.
func (h *RPCHandler) Stop() {
	h.agentListWatcher.Stop()
	h.sessionListWatcher.Stop()
	h.chatMessagesWatcher.Stop()
	h.noticeWatcher.Stop()
	h.settingsWatcher.Stop()
}

func (h *RPCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.devMode,
	})
	if err != nil {
		slog.Error("failed to accept websocket", "error", err)
		return
	}

	h.HandleStream(r.Context(), newWebSocketStream(conn))
}

// HandleStream serves one connection until it closes.
func (h *RPCHandler) HandleStream(ctx context.Context, stream jsonrpc2.ObjectStream) {
	connID := uuid.Must(uuid.NewV7()).String()
	log := slog.With("connId", connID)
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "websocket connection crashed", "connId", connID)
		}
	}()

	log.Info("new connection")

	state := &rpcConnState{
		connID:        connID,
		subscriptions: make(map[string]watch.Watcher),
	}
	handler := &rpcMethodHandler{
		RPCHandler:    h,
		state:         state,
		log:           log,
		authenticated: h.token == "",
	}

	rpcConn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.AsyncHandler(handler))
	state.setConn(rpcConn)

	<-rpcConn.DisconnectNotify()

	state.cleanup()
	log.Info("connection closed")
}

// rpcConnState tracks per-connection state.
type rpcConnState struct {
	mu            sync.Mutex
	connID        string
	notifier      *JSONRPCNotifier
	subscriptions map[string]watch.Watcher // subID → watcher for cleanup
}

func (s *rpcConnState) setConn(conn *jsonrpc2.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = &JSONRPCNotifier{conn: conn}
}

func (s *rpcConnState) getNotifier() watch.Notifier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifier
}

func (s *rpcConnState) trackSubscription(id string, watcher watch.Watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscriptions == nil {
		// Connection already gone.
		watcher.Unsubscribe(id)
		return
	}
	s.subscriptions[id] = watcher
}

func (s *rpcConnState) untrackSubscription(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, id)
}

func (s *rpcConnState) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, watcher := range s.subscriptions {
		watcher.Unsubscribe(id)
	}
	s.subscriptions = nil
}

type rpcMethodHandler struct {
	*RPCHandler
	state         *rpcConnState
	log           *slog.Logger
	authenticated bool
	authMu        sync.Mutex
}

func (h *rpcMethodHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(r, "rpc handler panic", "method", req.Method, "connId", h.state.connID)
		}
	}()

	h.log.Debug("received request", "method", req.Method, "id", req.ID)

	if req.Method == "auth" {
		h.handleAuth(ctx, conn, req)
		return
	}
	if !h.isAuthenticated() {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "first request must be auth")
		conn.Close()
		return
	}

	switch req.Method {
	// agent namespace
	case "agent.list":
		h.handleAgentList(ctx, conn, req)
	case "agent.list.subscribe":
		h.handleAgentListSubscribe(ctx, conn, req)
	case "agent.list.unsubscribe":
		h.handleWatcherUnsubscribe(ctx, conn, req, h.agentListWatcher, "agent list")
	// session namespace
	case "session.list.subscribe":
		h.handleSessionListSubscribe(ctx, conn, req)
	case "session.list.unsubscribe":
		h.handleWatcherUnsubscribe(ctx, conn, req, h.sessionListWatcher, "session list")
	case "session.create":
		h.handleSessionCreate(ctx, conn, req)
	case "session.select":
		h.handleSessionSelect(ctx, conn, req)
	case "session.delete":
		h.handleSessionDelete(ctx, conn, req)
	case "session.export":
		h.handleSessionExport(ctx, conn, req)
	// chat namespace
	case "chat.messages.subscribe":
		h.handleChatMessagesSubscribe(ctx, conn, req)
	case "chat.messages.unsubscribe":
		h.handleWatcherUnsubscribe(ctx, conn, req, h.chatMessagesWatcher, "chat messages")
	case "chat.message":
		h.handleMessage(ctx, conn, req)
	case "chat.interrupt":
		h.handleInterrupt(ctx, conn, req)
	// notice namespace
	case "notice.subscribe":
		h.handleNoticeSubscribe(ctx, conn, req)
	case "notice.unsubscribe":
		h.handleWatcherUnsubscribe(ctx, conn, req, h.noticeWatcher, "notice")
	case "notice.dismiss":
		h.handleNoticeDismiss(ctx, conn, req)
	// settings namespace
	case "settings.subscribe":
		h.handleSettingsSubscribe(ctx, conn, req)
	case "settings.unsubscribe":
		h.handleWatcherUnsubscribe(ctx, conn, req, h.settingsWatcher, "settings")
	case "settings.update":
		h.handleSettingsUpdate(ctx, conn, req)
	default:
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (h *rpcMethodHandler) isAuthenticated() bool {
	h.authMu.Lock()
	defer h.authMu.Unlock()
	return h.authenticated
}

func (h *rpcMethodHandler) setAuthenticated() {
	h.authMu.Lock()
	h.authenticated = true
	h.authMu.Unlock()
}

func (h *rpcMethodHandler) handleAuth(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	if h.token != "" {
		var params rpc.AuthParams
		if err := unmarshalParams(req, &params); err != nil {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
			conn.Close()
			return
		}
		if subtle.ConstantTimeCompare([]byte(params.Token), []byte(h.token)) != 1 {
			h.log.Warn("invalid auth token")
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidRequest, "invalid token")
			conn.Close()
			return
		}
	}

	h.setAuthenticated()
	h.log.Info("authenticated")

	result := rpc.AuthResult{
		Version:          h.version,
		BackendAvailable: h.chat.Available(),
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		h.log.Error("failed to send auth response", "error", err)
	}
}

func (h *rpcMethodHandler) replyError(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, code int64, message string) {
	err := &jsonrpc2.Error{
		Code:    code,
		Message: message,
	}
	if replyErr := conn.ReplyWithError(ctx, id, err); replyErr != nil {
		h.log.Error("failed to send error response", "error", replyErr)
	}
}

func (h *rpcMethodHandler) reply(ctx context.Context, conn *jsonrpc2.Conn, id jsonrpc2.ID, result any, what string) {
	if err := conn.Reply(ctx, id, result); err != nil {
		h.log.Error("failed to send "+what+" response", "error", err)
	}
}

func unmarshalParams(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return errors.New("params required")
	}
	return json.Unmarshal(*req.Params, v)
}

// validAgent replies with an error and returns false for unknown agents.
func (h *rpcMethodHandler) validAgent(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, a agentrole.Agent) bool {
	if a.IsValid() {
		return true
	}
	h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "unknown agent: "+string(a))
	return false
}

type unsubscribeParams struct {
	ID string `json:"id"`
}

func (h *rpcMethodHandler) handleWatcherUnsubscribe(
	ctx context.Context,
	conn *jsonrpc2.Conn,
	req *jsonrpc2.Request,
	watcher watch.Watcher,
	logName string,
) {
	var params unsubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if params.ID == "" {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "id is required")
		return
	}

	watcher.Unsubscribe(params.ID)
	h.state.untrackSubscription(params.ID)
	h.log.Debug("unsubscribed", "watcher", logName, "watchId", params.ID)

	h.reply(ctx, conn, req.ID, struct{}{}, logName+" unsubscribe")
}

// JSONRPCNotifier adapts jsonrpc2.Conn to the watch.Notifier interface.
type JSONRPCNotifier struct {
	conn *jsonrpc2.Conn
}

var _ watch.Notifier = (*JSONRPCNotifier)(nil)

func (n *JSONRPCNotifier) Notify(ctx context.Context, notif watch.Notification) error {
	return n.conn.Notify(ctx, notif.Method, notif.Params)
}

// webSocketStream adapts coder/websocket to jsonrpc2.ObjectStream.
type webSocketStream struct {
	conn *websocket.Conn
	mu   sync.Mutex // protects writes
}

func newWebSocketStream(conn *websocket.Conn) *webSocketStream {
	return &webSocketStream{conn: conn}
}

func (s *webSocketStream) ReadObject(v any) error {
	_, data, err := s.conn.Read(context.Background())
	if err != nil {
		// Treat normal close frames as EOF so jsonrpc2 shuts down gracefully
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return io.EOF
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *webSocketStream) WriteObject(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(context.Background(), websocket.MessageText, data)
}

func (s *webSocketStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

var _ jsonrpc2.ObjectStream = (*webSocketStream)(nil)
