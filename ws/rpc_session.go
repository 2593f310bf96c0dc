package ws

import (
	"context"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/robert2687/pers-code-assist/export"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/rpc"
)

func (h *rpcMethodHandler) handleSessionListSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionListSubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if !h.validAgent(ctx, conn, req, params.Agent) {
		return
	}

	id, sessions, active, err := h.sessionListWatcher.Subscribe(h.state.getNotifier(), params.Agent)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to subscribe")
		return
	}
	h.state.trackSubscription(id, h.sessionListWatcher)
	h.log.Debug("subscribed", "watcher", "session list", "watchId", id, "agent", params.Agent)

	result := rpc.SessionListSubscribeResult{
		ID:              id,
		Sessions:        sessions,
		ActiveSessionID: active,
	}
	h.reply(ctx, conn, req.ID, result, "session list subscribe")
}

func (h *rpcMethodHandler) handleSessionCreate(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionCreateParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if !h.validAgent(ctx, conn, req, params.Agent) {
		return
	}

	sessionID, err := h.store.CreateSession(params.Agent)
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to create session")
		return
	}
	sess, _ := h.store.Session(params.Agent, sessionID)

	h.log.Info("session created", "agent", params.Agent, "sessionId", sessionID)

	result := rpc.SessionListItem{
		ID:    sess.ID,
		Title: sess.Title,
		State: h.turns.State(process.Key{Agent: params.Agent, SessionID: sessionID}),
	}
	h.reply(ctx, conn, req.ID, result, "session create")
}

func (h *rpcMethodHandler) handleSessionSelect(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionSelectParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if !h.validAgent(ctx, conn, req, params.Agent) {
		return
	}

	// Unknown ids are a no-op.
	h.store.SelectSession(params.Agent, params.SessionID)
	h.reply(ctx, conn, req.ID, struct{}{}, "session select")
}

func (h *rpcMethodHandler) handleSessionDelete(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionDeleteParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if !h.validAgent(ctx, conn, req, params.Agent) {
		return
	}

	// Stop any turn still writing into the session.
	h.turns.Interrupt(process.Key{Agent: params.Agent, SessionID: params.SessionID})
	h.store.DeleteSession(params.Agent, params.SessionID)

	h.log.Info("session deleted", "agent", params.Agent, "sessionId", params.SessionID)
	h.reply(ctx, conn, req.ID, struct{}{}, "session delete")
}

func (h *rpcMethodHandler) handleSessionExport(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SessionExportParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if !h.validAgent(ctx, conn, req, params.Agent) {
		return
	}
	format, err := export.ParseFormat(string(params.Format))
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
		return
	}

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = h.store.ActiveSessionID(params.Agent)
	}
	sess, ok := h.store.Session(params.Agent, sessionID)
	if !ok {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "session not found")
		return
	}

	body, err := export.Render(format, sess, params.Agent, time.Now())
	if err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to export session")
		return
	}

	result := rpc.SessionExportResult{
		Filename:    export.Filename(sess.Title, params.Agent, format),
		ContentType: format.ContentType(),
		Content:     string(body),
	}
	h.reply(ctx, conn, req.ID, result, "session export")
}
