package ws

import (
	"context"
	"errors"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/chat"
	"github.com/robert2687/pers-code-assist/logger"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/rpc"
	"github.com/robert2687/pers-code-assist/session"
)

// CodeTurnInProgress is returned when a session already has a turn in
// flight.
const CodeTurnInProgress int64 = -32001

func (h *rpcMethodHandler) handleChatMessagesSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.ChatMessagesSubscribeParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if !h.validAgent(ctx, conn, req, params.Agent) {
		return
	}

	log := h.log.With("agent", params.Agent, "sessionId", params.SessionID)

	id, messages, state, err := h.chatMessagesWatcher.Subscribe(h.state.getNotifier(), params.Agent, params.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "session not found")
			return
		}
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, err.Error())
		return
	}
	h.state.trackSubscription(id, h.chatMessagesWatcher)

	result := rpc.ChatMessagesSubscribeResult{
		ID:       id,
		Messages: messages,
		State:    state,
	}
	h.reply(ctx, conn, req.ID, result, "chat messages subscribe")
	log.Info("subscribed to chat messages", "subscriptionId", id, "state", state)
}

func (h *rpcMethodHandler) handleMessage(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.MessageParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	log := h.log.With("agent", params.Agent, "sessionId", params.SessionID)

	sessionID, err := h.chat.Dispatch(params.Agent, params.SessionID, params.Content)
	if err != nil {
		h.replyChatError(ctx, conn, req, err)
		return
	}

	log.Info("received prompt", "length", len(params.Content), "preview", logger.Truncate(params.Content, 40))
	h.reply(ctx, conn, req.ID, rpc.MessageResult{SessionID: sessionID}, "message")
}

func (h *rpcMethodHandler) handleInterrupt(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.InterruptParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}
	if !h.validAgent(ctx, conn, req, params.Agent) {
		return
	}

	interrupted := h.chat.Interrupt(params.Agent, params.SessionID)
	h.log.Info("interrupt requested", "agent", params.Agent, "sessionId", params.SessionID, "interrupted", interrupted)

	h.reply(ctx, conn, req.ID, rpc.InterruptResult{Interrupted: interrupted}, "interrupt")
}

func (h *rpcMethodHandler) replyChatError(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, agentrole.ErrUnknownAgent),
		errors.Is(err, session.ErrSessionNotFound):
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
	case errors.Is(err, process.ErrTurnInProgress):
		h.replyError(ctx, conn, req.ID, CodeTurnInProgress, err.Error())
	default:
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, err.Error())
	}
}
