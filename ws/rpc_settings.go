package ws

import (
	"context"
	"errors"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/robert2687/pers-code-assist/rpc"
	"github.com/robert2687/pers-code-assist/settings"
)

func (h *rpcMethodHandler) handleSettingsSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, current := h.settingsWatcher.Subscribe(h.state.getNotifier())
	h.state.trackSubscription(id, h.settingsWatcher)
	h.log.Debug("subscribed to settings", "watchId", id)

	h.reply(ctx, conn, req.ID, rpc.SettingsSubscribeResult{ID: id, Settings: current}, "settings subscribe")
}

func (h *rpcMethodHandler) handleSettingsUpdate(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	var params rpc.SettingsUpdateParams
	if err := unmarshalParams(req, &params); err != nil {
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, "invalid params")
		return
	}

	if err := h.settingsStore.Update(params.Settings); err != nil {
		if errors.Is(err, settings.ErrInvalid) {
			h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInvalidParams, err.Error())
			return
		}
		h.replyError(ctx, conn, req.ID, jsonrpc2.CodeInternalError, "failed to update settings")
		return
	}

	h.reply(ctx, conn, req.ID, struct{}{}, "settings update")
}

func (h *rpcMethodHandler) handleNoticeSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, notice := h.noticeWatcher.Subscribe(h.state.getNotifier())
	h.state.trackSubscription(id, h.noticeWatcher)
	h.log.Debug("subscribed to notice", "watchId", id)

	h.reply(ctx, conn, req.ID, rpc.NoticeSubscribeResult{ID: id, Notice: notice}, "notice subscribe")
}

func (h *rpcMethodHandler) handleNoticeDismiss(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.chat.DismissNotice()
	h.reply(ctx, conn, req.ID, struct{}{}, "notice dismiss")
}
