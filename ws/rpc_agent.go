package ws

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/robert2687/pers-code-assist/rpc"
)

func (h *rpcMethodHandler) handleAgentList(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	result := rpc.AgentListResult{Agents: h.registry.List()}
	h.reply(ctx, conn, req.ID, result, "agent list")
}

func (h *rpcMethodHandler) handleAgentListSubscribe(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	id, agents := h.agentListWatcher.Subscribe(h.state.getNotifier())
	h.state.trackSubscription(id, h.agentListWatcher)
	h.log.Debug("subscribed", "watcher", "agent list", "watchId", id)

	h.reply(ctx, conn, req.ID, rpc.AgentListSubscribeResult{ID: id, Agents: agents}, "agent list subscribe")
}
