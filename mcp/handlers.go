package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/export"
)

func (s *Server) handleAgentList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.registry.List())
}

type sessionSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
	Active       bool   `json:"active"`
}

func (s *Server) handleSessionList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, errResult := requireAgent(req)
	if errResult != nil {
		return errResult, nil
	}

	store := s.loadStore()
	active := store.ActiveSessionID(a)
	sessions := store.Sessions(a)
	out := make([]sessionSummary, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionSummary{
			ID:           sess.ID,
			Title:        sess.Title,
			MessageCount: len(sess.Messages),
			Active:       sess.ID == active,
		}
	}
	return jsonResult(out)
}

func (s *Server) handleSessionGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, errResult := requireAgent(req)
	if errResult != nil {
		return errResult, nil
	}
	id, err := req.RequireString("session_id")
	if err != nil {
		return InvalidArgument("session_id", "session_id is required"), nil
	}

	sess, found := s.loadStore().Session(a, id)
	if !found {
		return SessionNotFound(a, id), nil
	}
	return jsonResult(sess)
}

func (s *Server) handleSessionExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, errResult := requireAgent(req)
	if errResult != nil {
		return errResult, nil
	}
	format, err := export.ParseFormat(req.GetString("format", ""))
	if err != nil {
		return InvalidArgument("format", err.Error()), nil
	}

	store := s.loadStore()
	id := req.GetString("session_id", "")
	if id == "" {
		id = store.ActiveSessionID(a)
	}
	sess, found := store.Session(a, id)
	if !found {
		return SessionNotFound(a, id), nil
	}

	body, err := export.Render(format, sess, a, s.now())
	if err != nil {
		return InternalError(err), nil
	}
	return mcp.NewToolResultText(string(body)), nil
}

func requireAgent(req mcp.CallToolRequest) (agentrole.Agent, *mcp.CallToolResult) {
	name, err := req.RequireString("agent")
	if err != nil {
		return "", InvalidArgument("agent", "agent is required")
	}
	a, err := agentrole.Parse(name)
	if err != nil {
		return "", UnknownAgent(name)
	}
	return a, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}
