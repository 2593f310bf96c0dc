package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/robert2687/pers-code-assist/agentrole"
)

func agentNames() []string {
	names := make([]string, len(agentrole.All))
	for i, a := range agentrole.All {
		names[i] = string(a)
	}
	return names
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("agent_list",
		mcp.WithDescription("List the chat agents with their system prompts and intro messages."),
	), s.handleAgentList)

	s.mcp.AddTool(mcp.NewTool("session_list",
		mcp.WithDescription("List an agent's chat sessions, newest first, with the active session id."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Agent name"), mcp.Enum(agentNames()...)),
	), s.handleSessionList)

	s.mcp.AddTool(mcp.NewTool("session_get",
		mcp.WithDescription("Get a chat session with all of its messages."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Agent name"), mcp.Enum(agentNames()...)),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	), s.handleSessionGet)

	s.mcp.AddTool(mcp.NewTool("session_export",
		mcp.WithDescription("Export a chat session as a text transcript or a JSON document. Defaults to the agent's active session."),
		mcp.WithString("agent", mcp.Required(), mcp.Description("Agent name"), mcp.Enum(agentNames()...)),
		mcp.WithString("session_id", mcp.Description("Session ID (default: active session)")),
		mcp.WithString("format", mcp.Description("Export format"), mcp.Enum("text", "json")),
	), s.handleSessionExport)
}
