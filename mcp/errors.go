package mcp

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/robert2687/pers-code-assist/agentrole"
)

// ErrorCode classifies a failed tool call for the calling model.
type ErrorCode string

const (
	ErrNotFound   ErrorCode = "not_found"
	ErrValidation ErrorCode = "validation"
	ErrInternal   ErrorCode = "internal"
)

// ToolError is the JSON body of an error result.
type ToolError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e ToolError) ToResult() *mcp.CallToolResult {
	data, _ := json.Marshal(e)
	return mcp.NewToolResultError(string(data))
}

// UnknownAgent lists the valid names so the caller can retry.
func UnknownAgent(name string) *mcp.CallToolResult {
	return ToolError{
		Code:    ErrNotFound,
		Message: "unknown agent " + name,
		Details: map[string]any{"agent": name, "valid_agents": agentNames()},
	}.ToResult()
}

func SessionNotFound(a agentrole.Agent, sessionID string) *mcp.CallToolResult {
	return ToolError{
		Code:    ErrNotFound,
		Message: "session not found",
		Details: map[string]any{"agent": string(a), "session_id": sessionID},
	}.ToResult()
}

// InvalidArgument reports a missing or malformed tool argument.
func InvalidArgument(arg, msg string) *mcp.CallToolResult {
	return ToolError{
		Code:    ErrValidation,
		Message: msg,
		Details: map[string]any{"argument": arg},
	}.ToResult()
}

func InternalError(err error) *mcp.CallToolResult {
	return ToolError{
		Code:    ErrInternal,
		Message: err.Error(),
	}.ToResult()
}
