// Package rpc defines JSON-RPC 2.0 wire format types for WebSocket communication.
// These types represent the params and result structures for all RPC methods.
package rpc

import (
	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/chat"
	"github.com/robert2687/pers-code-assist/export"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/session"
	"github.com/robert2687/pers-code-assist/settings"
)

// Client → Server

type AuthParams struct {
	Token string `json:"token"`
}

type AuthResult struct {
	Version string `json:"version"`
	// BackendAvailable is false when no API key is configured.
	BackendAvailable bool `json:"backend_available"`
}

type MessageParams struct {
	Agent     agentrole.Agent `json:"agent"`
	SessionID string          `json:"session_id,omitempty"` // empty = active session
	Content   string          `json:"content"`
}

type MessageResult struct {
	SessionID string `json:"session_id"`
}

type InterruptParams struct {
	Agent     agentrole.Agent `json:"agent"`
	SessionID string          `json:"session_id,omitempty"`
}

type InterruptResult struct {
	Interrupted bool `json:"interrupted"`
}

// Agent namespace

type AgentListResult struct {
	Agents []agentrole.Persona `json:"agents"`
}

type AgentListSubscribeResult struct {
	ID     string              `json:"id"`
	Agents []agentrole.Persona `json:"agents"`
}

// Session management

type SessionListItem struct {
	ID    string            `json:"id"`
	Title string            `json:"title"`
	State process.TurnState `json:"state"`
}

type SessionListSubscribeParams struct {
	Agent agentrole.Agent `json:"agent"`
}

type SessionListSubscribeResult struct {
	ID              string            `json:"id"`
	Sessions        []SessionListItem `json:"sessions"`
	ActiveSessionID string            `json:"active_session_id"`
}

type SessionCreateParams struct {
	Agent agentrole.Agent `json:"agent"`
}

type SessionSelectParams struct {
	Agent     agentrole.Agent `json:"agent"`
	SessionID string          `json:"session_id"`
}

type SessionDeleteParams struct {
	Agent     agentrole.Agent `json:"agent"`
	SessionID string          `json:"session_id"`
}

type SessionExportParams struct {
	Agent     agentrole.Agent `json:"agent"`
	SessionID string          `json:"session_id,omitempty"`
	Format    export.Format   `json:"format"`
}

type SessionExportResult struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// Chat messages

type ChatMessagesSubscribeParams struct {
	Agent     agentrole.Agent `json:"agent"`
	SessionID string          `json:"session_id"`
}

type ChatMessagesSubscribeResult struct {
	ID       string            `json:"id"`
	Messages []session.Message `json:"messages"`
	State    process.TurnState `json:"state"`
}

// Notice

type NoticeSubscribeResult struct {
	ID     string      `json:"id"`
	Notice chat.Notice `json:"notice"`
}

// Settings

type SettingsSubscribeResult struct {
	ID       string            `json:"id"`
	Settings settings.Settings `json:"settings"`
}

type SettingsUpdateParams struct {
	Settings settings.Settings `json:"settings"`
}
