package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/kvstore"
	"github.com/robert2687/pers-code-assist/session"
)

type testServer struct {
	*Server
	// chat mutates the same key-value store the server reads.
	chat *session.Store
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	kv := kvstore.NewMemoryStore()
	registry := agentrole.NewRegistry("")
	s := NewServer(kv, registry, "test")
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return testServer{Server: s, chat: session.NewStore(kv, registry)}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

func toolError(t *testing.T, res *mcp.CallToolResult) ToolError {
	t.Helper()
	if !res.IsError {
		t.Fatalf("expected error result, got %s", resultText(t, res))
	}
	var te ToolError
	if err := json.Unmarshal([]byte(resultText(t, res)), &te); err != nil {
		t.Fatalf("error payload: %v", err)
	}
	return te
}

func TestAgentList(t *testing.T) {
	s := newTestServer(t)

	res, err := s.handleAgentList(context.Background(), callRequest(nil))
	if err != nil {
		t.Fatal(err)
	}
	var personas []agentrole.Persona
	if err := json.Unmarshal([]byte(resultText(t, res)), &personas); err != nil {
		t.Fatal(err)
	}
	if len(personas) != len(agentrole.All) {
		t.Fatalf("got %d personas, want %d", len(personas), len(agentrole.All))
	}
	for i, p := range personas {
		if p.Agent != agentrole.All[i] {
			t.Errorf("persona %d = %q, want %q", i, p.Agent, agentrole.All[i])
		}
		if p.SystemPrompt == "" {
			t.Errorf("%s: empty system prompt", p.Agent)
		}
	}
}

func TestSessionList(t *testing.T) {
	s := newTestServer(t)
	a := agentrole.SystemsArchitect
	id, err := s.chat.CreateSession(a)
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.handleSessionList(context.Background(), callRequest(map[string]any{"agent": string(a)}))
	if err != nil {
		t.Fatal(err)
	}
	var got []sessionSummary
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d sessions, want 2", len(got))
	}
	if got[0].ID != id || !got[0].Active {
		t.Errorf("head = %+v, want active %s", got[0], id)
	}
	if got[1].Active {
		t.Error("older session reported active")
	}
	if got[0].MessageCount != 1 || got[0].Title != session.DefaultTitle {
		t.Errorf("head = %+v", got[0])
	}
}

func TestSessionList_SeesLaterChanges(t *testing.T) {
	s := newTestServer(t)
	a := agentrole.DigitalTwin
	req := callRequest(map[string]any{"agent": string(a)})

	res, _ := s.handleSessionList(context.Background(), req)
	before := resultText(t, res)

	s.chat.CreateSession(a)

	res, _ = s.handleSessionList(context.Background(), req)
	if resultText(t, res) == before {
		t.Error("session list did not reflect the new session")
	}
}

func TestSessionList_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		args map[string]any
		code ErrorCode
	}{
		{"missing agent", map[string]any{}, ErrValidation},
		{"unknown agent", map[string]any{"agent": "Nobody"}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleSessionList(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if te := toolError(t, res); te.Code != tt.code {
				t.Errorf("code = %q, want %q", te.Code, tt.code)
			}
		})
	}
}

func TestSessionGet(t *testing.T) {
	s := newTestServer(t)
	a := agentrole.BehavioralModeler
	id := s.chat.ActiveSessionID(a)
	s.chat.AppendMessage(a, id, session.Message{Role: session.RoleUser, Content: "hello"})

	res, err := s.handleSessionGet(context.Background(), callRequest(map[string]any{
		"agent": string(a), "session_id": id,
	}))
	if err != nil {
		t.Fatal(err)
	}
	var sess session.ChatSession
	if err := json.Unmarshal([]byte(resultText(t, res)), &sess); err != nil {
		t.Fatal(err)
	}
	if sess.ID != id || len(sess.Messages) != 2 || sess.Messages[1].Content != "hello" {
		t.Errorf("got %+v", sess)
	}
}

func TestSessionGet_NotFound(t *testing.T) {
	s := newTestServer(t)

	res, _ := s.handleSessionGet(context.Background(), callRequest(map[string]any{
		"agent": string(agentrole.Default), "session_id": "missing",
	}))
	te := toolError(t, res)
	if te.Code != ErrNotFound || te.Details["session_id"] != "missing" || te.Details["agent"] != "Default" {
		t.Errorf("got %+v", te)
	}

	res, _ = s.handleSessionGet(context.Background(), callRequest(map[string]any{
		"agent": string(agentrole.Default),
	}))
	if te := toolError(t, res); te.Code != ErrValidation || te.Details["argument"] != "session_id" {
		t.Errorf("got %+v, want validation of session_id", te)
	}
}

func TestUnknownAgent_ListsValidNames(t *testing.T) {
	s := newTestServer(t)

	res, _ := s.handleSessionList(context.Background(), callRequest(map[string]any{"agent": "Nobody"}))
	te := toolError(t, res)
	valid, ok := te.Details["valid_agents"].([]any)
	if !ok || len(valid) != len(agentrole.All) {
		t.Fatalf("valid_agents = %v", te.Details["valid_agents"])
	}
	if valid[0] != string(agentrole.Default) {
		t.Errorf("valid_agents[0] = %v", valid[0])
	}
}

func TestSessionExport_DefaultsToActiveText(t *testing.T) {
	s := newTestServer(t)
	a := agentrole.APIIntegration
	id := s.chat.ActiveSessionID(a)
	s.chat.AppendMessage(a, id, session.Message{Role: session.RoleUser, Content: "ping"})

	res, err := s.handleSessionExport(context.Background(), callRequest(map[string]any{"agent": string(a)}))
	if err != nil {
		t.Fatal(err)
	}
	text := resultText(t, res)
	for _, want := range []string{
		"Chat Export: New Chat\n",
		"Agent: API Integration\n",
		"Exported: 2025-03-01 12:00:00\n",
		"User:\nping\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("transcript missing %q:\n%s", want, text)
		}
	}
}

func TestSessionExport_JSON(t *testing.T) {
	s := newTestServer(t)
	a := agentrole.Default
	id := s.chat.ActiveSessionID(a)

	res, err := s.handleSessionExport(context.Background(), callRequest(map[string]any{
		"agent": string(a), "session_id": id, "format": "json",
	}))
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		Title        string `json:"title"`
		Agent        string `json:"agent"`
		MessageCount int    `json:"messageCount"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Title != session.DefaultTitle || doc.Agent != string(a) || doc.MessageCount != 1 {
		t.Errorf("got %+v", doc)
	}
}

func TestSessionExport_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		args map[string]any
		code ErrorCode
	}{
		{"bad format", map[string]any{"agent": "Default", "format": "pdf"}, ErrValidation},
		{"unknown session", map[string]any{"agent": "Default", "session_id": "nope"}, ErrNotFound},
		{"unknown agent", map[string]any{"agent": "Ghost"}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.handleSessionExport(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			if te := toolError(t, res); te.Code != tt.code {
				t.Errorf("code = %q, want %q", te.Code, tt.code)
			}
		})
	}
}
