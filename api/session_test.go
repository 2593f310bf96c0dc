package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/export"
	"github.com/robert2687/pers-code-assist/kvstore"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/session"
)

type recordingTurns struct {
	interrupted []process.Key
}

func (r *recordingTurns) Interrupt(key process.Key) bool {
	r.interrupted = append(r.interrupted, key)
	return false
}

func newTestMux(t *testing.T) (*http.ServeMux, *session.Store, *recordingTurns) {
	t.Helper()
	registry := agentrole.NewRegistry("")
	store := session.NewStore(kvstore.NewMemoryStore(), registry)
	turns := &recordingTurns{}

	handler := NewSessionHandler(registry, store, turns)
	handler.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	mux := http.NewServeMux()
	handler.Register(mux)
	return mux, store, turns
}

func agentPath(a agentrole.Agent) string {
	return "/api/agents/" + url.PathEscape(string(a))
}

func TestSessionHandler_ListAgents(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp struct {
		Agents []agentrole.Persona `json:"agents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Agents) != len(agentrole.All) {
		t.Errorf("expected %d agents, got %d", len(agentrole.All), len(resp.Agents))
	}
}

func TestSessionHandler_List(t *testing.T) {
	mux, store, _ := newTestMux(t)
	second, _ := store.CreateSession(agentrole.SystemsArchitect)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, agentPath(agentrole.SystemsArchitect)+"/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp struct {
		Sessions []sessionSummary `json:"sessions"`
		Active   string           `json:"active_session_id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(resp.Sessions))
	}
	if resp.Sessions[0].ID != second || resp.Active != second {
		t.Errorf("expected newest session %s first and active, got %+v", second, resp)
	}
	if resp.Sessions[0].MessageCount != 1 {
		t.Errorf("expected intro message only, got %d", resp.Sessions[0].MessageCount)
	}
}

func TestSessionHandler_UnknownAgent(t *testing.T) {
	mux, _, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents/Nobody/sessions", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestSessionHandler_Create(t *testing.T) {
	mux, store, _ := newTestMux(t)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, agentPath(agentrole.DigitalTwin)+"/sessions", nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	var sess session.ChatSession
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, err := uuid.Parse(sess.ID); err != nil {
		t.Errorf("expected valid UUID, got %q: %v", sess.ID, err)
	}
	if sess.Title != session.DefaultTitle {
		t.Errorf("expected title %q, got %q", session.DefaultTitle, sess.Title)
	}
	if store.ActiveSessionID(agentrole.DigitalTwin) != sess.ID {
		t.Error("expected the new session to be active")
	}
}

func TestSessionHandler_Get(t *testing.T) {
	mux, store, _ := newTestMux(t)
	a := agentrole.Default
	id := store.ActiveSessionID(a)
	store.AppendMessage(a, id, session.Message{Role: session.RoleUser, Content: "hello"})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, agentPath(a)+"/sessions/"+id, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var sess session.ChatSession
	json.NewDecoder(rec.Body).Decode(&sess)
	if len(sess.Messages) != 2 || sess.Messages[1].Content != "hello" {
		t.Errorf("unexpected messages %+v", sess.Messages)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, agentPath(agentrole.BehavioralModeler)+"/sessions/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another agent's session, got %d", rec.Code)
	}
}

func TestSessionHandler_Delete(t *testing.T) {
	mux, store, turns := newTestMux(t)
	a := agentrole.APIIntegration
	id := store.ActiveSessionID(a)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, agentPath(a)+"/sessions/"+id, nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if len(turns.interrupted) != 1 || turns.interrupted[0].SessionID != id {
		t.Errorf("expected the turn to be interrupted, got %+v", turns.interrupted)
	}

	// Deleting the only session leaves a fresh replacement.
	sessions := store.Sessions(a)
	if len(sessions) != 1 || sessions[0].ID == id {
		t.Errorf("expected a replacement session, got %+v", sessions)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, agentPath(a)+"/sessions/non-existent-id", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestSessionHandler_Export(t *testing.T) {
	mux, store, _ := newTestMux(t)
	a := agentrole.SystemsArchitect
	id := store.ActiveSessionID(a)
	store.RenameSession(a, id, "Blog Design")

	tests := []struct {
		query           string
		wantStatus      int
		wantType        string
		wantDisposition string
	}{
		{"", http.StatusOK, "text/plain; charset=utf-8", `attachment; filename="Blog_Design_Systems_Architect.txt"`},
		{"?format=json", http.StatusOK, "application/json", `attachment; filename="Blog_Design_Systems_Architect.json"`},
		{"?format=pdf", http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, agentPath(a)+"/sessions/"+id+"/export"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if got := rec.Header().Get("Content-Type"); got != tt.wantType {
				t.Errorf("Content-Type = %q, want %q", got, tt.wantType)
			}
			if got := rec.Header().Get("Content-Disposition"); got != tt.wantDisposition {
				t.Errorf("Content-Disposition = %q, want %q", got, tt.wantDisposition)
			}
		})
	}

	// The JSON body carries the session and the export time.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, agentPath(a)+"/sessions/"+id+"/export?format=json", nil))
	var doc export.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON export: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Blog Design") {
		t.Error("export lacks the session title")
	}
}
