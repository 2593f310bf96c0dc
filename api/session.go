// Package api serves the REST endpoints for reading and exporting sessions.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/export"
	"github.com/robert2687/pers-code-assist/logger"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/session"
)

// PersonaLister lists the available agents.
type PersonaLister interface {
	List() []agentrole.Persona
}

// TurnInterrupter stops a turn before its session is deleted.
type TurnInterrupter interface {
	Interrupt(key process.Key) bool
}

type SessionHandler struct {
	agents PersonaLister
	store  *session.Store
	turns  TurnInterrupter
	now    func() time.Time
}

func NewSessionHandler(agents PersonaLister, store *session.Store, turns TurnInterrupter) *SessionHandler {
	return &SessionHandler{agents: agents, store: store, turns: turns, now: time.Now}
}

func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/agents", h.HandleListAgents)
	mux.HandleFunc("GET /api/agents/{agent}/sessions", h.HandleList)
	mux.HandleFunc("POST /api/agents/{agent}/sessions", h.HandleCreate)
	mux.HandleFunc("GET /api/agents/{agent}/sessions/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /api/agents/{agent}/sessions/{id}", h.HandleDelete)
	mux.HandleFunc("GET /api/agents/{agent}/sessions/{id}/export", h.HandleExport)
}

type sessionSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
}

func (h *SessionHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": h.agents.List()})
}

func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	a, ok := agentFromPath(w, r)
	if !ok {
		return
	}

	sessions := h.store.Sessions(a)
	items := make([]sessionSummary, len(sessions))
	for i, sess := range sessions {
		items[i] = sessionSummary{ID: sess.ID, Title: sess.Title, MessageCount: len(sess.Messages)}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions":          items,
		"active_session_id": h.store.ActiveSessionID(a),
	})
}

func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	a, ok := agentFromPath(w, r)
	if !ok {
		return
	}

	id, err := h.store.CreateSession(a)
	if err != nil {
		logger.NewRequestLogger().Error("failed to create session", "agent", a, "error", err)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	sess, _ := h.store.Session(a, id)
	writeJSON(w, http.StatusCreated, sess)
}

func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	a, ok := agentFromPath(w, r)
	if !ok {
		return
	}
	sess, found := h.store.Session(a, r.PathValue("id"))
	if !found {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	a, ok := agentFromPath(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if _, found := h.store.Session(a, id); !found {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if h.turns != nil {
		h.turns.Interrupt(process.Key{Agent: a, SessionID: id})
	}
	h.store.DeleteSession(a, id)
	w.WriteHeader(http.StatusNoContent)
}

// HandleExport streams the session as a file download.
func (h *SessionHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	a, ok := agentFromPath(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess, found := h.store.Session(a, r.PathValue("id"))
	if !found {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	body, err := export.Render(format, sess, a, h.now())
	if err != nil {
		logger.NewRequestLogger().Error("failed to render export", "sessionId", sess.ID, "error", err)
		http.Error(w, "Failed to export session", http.StatusInternalServerError)
		return
	}

	filename := export.Filename(sess.Title, a, format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func agentFromPath(w http.ResponseWriter, r *http.Request) (agentrole.Agent, bool) {
	a, err := agentrole.Parse(r.PathValue("agent"))
	if err != nil {
		http.Error(w, "Unknown agent", http.StatusNotFound)
		return "", false
	}
	return a, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}
