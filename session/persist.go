package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robert2687/pers-code-assist/agentrole"
)

// Persistence keys.
const (
	KeySessions = "chatSessions"
	KeyActive   = "activeSessionIds"
)

var errNoState = errors.New("no persisted state")

// persist writes both keys in one atomic Put.
// Caller must hold s.mu.
func (s *Store) persist() {
	sessions, err := json.Marshal(s.sessions)
	if err != nil {
		slog.Error("failed to encode chat sessions", "error", err)
		return
	}
	active, err := json.Marshal(s.active)
	if err != nil {
		slog.Error("failed to encode active sessions", "error", err)
		return
	}
	if err := s.kv.Put(map[string][]byte{
		KeySessions: sessions,
		KeyActive:   active,
	}); err != nil {
		slog.Error("failed to persist chat state", "error", err)
	}
}

func (s *Store) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, active, err := s.readState()
	if err != nil {
		if errors.Is(err, errNoState) {
			slog.Info("no saved chat state, starting fresh")
		} else {
			slog.Warn("saved chat state is unreadable, resetting", "error", err)
		}
		for _, a := range agentrole.All {
			sess := s.newSession(a)
			s.sessions[a] = []ChatSession{sess}
			s.active[a] = sess.ID
		}
		s.persist()
		return
	}

	s.sessions = sessions
	s.active = active
	if s.heal() {
		s.persist()
	}
}

// readState decodes the persisted blobs. Any structural problem is
// reported as an error, which triggers a full reset.
func (s *Store) readState() (map[agentrole.Agent][]ChatSession, map[agentrole.Agent]string, error) {
	rawSessions, found, err := s.kv.Get(KeySessions)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", KeySessions, err)
	}
	if !found {
		return nil, nil, errNoState
	}

	var sessions map[agentrole.Agent][]ChatSession
	if err := json.Unmarshal(rawSessions, &sessions); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", KeySessions, err)
	}
	if sessions == nil {
		return nil, nil, fmt.Errorf("decode %s: not an object", KeySessions)
	}
	for a, list := range sessions {
		if !a.IsValid() {
			slog.Warn("dropping sessions of unknown agent", "agent", a)
			delete(sessions, a)
			continue
		}
		for _, sess := range list {
			if err := validate(sess); err != nil {
				return nil, nil, fmt.Errorf("agent %q: %w", a, err)
			}
		}
	}

	active := make(map[agentrole.Agent]string)
	rawActive, found, err := s.kv.Get(KeyActive)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", KeyActive, err)
	}
	if found {
		if err := json.Unmarshal(rawActive, &active); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", KeyActive, err)
		}
		if active == nil {
			active = make(map[agentrole.Agent]string)
		}
	}
	return sessions, active, nil
}

func validate(sess ChatSession) error {
	if sess.ID == "" {
		return errors.New("session without id")
	}
	for i, m := range sess.Messages {
		if !m.Role.IsValid() {
			return fmt.Errorf("session %s message %d: invalid role %q", sess.ID, i, m.Role)
		}
	}
	return nil
}

// heal restores the per-agent invariants on loaded state: every agent has a
// session and an active id that resolves. Reports whether anything changed.
// Caller must hold s.mu.
func (s *Store) heal() bool {
	changed := false
	for a := range s.active {
		if !a.IsValid() {
			delete(s.active, a)
			changed = true
		}
	}
	for _, a := range agentrole.All {
		if len(s.sessions[a]) == 0 {
			sess := s.newSession(a)
			s.sessions[a] = []ChatSession{sess}
			s.active[a] = sess.ID
			slog.Info("restored missing session list", "agent", a)
			changed = true
			continue
		}
		if s.findIndex(a, s.active[a]) < 0 {
			s.active[a] = s.sessions[a][0].ID
			changed = true
		}
		for i := range s.sessions[a] {
			if s.sessions[a][i].Title == "" {
				s.sessions[a][i].Title = DefaultTitle
				changed = true
			}
		}
	}
	return changed
}
