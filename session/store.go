package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/kvstore"
)

// Store is the in-memory owner of every agent's sessions. All mutations
// persist the full state through the key-value store; persistence failures
// are logged and never returned.
//
// Message slices are copy-on-write: a slice handed out by a read method is
// never modified afterwards.
type Store struct {
	mu        sync.Mutex
	kv        kvstore.Store
	intros    IntroSource
	sessions  map[agentrole.Agent][]ChatSession
	active    map[agentrole.Agent]string
	listeners []OnChangeListener
}

// NewStore loads persisted state from kv, resetting or healing it as
// needed so that every agent has at least one session.
func NewStore(kv kvstore.Store, intros IntroSource) *Store {
	s := &Store{
		kv:       kv,
		intros:   intros,
		sessions: make(map[agentrole.Agent][]ChatSession),
		active:   make(map[agentrole.Agent]string),
	}
	s.load()
	return s
}

func (s *Store) AddOnChangeListener(listener OnChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// Caller must hold s.mu.
func (s *Store) notify(event ChangeEvent) {
	event.ActiveID = s.active[event.Agent]
	for _, l := range s.listeners {
		l.OnSessionChange(event)
	}
}

// --- Read operations ---

// Sessions returns the agent's sessions, most recently created first.
func (s *Store) Sessions(agent agentrole.Agent) []ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.sessions[agent]
	out := make([]ChatSession, len(list))
	copy(out, list)
	return out
}

func (s *Store) Session(agent agentrole.Agent, sessionID string) (ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findIndex(agent, sessionID)
	if idx < 0 {
		return ChatSession{}, false
	}
	return s.sessions[agent][idx], true
}

func (s *Store) ActiveSessionID(agent agentrole.Agent) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[agent]
}

func (s *Store) ActiveSession(agent agentrole.Agent) (ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findIndex(agent, s.active[agent])
	if idx < 0 {
		return ChatSession{}, false
	}
	return s.sessions[agent][idx], true
}

// Snapshot is a point-in-time copy of the whole store.
type Snapshot struct {
	Sessions map[agentrole.Agent][]ChatSession
	Active   map[agentrole.Agent]string
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Sessions: make(map[agentrole.Agent][]ChatSession, len(s.sessions)),
		Active:   make(map[agentrole.Agent]string, len(s.active)),
	}
	for a, list := range s.sessions {
		out := make([]ChatSession, len(list))
		copy(out, list)
		snap.Sessions[a] = out
	}
	for a, id := range s.active {
		snap.Active[a] = id
	}
	return snap
}

// --- Session operations ---

// CreateSession prepends a new session seeded with the agent's intro
// message and makes it active.
func (s *Store) CreateSession(agent agentrole.Agent) (string, error) {
	if !agent.IsValid() {
		return "", agentrole.ErrUnknownAgent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.createLocked(agent)
	s.persist()
	return sess.ID, nil
}

// Caller must hold s.mu.
func (s *Store) createLocked(agent agentrole.Agent) ChatSession {
	sess := s.newSession(agent)
	list := make([]ChatSession, 0, len(s.sessions[agent])+1)
	list = append(list, sess)
	list = append(list, s.sessions[agent]...)
	s.sessions[agent] = list
	s.active[agent] = sess.ID

	s.notify(ChangeEvent{Op: OperationCreate, Agent: agent, Session: meta(sess)})
	return sess
}

func (s *Store) newSession(agent agentrole.Agent) ChatSession {
	return ChatSession{
		ID:    uuid.Must(uuid.NewV7()).String(),
		Title: DefaultTitle,
		Messages: []Message{{
			Role:    RoleModel,
			Content: s.intros.IntroMessage(agent),
			Agent:   agent,
		}},
	}
}

// SelectSession makes sessionID the agent's active session. Unknown ids are
// ignored.
func (s *Store) SelectSession(agent agentrole.Agent, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findIndex(agent, sessionID)
	if idx < 0 {
		slog.Debug("select of unknown session ignored", "agent", agent, "sessionId", sessionID)
		return
	}
	if s.active[agent] == sessionID {
		return
	}
	s.active[agent] = sessionID
	s.notify(ChangeEvent{Op: OperationSelect, Agent: agent, Session: meta(s.sessions[agent][idx])})
	s.persist()
}

// DeleteSession removes a session. Deleting the active session activates
// the new head of the list; deleting the last one creates a replacement in
// the same critical section, announced before the deletion.
func (s *Store) DeleteSession(agent agentrole.Agent, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findIndex(agent, sessionID)
	if idx < 0 {
		return
	}

	old := s.sessions[agent]
	deleted := old[idx]
	list := make([]ChatSession, 0, len(old)-1)
	list = append(list, old[:idx]...)
	list = append(list, old[idx+1:]...)
	s.sessions[agent] = list

	if len(list) == 0 {
		// The replacement goes in first so no event reports an agent
		// without an active session.
		s.createLocked(agent)
		s.notify(ChangeEvent{Op: OperationDelete, Agent: agent, Session: meta(deleted)})
		s.persist()
		return
	}

	if s.active[agent] == sessionID {
		s.active[agent] = list[0].ID
	}
	s.notify(ChangeEvent{Op: OperationDelete, Agent: agent, Session: meta(deleted)})
	s.persist()
}

// RenameSession sets the session title.
func (s *Store) RenameSession(agent agentrole.Agent, sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findIndex(agent, sessionID)
	if idx < 0 {
		return ErrSessionNotFound
	}
	sess := &s.sessions[agent][idx]
	sess.Title = title

	s.notify(ChangeEvent{Op: OperationUpdate, Agent: agent, Session: meta(*sess)})
	s.persist()
	return nil
}

// --- Message operations ---

// AppendMessage appends msg to the session. A missing session is logged and
// reported as ErrSessionNotFound; the store is left unchanged.
func (s *Store) AppendMessage(agent agentrole.Agent, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findIndex(agent, sessionID)
	if idx < 0 {
		slog.Warn("append to missing session ignored", "agent", agent, "sessionId", sessionID)
		return ErrSessionNotFound
	}
	sess := &s.sessions[agent][idx]

	msgs := make([]Message, len(sess.Messages), len(sess.Messages)+1)
	copy(msgs, sess.Messages)
	msgs = append(msgs, msg)
	sess.Messages = msgs

	s.notify(ChangeEvent{Op: OperationMessage, Agent: agent, Session: meta(*sess), Index: len(msgs) - 1, Message: msg})
	s.persist()
	return nil
}

// MutateLastMessage replaces the last message with transform(last), only
// when the last message is a Model message.
func (s *Store) MutateLastMessage(agent agentrole.Agent, sessionID string, transform func(Message) Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.streamingTarget(agent, sessionID)
	if err != nil {
		return err
	}
	last := len(sess.Messages) - 1
	updated := transform(sess.Messages[last])
	s.setLast(sess, updated)

	s.notify(ChangeEvent{Op: OperationMessage, Agent: agent, Session: meta(*sess), Index: last, Message: updated})
	s.persist()
	return nil
}

// ReplaceLastMessage swaps the trailing Model message for msg in one step.
func (s *Store) ReplaceLastMessage(agent agentrole.Agent, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.streamingTarget(agent, sessionID)
	if err != nil {
		return err
	}
	s.setLast(sess, msg)

	s.notify(ChangeEvent{Op: OperationMessage, Agent: agent, Session: meta(*sess), Index: len(sess.Messages) - 1, Message: msg})
	s.persist()
	return nil
}

// RemoveLastMessage drops the trailing Model message.
func (s *Store) RemoveLastMessage(agent agentrole.Agent, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.streamingTarget(agent, sessionID)
	if err != nil {
		return err
	}
	last := len(sess.Messages) - 1
	removed := sess.Messages[last]
	msgs := make([]Message, last)
	copy(msgs, sess.Messages[:last])
	sess.Messages = msgs

	s.notify(ChangeEvent{Op: OperationMessageRemove, Agent: agent, Session: meta(*sess), Index: last, Message: removed})
	s.persist()
	return nil
}

// Caller must hold s.mu.
func (s *Store) streamingTarget(agent agentrole.Agent, sessionID string) (*ChatSession, error) {
	idx := s.findIndex(agent, sessionID)
	if idx < 0 {
		return nil, ErrSessionNotFound
	}
	sess := &s.sessions[agent][idx]
	if n := len(sess.Messages); n == 0 || sess.Messages[n-1].Role != RoleModel {
		return nil, ErrNotStreamingTarget
	}
	return sess, nil
}

// Caller must hold s.mu.
func (s *Store) setLast(sess *ChatSession, msg Message) {
	msgs := make([]Message, len(sess.Messages))
	copy(msgs, sess.Messages)
	msgs[len(msgs)-1] = msg
	sess.Messages = msgs
}

// --- Helpers ---

// Caller must hold s.mu.
func (s *Store) findIndex(agent agentrole.Agent, sessionID string) int {
	if sessionID == "" {
		return -1
	}
	for i, sess := range s.sessions[agent] {
		if sess.ID == sessionID {
			return i
		}
	}
	return -1
}

func meta(sess ChatSession) ChatSession {
	return ChatSession{ID: sess.ID, Title: sess.Title}
}
