package process

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robert2687/pers-code-assist/agentrole"
)

var (
	ErrTurnInProgress = errors.New("a turn is already in progress for this session")
	ErrShuttingDown   = errors.New("manager is shutting down")
)

type TurnState string

const (
	TurnStateIdle    TurnState = "idle"    // No outstanding backend call
	TurnStateRunning TurnState = "running" // A turn is streaming or generating
)

// Key identifies the session a turn runs in.
type Key struct {
	Agent     agentrole.Agent
	SessionID string
}

type StateChangeEvent struct {
	Key   Key
	State TurnState
}

// Manager hands out one in-flight token per (agent, session). A turn holds
// the token from Begin until End.
type Manager struct {
	turnTimeout time.Duration

	turnsMu sync.Mutex
	turns   map[Key]*Turn
	closed  bool

	// Called when a session's turn state changes
	onStateChange func(StateChangeEvent)

	ctx    context.Context
	cancel context.CancelFunc
}

// Turn is an outstanding operation. Do not cache references past End.
type Turn struct {
	key         Key
	manager     *Manager
	ctx         context.Context
	cancel      context.CancelFunc
	interrupted atomic.Bool
	ended       atomic.Bool
}

// NewManager creates a manager. A positive turnTimeout bounds every turn.
func NewManager(turnTimeout time.Duration) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		turnTimeout: turnTimeout,
		turns:       make(map[Key]*Turn),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (m *Manager) SetOnStateChange(fn func(StateChangeEvent)) {
	m.turnsMu.Lock()
	defer m.turnsMu.Unlock()
	m.onStateChange = fn
}

func (m *Manager) emitStateChange(key Key, state TurnState) {
	m.turnsMu.Lock()
	fn := m.onStateChange
	m.turnsMu.Unlock()

	if fn != nil {
		fn(StateChangeEvent{Key: key, State: state})
	}
}

// Begin acquires the token for key. The turn's context derives from the
// manager, not from the caller, so it outlives the request that started it.
func (m *Manager) Begin(key Key) (*Turn, error) {
	m.turnsMu.Lock()
	if m.closed {
		m.turnsMu.Unlock()
		return nil, ErrShuttingDown
	}
	if _, busy := m.turns[key]; busy {
		m.turnsMu.Unlock()
		return nil, ErrTurnInProgress
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if m.turnTimeout > 0 {
		ctx, cancel = context.WithTimeout(m.ctx, m.turnTimeout)
	} else {
		ctx, cancel = context.WithCancel(m.ctx)
	}
	turn := &Turn{key: key, manager: m, ctx: ctx, cancel: cancel}
	m.turns[key] = turn
	m.turnsMu.Unlock()

	slog.Debug("turn started", "agent", key.Agent, "sessionId", key.SessionID)
	m.emitStateChange(key, TurnStateRunning)
	return turn, nil
}

// State reports whether a turn is outstanding for key.
func (m *Manager) State(key Key) TurnState {
	m.turnsMu.Lock()
	defer m.turnsMu.Unlock()
	if _, ok := m.turns[key]; ok {
		return TurnStateRunning
	}
	return TurnStateIdle
}

// RunningCount returns the number of outstanding turns.
func (m *Manager) RunningCount() int {
	m.turnsMu.Lock()
	defer m.turnsMu.Unlock()
	return len(m.turns)
}

// Interrupt cancels the outstanding turn for key. Returns false when no
// turn is running.
func (m *Manager) Interrupt(key Key) bool {
	m.turnsMu.Lock()
	turn := m.turns[key]
	m.turnsMu.Unlock()

	if turn == nil {
		return false
	}
	turn.interrupted.Store(true)
	turn.cancel()
	slog.Info("turn interrupted", "agent", key.Agent, "sessionId", key.SessionID)
	return true
}

// Shutdown cancels every outstanding turn and rejects new ones.
func (m *Manager) Shutdown() {
	m.turnsMu.Lock()
	m.closed = true
	n := len(m.turns)
	m.turnsMu.Unlock()

	m.cancel()
	slog.Info("turn manager shutdown complete", "turnsCancelled", n)
}

func (t *Turn) Key() Key { return t.key }

// Context is cancelled on Interrupt, Shutdown, timeout or End.
func (t *Turn) Context() context.Context { return t.ctx }

// Interrupted reports whether the turn was stopped on request, either by
// Interrupt or by manager shutdown.
func (t *Turn) Interrupted() bool {
	if t.interrupted.Load() {
		return true
	}
	return errors.Is(t.ctx.Err(), context.Canceled) && t.manager.ctx.Err() != nil
}

// End releases the token. Safe to call more than once.
func (t *Turn) End() {
	if !t.ended.CompareAndSwap(false, true) {
		return
	}
	t.cancel()

	m := t.manager
	m.turnsMu.Lock()
	if m.turns[t.key] == t {
		delete(m.turns, t.key)
	}
	m.turnsMu.Unlock()

	slog.Debug("turn ended", "agent", t.key.Agent, "sessionId", t.key.SessionID)
	m.emitStateChange(t.key, TurnStateIdle)
}
