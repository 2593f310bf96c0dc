package watch

import (
	"log/slog"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/rpc"
	"github.com/robert2687/pers-code-assist/session"
)

// TurnStateGetter reports whether a session has a turn in flight.
type TurnStateGetter interface {
	State(key process.Key) process.TurnState
}

// SessionListWatcher notifies subscribers when an agent's session list or
// active session changes. Each subscription is scoped to one agent.
// Uses a channel-based async notification pattern to avoid blocking the session
// store's mutex during network I/O.
type SessionListWatcher struct {
	*BaseWatcher
	store   *session.Store
	turns   TurnStateGetter
	eventCh chan session.ChangeEvent
	stateCh chan process.StateChangeEvent
}

var _ Watcher = (*SessionListWatcher)(nil)

func NewSessionListWatcher(store *session.Store, turns TurnStateGetter) *SessionListWatcher {
	w := &SessionListWatcher{
		BaseWatcher: NewBaseWatcher("sl"),
		store:       store,
		turns:       turns,
		eventCh:     make(chan session.ChangeEvent, 64), // Buffer to avoid blocking
		stateCh:     make(chan process.StateChangeEvent, 64),
	}
	store.AddOnChangeListener(w)
	return w
}

func (w *SessionListWatcher) Start() error {
	go w.eventLoop()
	slog.Info("SessionListWatcher started")
	return nil
}

func (w *SessionListWatcher) Stop() {
	w.Cancel()
	slog.Info("SessionListWatcher stopped")
}

func (w *SessionListWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case event := <-w.eventCh:
			w.notifyChange(event)
		case event := <-w.stateCh:
			w.notifyTurnState(event)
		}
	}
}

type sessionListChangedParams struct {
	ID              string               `json:"id"`
	Agent           agentrole.Agent      `json:"agent"`
	Operation       string               `json:"operation"`
	Session         *rpc.SessionListItem `json:"session,omitempty"`
	SessionID       string               `json:"session_id,omitempty"`
	ActiveSessionID string               `json:"active_session_id"`
}

func (w *SessionListWatcher) notifyChange(event session.ChangeEvent) {
	if !w.HasSubscriptions() {
		return
	}

	w.NotifyTopic(string(event.Agent), "session.list.changed", func(sub *Subscription) any {
		params := sessionListChangedParams{
			ID:              sub.ID,
			Agent:           event.Agent,
			Operation:       string(event.Op),
			ActiveSessionID: event.ActiveID,
		}
		if event.Op == session.OperationDelete {
			params.SessionID = event.Session.ID
		} else {
			item := w.item(event.Agent, event.Session)
			params.Session = &item
		}
		return params
	})

	slog.Debug("notified session list change", "agent", event.Agent, "operation", event.Op)
}

func (w *SessionListWatcher) notifyTurnState(event process.StateChangeEvent) {
	if !w.HasSubscriptions() {
		return
	}

	sess, ok := w.store.Session(event.Key.Agent, event.Key.SessionID)
	if !ok {
		return
	}
	active := w.store.ActiveSessionID(event.Key.Agent)

	w.NotifyTopic(string(event.Key.Agent), "session.list.changed", func(sub *Subscription) any {
		item := w.item(event.Key.Agent, sess)
		return sessionListChangedParams{
			ID:              sub.ID,
			Agent:           event.Key.Agent,
			Operation:       string(session.OperationUpdate),
			Session:         &item,
			ActiveSessionID: active,
		}
	})

	slog.Debug("notified turn state change", "agent", event.Key.Agent, "sessionId", event.Key.SessionID)
}

// item reads the current turn state rather than the one carried by the
// event, so reordered state events still converge.
func (w *SessionListWatcher) item(a agentrole.Agent, sess session.ChatSession) rpc.SessionListItem {
	return rpc.SessionListItem{
		ID:    sess.ID,
		Title: sess.Title,
		State: w.turns.State(process.Key{Agent: a, SessionID: sess.ID}),
	}
}

// Subscribe registers a subscriber for one agent and returns the current
// session list enriched with runtime state, plus the active session id.
func (w *SessionListWatcher) Subscribe(notifier Notifier, a agentrole.Agent) (string, []rpc.SessionListItem, string, error) {
	if !a.IsValid() {
		return "", nil, "", agentrole.ErrUnknownAgent
	}

	id := w.GenerateID()
	// Add subscription BEFORE reading the list to avoid missing events
	// that occur in between.
	w.AddSubscription(&Subscription{ID: id, Notifier: notifier, Topic: string(a)})

	sessions := w.store.Sessions(a)
	items := make([]rpc.SessionListItem, len(sessions))
	for i, sess := range sessions {
		items[i] = w.item(a, sess)
	}
	return id, items, w.store.ActiveSessionID(a), nil
}

// OnSessionChange implements session.OnChangeListener.
// This method is called from the session store's mutex, so it must not block.
func (w *SessionListWatcher) OnSessionChange(event session.ChangeEvent) {
	if w.Context().Err() != nil {
		return
	}
	// Message traffic does not change the list.
	if event.Op == session.OperationMessage || event.Op == session.OperationMessageRemove {
		return
	}

	select {
	case w.eventCh <- event:
	default:
		slog.Warn("session list change event dropped (buffer full)", "operation", event.Op)
	}
}

// OnTurnStateChange queues a running/idle transition for delivery.
func (w *SessionListWatcher) OnTurnStateChange(event process.StateChangeEvent) {
	if w.Context().Err() != nil {
		return
	}

	select {
	case w.stateCh <- event:
	default:
		slog.Warn("turn state event dropped (buffer full)", "sessionId", event.Key.SessionID)
	}
}
