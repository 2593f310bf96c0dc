package watch

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/session"
)

// ChatMessagesWatcher streams the messages of one (agent, session) to its
// subscribers: every append, in-place update and removal, plus turn state.
//
// Events wait in one ordered queue. Consecutive updates of the same message
// collapse into the newest snapshot, so a slow subscriber falls behind on
// intermediate fragments but always receives the final content. Removals,
// deletions and turn state changes are never reordered.
type ChatMessagesWatcher struct {
	*BaseWatcher
	store *session.Store
	turns TurnStateGetter

	queueMu sync.Mutex
	queue   []pendingEvent
	// Position in queue of the pending update per message, reset by every
	// event that must not be overtaken.
	latest map[messageKey]int
	wake   chan struct{}
}

type messageKey struct {
	topic string
	index int
}

// pendingEvent is either a store change or, when turn is set, a turn state
// transition.
type pendingEvent struct {
	change session.ChangeEvent
	turn   *process.StateChangeEvent
}

var _ Watcher = (*ChatMessagesWatcher)(nil)

func NewChatMessagesWatcher(store *session.Store, turns TurnStateGetter) *ChatMessagesWatcher {
	w := &ChatMessagesWatcher{
		BaseWatcher: NewBaseWatcher("cm"),
		store:       store,
		turns:       turns,
		latest:      make(map[messageKey]int),
		wake:        make(chan struct{}, 1),
	}
	store.AddOnChangeListener(w)
	return w
}

func (w *ChatMessagesWatcher) Start() error {
	go w.messageLoop()
	slog.Info("ChatMessagesWatcher started")
	return nil
}

func (w *ChatMessagesWatcher) Stop() {
	w.Cancel()
	slog.Info("ChatMessagesWatcher stopped")
}

func chatTopic(a agentrole.Agent, sessionID string) string {
	return string(a) + "/" + sessionID
}

// OnSessionChange implements session.OnChangeListener.
// Called under the session store's mutex, must not block.
func (w *ChatMessagesWatcher) OnSessionChange(event session.ChangeEvent) {
	if w.Context().Err() != nil {
		return
	}
	switch event.Op {
	case session.OperationMessage, session.OperationMessageRemove, session.OperationDelete:
	default:
		return
	}
	w.enqueue(pendingEvent{change: event})
}

// OnTurnStateChange queues a running/idle transition for delivery after
// every message event queued before it.
func (w *ChatMessagesWatcher) OnTurnStateChange(event process.StateChangeEvent) {
	if w.Context().Err() != nil {
		return
	}
	w.enqueue(pendingEvent{turn: &event})
}

func (w *ChatMessagesWatcher) enqueue(ev pendingEvent) {
	w.queueMu.Lock()
	if ev.turn == nil && ev.change.Op == session.OperationMessage {
		key := messageKey{chatTopic(ev.change.Agent, ev.change.Session.ID), ev.change.Index}
		if pos, ok := w.latest[key]; ok {
			w.queue[pos] = ev
		} else {
			w.latest[key] = len(w.queue)
			w.queue = append(w.queue, ev)
		}
	} else {
		w.queue = append(w.queue, ev)
		clear(w.latest)
	}
	w.queueMu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// takeQueue hands the pending events to the loop in arrival order.
func (w *ChatMessagesWatcher) takeQueue() []pendingEvent {
	w.queueMu.Lock()
	defer w.queueMu.Unlock()
	batch := w.queue
	w.queue = nil
	clear(w.latest)
	return batch
}

func (w *ChatMessagesWatcher) messageLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case <-w.wake:
			for _, ev := range w.takeQueue() {
				if ev.turn != nil {
					w.notifyState(*ev.turn)
				} else {
					w.notifyMessage(ev.change)
				}
			}
		}
	}
}

type messageUpdatedPayload struct {
	Agent     agentrole.Agent `json:"agent"`
	SessionID string          `json:"session_id"`
	Index     int             `json:"index"`
	Message   session.Message `json:"message"`
}

type messageRemovedPayload struct {
	Agent     agentrole.Agent `json:"agent"`
	SessionID string          `json:"session_id"`
	Index     int             `json:"index"`
}

type sessionDeletedPayload struct {
	Agent     agentrole.Agent `json:"agent"`
	SessionID string          `json:"session_id"`
}

type stateChangedPayload struct {
	Agent     agentrole.Agent   `json:"agent"`
	SessionID string            `json:"session_id"`
	State     process.TurnState `json:"state"`
}

func (w *ChatMessagesWatcher) notifyMessage(event session.ChangeEvent) {
	var method string
	var payload any
	switch event.Op {
	case session.OperationMessage:
		method = "chat.message.updated"
		payload = messageUpdatedPayload{event.Agent, event.Session.ID, event.Index, event.Message}
	case session.OperationMessageRemove:
		method = "chat.message.removed"
		payload = messageRemovedPayload{event.Agent, event.Session.ID, event.Index}
	case session.OperationDelete:
		method = "chat.session.deleted"
		payload = sessionDeletedPayload{event.Agent, event.Session.ID}
	default:
		return
	}

	w.NotifyTopic(chatTopic(event.Agent, event.Session.ID), method, func(sub *Subscription) any {
		return mergeIDIntoParams(sub.ID, payload)
	})
}

func (w *ChatMessagesWatcher) notifyState(event process.StateChangeEvent) {
	topic := chatTopic(event.Key.Agent, event.Key.SessionID)
	payload := stateChangedPayload{
		Agent:     event.Key.Agent,
		SessionID: event.Key.SessionID,
		State:     w.turns.State(event.Key),
	}
	w.NotifyTopic(topic, "chat.state.changed", func(sub *Subscription) any {
		return mergeIDIntoParams(sub.ID, payload)
	})
}

// mergeIDIntoParams flattens params into a JSON object carrying the
// subscription id alongside the payload fields.
func mergeIDIntoParams(id string, params any) map[string]any {
	out := map[string]any{}
	if params != nil {
		data, err := json.Marshal(params)
		if err == nil {
			if err := json.Unmarshal(data, &out); err != nil || out == nil {
				out = map[string]any{}
			}
		}
	}
	out["id"] = id
	return out
}

// Subscribe registers a subscriber for one session and returns the current
// messages with the session's turn state.
func (w *ChatMessagesWatcher) Subscribe(notifier Notifier, a agentrole.Agent, sessionID string) (string, []session.Message, process.TurnState, error) {
	if _, ok := w.store.Session(a, sessionID); !ok {
		return "", nil, "", session.ErrSessionNotFound
	}

	id := w.GenerateID()
	// Register BEFORE reading messages to avoid loss. A duplicate update of
	// the same index is harmless; a missing one is not.
	w.AddSubscription(&Subscription{ID: id, Notifier: notifier, Topic: chatTopic(a, sessionID)})

	sess, ok := w.store.Session(a, sessionID)
	if !ok {
		w.Unsubscribe(id)
		return "", nil, "", session.ErrSessionNotFound
	}
	return id, sess.Messages, w.turns.State(process.Key{Agent: a, SessionID: sessionID}), nil
}
