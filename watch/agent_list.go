package watch

import (
	"log/slog"
	"sync/atomic"

	"github.com/robert2687/pers-code-assist/agentrole"
)

// PersonaSource lists personas and reports prompt changes.
type PersonaSource interface {
	List() []agentrole.Persona
	AddOnChangeListener(l agentrole.OnChangeListener)
}

// AgentListWatcher notifies subscribers when a persona's prompts change.
type AgentListWatcher struct {
	*BaseWatcher
	source  PersonaSource
	eventCh chan agentrole.ChangeEvent
	dirty   atomic.Bool
}

var _ Watcher = (*AgentListWatcher)(nil)

func NewAgentListWatcher(source PersonaSource) *AgentListWatcher {
	w := &AgentListWatcher{
		BaseWatcher: NewBaseWatcher("al"),
		source:      source,
		eventCh:     make(chan agentrole.ChangeEvent, 16),
	}
	source.AddOnChangeListener(w)
	return w
}

func (w *AgentListWatcher) Start() error {
	go w.eventLoop()
	slog.Info("AgentListWatcher started")
	return nil
}

func (w *AgentListWatcher) Stop() {
	w.Cancel()
	slog.Info("AgentListWatcher stopped")
}

func (w *AgentListWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case event := <-w.eventCh:
			if w.dirty.Swap(false) {
				w.notifySync()
			} else {
				w.notifyChange(event)
			}
		}
	}
}

func (w *AgentListWatcher) notifyChange(event agentrole.ChangeEvent) {
	if !w.HasSubscriptions() {
		return
	}

	w.NotifyAll("agent.list.changed", func(sub *Subscription) any {
		persona := event.Persona
		return agentListChangedParams{
			ID:        sub.ID,
			Operation: "update",
			Agent:     &persona,
		}
	})

	slog.Debug("notified agent list change", "agent", event.Persona.Agent)
}

func (w *AgentListWatcher) notifySync() {
	if !w.HasSubscriptions() {
		return
	}

	agents := w.source.List()
	w.NotifyAll("agent.list.changed", func(sub *Subscription) any {
		return agentListChangedParams{
			ID:        sub.ID,
			Operation: "sync",
			Agents:    agents,
		}
	})

	slog.Info("sent full agent sync to subscribers after event drop")
}

// Subscribe registers a subscriber and returns the current personas.
func (w *AgentListWatcher) Subscribe(notifier Notifier) (string, []agentrole.Persona) {
	id := w.GenerateID()
	// Add subscription BEFORE listing to avoid missing events.
	w.AddSubscription(&Subscription{ID: id, Notifier: notifier})
	return id, w.source.List()
}

type agentListChangedParams struct {
	ID        string              `json:"id"`
	Operation string              `json:"operation"`
	Agent     *agentrole.Persona  `json:"agent,omitempty"`
	Agents    []agentrole.Persona `json:"agents,omitempty"`
}

// OnAgentRoleChange implements agentrole.OnChangeListener.
func (w *AgentListWatcher) OnAgentRoleChange(event agentrole.ChangeEvent) {
	select {
	case <-w.Context().Done():
		return
	case w.eventCh <- event:
	default:
		w.dirty.Store(true)
		slog.Warn("agent list change event dropped, will sync on next event", "agent", event.Persona.Agent)
	}
}
