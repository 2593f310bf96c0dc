package watch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Notification is one event pushed to a subscriber. Params always carry
// the subscription id under "id".
type Notification struct {
	Method string
	Params any
}

// Notifier delivers notifications to one client connection.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Watcher is the part of every watcher a connection needs for cleanup.
type Watcher interface {
	Unsubscribe(id string)
}

type Subscription struct {
	ID       string
	Notifier Notifier
	// Topic narrows delivery; empty means every event of the watcher.
	Topic string
}

// BaseWatcher provides common subscription management for all watcher types.
type BaseWatcher struct {
	idPrefix string

	subMu         sync.RWMutex
	subscriptions map[string]*Subscription

	ctx    context.Context
	cancel context.CancelFunc
}

func NewBaseWatcher(idPrefix string) *BaseWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &BaseWatcher{
		idPrefix:      idPrefix,
		subscriptions: make(map[string]*Subscription),
		ctx:           ctx,
		cancel:        cancel,
	}
}

func (b *BaseWatcher) GenerateID() string {
	return generateIDWithPrefix(b.idPrefix)
}

func generateIDWithPrefix(prefix string) string {
	return prefix + "_" + uuid.Must(uuid.NewV7()).String()
}

func (b *BaseWatcher) AddSubscription(sub *Subscription) {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	b.subscriptions[sub.ID] = sub
}

func (b *BaseWatcher) RemoveSubscription(id string) *Subscription {
	b.subMu.Lock()
	defer b.subMu.Unlock()

	sub, ok := b.subscriptions[id]
	if !ok {
		return nil
	}

	delete(b.subscriptions, id)
	return sub
}

// subscriptionsFor returns the subscriptions of topic. An empty topic
// selects all of them.
func (b *BaseWatcher) subscriptionsFor(topic string) []*Subscription {
	b.subMu.RLock()
	defer b.subMu.RUnlock()

	subs := make([]*Subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		if topic == "" || sub.Topic == topic {
			subs = append(subs, sub)
		}
	}
	return subs
}

func (b *BaseWatcher) NotifyAll(method string, makeParams func(sub *Subscription) any) int {
	return b.NotifyTopic("", method, makeParams)
}

// NotifyTopic sends one notification to every subscriber of topic.
func (b *BaseWatcher) NotifyTopic(topic, method string, makeParams func(sub *Subscription) any) int {
	subs := b.subscriptionsFor(topic)
	for _, sub := range subs {
		n := Notification{Method: method, Params: makeParams(sub)}
		if err := sub.Notifier.Notify(context.Background(), n); err != nil {
			slog.Debug("failed to notify subscriber",
				"id", sub.ID,
				"method", method,
				"error", err)
		}
	}
	return len(subs)
}

func (b *BaseWatcher) Context() context.Context { return b.ctx }
func (b *BaseWatcher) Cancel()                  { b.cancel() }

func (b *BaseWatcher) HasSubscriptions() bool {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	return len(b.subscriptions) > 0
}

func (b *BaseWatcher) Unsubscribe(id string) {
	b.RemoveSubscription(id)
}
