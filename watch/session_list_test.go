package watch

import (
	"errors"
	"testing"

	"github.com/robert2687/pers-code-assist/agentrole"
	"github.com/robert2687/pers-code-assist/process"
	"github.com/robert2687/pers-code-assist/session"
)

func TestSessionListWatcher_Subscribe(t *testing.T) {
	store := newTestStore(t)
	w := NewSessionListWatcher(store, &fakeTurns{})

	a := agentrole.APIIntegration
	second, _ := store.CreateSession(a)

	_, items, active, err := w.Subscribe(newRecordingNotifier(), a)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(items) != 2 || items[0].ID != second {
		t.Errorf("items = %+v, want newest first", items)
	}
	if active != second {
		t.Errorf("active = %s, want %s", active, second)
	}
	if items[0].Title != session.DefaultTitle || items[0].State != process.TurnStateIdle {
		t.Errorf("item = %+v", items[0])
	}

	if _, _, _, err := w.Subscribe(newRecordingNotifier(), "Nobody"); !errors.Is(err, agentrole.ErrUnknownAgent) {
		t.Errorf("err = %v, want ErrUnknownAgent", err)
	}
}

func TestSessionListWatcher_ScopedToAgent(t *testing.T) {
	store := newTestStore(t)
	turns := &fakeTurns{}
	w := NewSessionListWatcher(store, turns)
	w.Start()
	defer w.Stop()

	mine, others := newRecordingNotifier(), newRecordingNotifier()
	subID, _, _, _ := w.Subscribe(mine, agentrole.Default)
	w.Subscribe(others, agentrole.DigitalTwin)

	created, _ := store.CreateSession(agentrole.Default)
	n := mine.next(t, "session.list.changed")
	params := n.Params.(sessionListChangedParams)
	if params.ID != subID || params.Operation != "create" || params.Session == nil || params.Session.ID != created {
		t.Errorf("create params = %+v", params)
	}
	if params.ActiveSessionID != created {
		t.Errorf("active = %s, want %s", params.ActiveSessionID, created)
	}

	// Message traffic does not touch the list.
	store.AppendMessage(agentrole.Default, created, session.Message{Role: session.RoleUser, Content: "x"})

	store.DeleteSession(agentrole.Default, created)
	n = mine.next(t, "session.list.changed")
	params = n.Params.(sessionListChangedParams)
	if params.Operation != "delete" || params.SessionID != created || params.Session != nil {
		t.Errorf("delete params = %+v", params)
	}

	mine.none(t)
	others.none(t)
}

func TestSessionListWatcher_TurnState(t *testing.T) {
	store := newTestStore(t)
	turns := &fakeTurns{}
	w := NewSessionListWatcher(store, turns)
	w.Start()
	defer w.Stop()

	rec := newRecordingNotifier()
	w.Subscribe(rec, agentrole.Default)

	key := process.Key{Agent: agentrole.Default, SessionID: store.ActiveSessionID(agentrole.Default)}
	turns.set(key, true)
	w.OnTurnStateChange(process.StateChangeEvent{Key: key, State: process.TurnStateRunning})

	params := rec.next(t, "session.list.changed").Params.(sessionListChangedParams)
	if params.Operation != "update" || params.Session.State != process.TurnStateRunning {
		t.Errorf("params = %+v", params)
	}

	// The delivered state is read at send time.
	turns.set(key, false)
	w.OnTurnStateChange(process.StateChangeEvent{Key: key, State: process.TurnStateRunning})
	params = rec.next(t, "session.list.changed").Params.(sessionListChangedParams)
	if params.Session.State != process.TurnStateIdle {
		t.Errorf("state = %s, want idle", params.Session.State)
	}
}
