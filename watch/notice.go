package watch

import (
	"log/slog"

	"github.com/robert2687/pers-code-assist/chat"
)

// NoticeProvider is the source of the global notice.
type NoticeProvider interface {
	Notice() chat.Notice
	SetNoticeListener(l chat.NoticeListener)
}

// NoticeWatcher broadcasts the global error banner.
type NoticeWatcher struct {
	*BaseWatcher
	source  NoticeProvider
	eventCh chan chat.Notice
}

var _ Watcher = (*NoticeWatcher)(nil)

func NewNoticeWatcher(source NoticeProvider) *NoticeWatcher {
	w := &NoticeWatcher{
		BaseWatcher: NewBaseWatcher("nt"),
		source:      source,
		eventCh:     make(chan chat.Notice, 16),
	}
	source.SetNoticeListener(w)
	return w
}

func (w *NoticeWatcher) Start() error {
	go w.eventLoop()
	slog.Info("NoticeWatcher started")
	return nil
}

func (w *NoticeWatcher) Stop() {
	w.Cancel()
	slog.Info("NoticeWatcher stopped")
}

func (w *NoticeWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case n := <-w.eventCh:
			w.NotifyAll("notice.changed", func(sub *Subscription) any {
				return noticeChangedParams{ID: sub.ID, Notice: n}
			})
		}
	}
}

type noticeChangedParams struct {
	ID     string      `json:"id"`
	Notice chat.Notice `json:"notice"`
}

func (w *NoticeWatcher) Subscribe(notifier Notifier) (string, chat.Notice) {
	id := w.GenerateID()
	w.AddSubscription(&Subscription{ID: id, Notifier: notifier})
	return id, w.source.Notice()
}

// OnNoticeChange implements chat.NoticeListener. Must not block.
func (w *NoticeWatcher) OnNoticeChange(n chat.Notice) {
	if w.Context().Err() != nil {
		return
	}

	select {
	case w.eventCh <- n:
	default:
		slog.Warn("notice change dropped (buffer full)")
	}
}
