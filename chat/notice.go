package chat

import "sync"

// Notice is the global error banner shown above all sessions.
type Notice struct {
	Message string `json:"message"`
	// Persistent notices survive successful turns.
	Persistent bool `json:"persistent"`
}

// NoticeListener is called while the notice mutex is held, so it must not
// block.
type NoticeListener interface {
	OnNoticeChange(n Notice)
}

type noticeBoard struct {
	mu       sync.Mutex
	current  Notice
	listener NoticeListener
}

func (b *noticeBoard) get() Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

func (b *noticeBoard) setListener(l NoticeListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listener = l
}

// set replaces a transient notice. A persistent notice is never replaced
// by a transient one.
func (b *noticeBoard) set(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current.Persistent && !n.Persistent {
		return
	}
	if b.current == n {
		return
	}
	b.current = n
	if b.listener != nil {
		b.listener.OnNoticeChange(n)
	}
}

// clearTransient removes the notice unless it is persistent.
func (b *noticeBoard) clearTransient() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current.Persistent || b.current.Message == "" {
		return
	}
	b.current = Notice{}
	if b.listener != nil {
		b.listener.OnNoticeChange(b.current)
	}
}
