package chatclient

import (
	"sync"
	"time"
)

// DefaultNoticeTTL is how long a non-blocking notice stays visible.
const DefaultNoticeTTL = 3 * time.Second

// Severity classifies a notice.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityError
	// SeverityBlocking notices stay until dismissed or replaced.
	SeverityBlocking
)

// Notice is a user-facing message.
type Notice struct {
	Message  string
	Severity Severity
}

// Notifier holds at most one visible notice. Showing a notice replaces the
// current one; non-blocking notices dismiss themselves after the TTL.
type Notifier struct {
	ttl      time.Duration
	onChange func(*Notice)

	mu      sync.Mutex
	current *Notice
	seq     uint64
	timer   *time.Timer
}

// NewNotifier builds a notifier. onChange, if set, receives the visible
// notice after every change, or nil once it is gone.
func NewNotifier(ttl time.Duration, onChange func(*Notice)) *Notifier {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	return &Notifier{ttl: ttl, onChange: onChange}
}

// Show replaces the visible notice.
func (n *Notifier) Show(notice Notice) {
	n.mu.Lock()
	n.seq++
	seq := n.seq
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.current = &notice
	if notice.Severity != SeverityBlocking {
		n.timer = time.AfterFunc(n.ttl, func() { n.expire(seq) })
	}
	n.mu.Unlock()

	n.changed(&notice)
}

// Current returns the visible notice.
func (n *Notifier) Current() (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil {
		return Notice{}, false
	}
	return *n.current, true
}

// Dismiss hides the visible notice.
func (n *Notifier) Dismiss() {
	n.mu.Lock()
	n.seq++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	visible := n.current != nil
	n.current = nil
	n.mu.Unlock()

	if visible {
		n.changed(nil)
	}
}

func (n *Notifier) expire(seq uint64) {
	n.mu.Lock()
	if seq != n.seq || n.current == nil {
		n.mu.Unlock()
		return
	}
	n.current = nil
	n.timer = nil
	n.mu.Unlock()

	n.changed(nil)
}

func (n *Notifier) changed(notice *Notice) {
	if n.onChange == nil {
		return
	}
	if notice != nil {
		copied := *notice
		notice = &copied
	}
	n.onChange(notice)
}
