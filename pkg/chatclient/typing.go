package chatclient

import (
	"sync"
	"time"
)

// DefaultTypingIdle is how long after the last keystroke typing ends.
const DefaultTypingIdle = 2 * time.Second

// TypingDebouncer turns keystrokes into typing transitions. Typing starts the
// moment the input goes from empty to non-empty and ends once no keystroke
// has arrived for the idle period. Only one idle timer is ever live.
type TypingDebouncer struct {
	idle    time.Duration
	publish func(bool)

	mu    sync.Mutex
	last  string
	seq   uint64
	timer *time.Timer
}

// NewTypingDebouncer builds a debouncer calling publish on every transition.
func NewTypingDebouncer(idle time.Duration, publish func(bool)) *TypingDebouncer {
	if idle <= 0 {
		idle = DefaultTypingIdle
	}
	return &TypingDebouncer{idle: idle, publish: publish}
}

// Keystroke records the current input text.
func (d *TypingDebouncer) Keystroke(text string) {
	d.mu.Lock()
	started := d.last == "" && text != ""
	d.last = text

	d.seq++
	seq := d.seq
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.idle, func() { d.fire(seq) })
	d.mu.Unlock()

	if started {
		d.publish(true)
	}
}

// Stop cancels the idle timer and, if one was pending, ends typing now.
func (d *TypingDebouncer) Stop() {
	d.mu.Lock()
	pending := d.timer != nil && d.timer.Stop()
	d.seq++
	d.timer = nil
	d.last = ""
	d.mu.Unlock()

	if pending {
		d.publish(false)
	}
}

func (d *TypingDebouncer) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.last = ""
	d.mu.Unlock()

	d.publish(false)
}
