package chatclient

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type typingRecorder struct {
	mu     sync.Mutex
	values []bool
	times  []time.Time
}

func (r *typingRecorder) publish(typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, typing)
	r.times = append(r.times, time.Now())
}

func (r *typingRecorder) snapshot() ([]bool, []time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.values...), append([]time.Time(nil), r.times...)
}

func TestTypingDebouncerBurstPublishesTrueThenFalse(t *testing.T) {
	recorder := &typingRecorder{}
	idle := 60 * time.Millisecond
	debouncer := NewTypingDebouncer(idle, recorder.publish)

	text := ""
	var last time.Time
	for _, r := range "hello" {
		text += string(r)
		debouncer.Keystroke(text)
		last = time.Now()
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		values, _ := recorder.snapshot()
		return len(values) == 2
	}, time.Second, 5*time.Millisecond)

	values, times := recorder.snapshot()
	require.Equal(t, []bool{true, false}, values)
	require.GreaterOrEqual(t, times[1].Sub(last), idle-5*time.Millisecond)
	require.Less(t, times[1].Sub(last), idle+200*time.Millisecond)

	time.Sleep(2 * idle)
	values, _ = recorder.snapshot()
	require.Len(t, values, 2)
}

func TestTypingDebouncerClearingPublishesNothingExtra(t *testing.T) {
	recorder := &typingRecorder{}
	debouncer := NewTypingDebouncer(50*time.Millisecond, recorder.publish)

	debouncer.Keystroke("a")
	debouncer.Keystroke("")

	values, _ := recorder.snapshot()
	require.Equal(t, []bool{true}, values)

	require.Eventually(t, func() bool {
		values, _ := recorder.snapshot()
		return len(values) == 2
	}, time.Second, 5*time.Millisecond)
	values, _ = recorder.snapshot()
	require.Equal(t, []bool{true, false}, values)
}

func TestTypingDebouncerStopEndsTypingOnce(t *testing.T) {
	recorder := &typingRecorder{}
	debouncer := NewTypingDebouncer(time.Hour, recorder.publish)

	debouncer.Keystroke("hi")
	debouncer.Stop()
	debouncer.Stop()

	values, _ := recorder.snapshot()
	require.Equal(t, []bool{true, false}, values)
}
