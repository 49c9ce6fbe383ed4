// Package sendwindow decides whether messages may be sent at a given time of day.
package sendwindow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReasonMisconfigured is reported when a bound cannot be parsed.
const ReasonMisconfigured = "send window is misconfigured"

// ErrInvalidClock indicates a time-of-day string is not HH:MM.
var ErrInvalidClock = errors.New("time of day must be HH:MM")

// Decision is the outcome of a send-window evaluation.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Start   string `json:"start_time,omitempty"`
	End     string `json:"end_time,omitempty"`
}

// ParseClock converts "HH:MM" (24-hour) into minutes since midnight.
func ParseClock(value string) (int, error) {
	value = strings.TrimSpace(value)
	hourPart, minutePart, ok := strings.Cut(value, ":")
	if !ok || len(minutePart) != 2 || hourPart == "" || len(hourPart) > 2 {
		return 0, fmt.Errorf("%q: %w", value, ErrInvalidClock)
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%q: %w", value, ErrInvalidClock)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%q: %w", value, ErrInvalidClock)
	}
	return hour*60 + minute, nil
}

// ValidClock reports whether value is empty or a valid HH:MM string.
func ValidClock(value string) bool {
	if strings.TrimSpace(value) == "" {
		return true
	}
	_, err := ParseClock(value)
	return err == nil
}

// FormatClock renders minutes since midnight on a 12-hour clock, e.g. "9:00 AM".
func FormatClock(minutes int) string {
	minutes = ((minutes % (24 * 60)) + 24*60) % (24 * 60)
	hour := minutes / 60
	minute := minutes % 60

	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	display := hour % 12
	if display == 0 {
		display = 12
	}
	return fmt.Sprintf("%d:%02d %s", display, minute, suffix)
}

// MinuteOfDay returns the minutes elapsed since midnight in t's location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// CanSend evaluates the window [start, end] against now. Both bounds are
// inclusive. A missing bound means no window. A window whose end precedes its
// start wraps past midnight.
func CanSend(now time.Time, start, end string) Decision {
	start = strings.TrimSpace(start)
	end = strings.TrimSpace(end)
	if start == "" || end == "" {
		return Decision{Allowed: true}
	}

	startMinutes, err := ParseClock(start)
	if err != nil {
		return Decision{Allowed: false, Reason: ReasonMisconfigured, Start: start, End: end}
	}
	endMinutes, err := ParseClock(end)
	if err != nil {
		return Decision{Allowed: false, Reason: ReasonMisconfigured, Start: start, End: end}
	}

	current := MinuteOfDay(now)
	var allowed bool
	if startMinutes <= endMinutes {
		allowed = startMinutes <= current && current <= endMinutes
	} else {
		allowed = current >= startMinutes || current <= endMinutes
	}

	decision := Decision{Allowed: allowed, Start: start, End: end}
	if !allowed {
		decision.Reason = fmt.Sprintf("Messages can only be sent between %s and %s", FormatClock(startMinutes), FormatClock(endMinutes))
	}
	return decision
}

// Watch evaluates the window immediately and then on every tick of interval,
// invoking fn for the first decision and whenever Allowed changes. It blocks
// until ctx is done.
func Watch(ctx context.Context, clock func() time.Time, start, end string, interval time.Duration, fn func(Decision)) {
	if clock == nil {
		clock = time.Now
	}
	if interval <= 0 {
		interval = time.Minute
	}

	last := CanSend(clock(), start, end)
	fn(last)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next := CanSend(clock(), start, end)
			if next.Allowed != last.Allowed {
				fn(next)
			}
			last = next
		}
	}
}
