package utils

import "time"

// Timer measures wall-clock latency of a request. It records the start instant
// and the instant of the last observed event, which lets streamed responses
// report both time-to-first-chunk and time between chunks.
type Timer struct {
	startTime time.Time
	lastMark  time.Time
}

// NewTimer creates a Timer started now.
func NewTimer() *Timer {
	now := time.Now()
	return &Timer{startTime: now, lastMark: now}
}

// StartedAt returns the instant the timer was started.
func (t *Timer) StartedAt() time.Time {
	return t.startTime
}

// Elapsed returns the time since the timer was started.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.startTime)
}

// Lap returns the time since the previous Lap (or since start) and moves the
// mark to now.
func (t *Timer) Lap() time.Duration {
	now := time.Now()
	lap := now.Sub(t.lastMark)
	t.lastMark = now
	return lap
}
