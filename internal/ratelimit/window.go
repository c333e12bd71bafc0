// internal/ratelimit/window.go
package ratelimit

import (
	"sync"
	"time"
)

// Window is a per-key sliding-window limiter. A key may record at most
// limit events within any trailing window.
type Window struct {
	requests map[string][]time.Time
	mutex    sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
}

// NewWindow creates a limiter admitting limit events per window.
func NewWindow(limit int, window time.Duration) *Window {
	return &Window{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// WithClock replaces the time source and returns the window.
func (w *Window) WithClock(now func() time.Time) *Window {
	w.now = now
	return w
}

// Allow prunes entries at least one window old, then admits and records the
// event if fewer than limit remain.
func (w *Window) Allow(key string) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	now := w.now()
	filtered := w.prune(w.requests[key], now)
	if len(filtered) >= w.limit {
		w.requests[key] = filtered
		return false
	}
	w.requests[key] = append(filtered, now)
	return true
}

// Count returns the number of events for key still inside the window.
func (w *Window) Count(key string) int {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return len(w.prune(w.requests[key], w.now()))
}

// Sweep drops expired timestamps and forgets keys with none left.
func (w *Window) Sweep() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	now := w.now()
	removed := 0
	for key, times := range w.requests {
		filtered := w.prune(times, now)
		if len(filtered) == 0 {
			delete(w.requests, key)
			removed++
			continue
		}
		w.requests[key] = filtered
	}
	return removed
}

// Keys returns the number of tracked keys.
func (w *Window) Keys() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return len(w.requests)
}

func (w *Window) prune(times []time.Time, now time.Time) []time.Time {
	windowStart := now.Add(-w.window)
	filtered := make([]time.Time, 0, len(times))
	for _, t := range times {
		if t.After(windowStart) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
