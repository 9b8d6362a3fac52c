// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"sync"
	"time"
)

// Bucket defines one fixed-window rate limit class.
type Bucket struct {
	Name   string
	Points int
	Window time.Duration
}

type windowState struct {
	count    int
	resetsAt time.Time
}

type limiterKey struct {
	user   string
	bucket string
}

// Limiter bounds per-user frequency with fixed-window counters. Window reset
// is lazy: it happens on the next TryConsume for the key, never from a
// background goroutine. GC only trims keys whose window has long passed, to
// bound memory.
type Limiter struct {
	mu      sync.Mutex
	windows map[limiterKey]*windowState

	// now is injectable for tests.
	now func() time.Time
}

// NewLimiter creates an empty limiter.
func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[limiterKey]*windowState),
		now:     time.Now,
	}
}

// TryConsume spends one point for user in bucket. When denied, retryAfter is
// the remaining wait until the window resets, for a human-readable hint.
// Denial is a normal control-flow outcome, not an error.
func (l *Limiter) TryConsume(userID string, b Bucket) (allowed bool, retryAfter time.Duration) {
	now := l.now()
	key := limiterKey{user: userID, bucket: b.Name}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetsAt) {
		l.windows[key] = &windowState{count: 1, resetsAt: now.Add(b.Window)}
		return true, 0
	}
	if w.count < b.Points {
		w.count++
		return true, 0
	}
	return false, w.resetsAt.Sub(now)
}

// GC drops windows that reset in the past. Called from the bridge's slow
// maintenance ticker.
func (l *Limiter) GC() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if !now.Before(w.resetsAt) {
			delete(l.windows, key)
		}
	}
}
