// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"sync"
	"time"
)

// callSuppressionWindow is how long repeated offers for the same call are
// suppressed after the first notification.
const callSuppressionWindow = 30 * time.Second

// CallDeduper suppresses duplicate notifications for the same real-world
// call. WhatsApp delivers one offer per device and retries on flaky links,
// so the same call key is routinely observed several times within seconds.
type CallDeduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration

	now func() time.Time
}

// NewCallDeduper creates a deduper with the standard 30s window.
func NewCallDeduper() *CallDeduper {
	return &CallDeduper{
		seen:   make(map[string]time.Time),
		window: callSuppressionWindow,
		now:    time.Now,
	}
}

// ShouldNotify reports whether this observation of callKey is the first
// within the suppression window. Expiry is lazy: a key whose window has
// passed counts as unseen.
func (d *CallDeduper) ShouldNotify(callKey string) bool {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	if expiry, ok := d.seen[callKey]; ok && now.Before(expiry) {
		return false
	}
	d.seen[callKey] = now.Add(d.window)
	return true
}

// Sweep removes expired entries. Called from the bridge's slow maintenance
// ticker to bound memory.
func (d *CallDeduper) Sweep() {
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, expiry := range d.seen {
		if !now.Before(expiry) {
			delete(d.seen, key)
		}
	}
}
