// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// presenceRevertAfter is how long a composing signal stays active before
// auto-reverting to the neutral state.
const presenceRevertAfter = 10 * time.Second

// PresenceSimulator makes the bridged account look alive on WhatsApp while
// the operator is active in a Telegram thread. One reversion timer exists
// per conversation; signalling again cancels and reschedules it (last lease
// wins), so calling at high frequency never accumulates timers.
type PresenceSimulator struct {
	mu     sync.Mutex
	timers map[string]*time.Timer

	send   func(ctx context.Context, chatID string, composing bool) error
	revert time.Duration
	log    zerolog.Logger
}

// NewPresenceSimulator wires the simulator to a presence send function,
// normally WhatsAppClient.SetPresence.
func NewPresenceSimulator(send func(ctx context.Context, chatID string, composing bool) error, log zerolog.Logger) *PresenceSimulator {
	return &PresenceSimulator{
		timers: make(map[string]*time.Timer),
		send:   send,
		revert: presenceRevertAfter,
		log:    log.With().Str("component", "presence").Logger(),
	}
}

// SignalActivity sends a transient presence update for chatID and schedules
// the reversion. composing=false reverts immediately and cancels any pending
// timer.
func (p *PresenceSimulator) SignalActivity(ctx context.Context, chatID string, composing bool) {
	if err := p.send(ctx, chatID, composing); err != nil {
		p.log.Debug().Err(err).Str("chat_id", chatID).Msg("Failed to send presence")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.timers[chatID]; ok {
		t.Stop()
		delete(p.timers, chatID)
	}
	if !composing {
		return
	}
	p.timers[chatID] = time.AfterFunc(p.revert, func() {
		p.mu.Lock()
		delete(p.timers, chatID)
		p.mu.Unlock()
		if err := p.send(context.Background(), chatID, false); err != nil {
			p.log.Debug().Err(err).Str("chat_id", chatID).Msg("Failed to revert presence")
		}
	})
}

// Stop cancels every pending reversion timer.
func (p *PresenceSimulator) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for chatID, t := range p.timers {
		t.Stop()
		delete(p.timers, chatID)
	}
}
