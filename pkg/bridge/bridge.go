// Copyright 2025-2026 Ferdi Gartner
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package bridge contains the core of the WhatsApp-Telegram relay: the
// conversation mapping model, both dispatch pipelines, media relaying and
// the operational safeguards (rate limiting, reconnection, call dedup,
// presence simulation). The two network protocol clients are consumed
// through the narrow WhatsAppClient and TelegramClient interfaces.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maintenanceInterval is how often stale limiter keys, expired call windows
// and old reply-index entries are trimmed.
const maintenanceInterval = 5 * time.Minute

// replyIndexMaxAge bounds how long a status post stays reply-routable.
const replyIndexMaxAge = 24 * time.Hour

// Status is the operator-facing snapshot of bridge health.
type Status struct {
	Connected    bool
	Mappings     int
	Participants int
}

// Bridge wires the core components over the two network shims.
type Bridge struct {
	cfg *Config
	log zerolog.Logger

	wa WhatsAppClient
	tg TelegramClient

	store    *MapStore
	topics   *TopicResolver
	media    *MediaRelay
	limiter  *Limiter
	super    *Supervisor
	calls    *CallDeduper
	presence *PresenceSimulator
	replies  *replyIndex

	commandBucket  Bucket
	downloadBucket Bucket

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New assembles a bridge from its collaborators. Nothing runs until Start.
func New(cfg *Config, wa WhatsAppClient, tg TelegramClient, db Persistence, log zerolog.Logger) *Bridge {
	store := NewMapStore(db, log)
	b := &Bridge{
		cfg:      cfg,
		log:      log.With().Str("component", "bridge").Logger(),
		wa:       wa,
		tg:       tg,
		store:    store,
		topics:   NewTopicResolver(store, wa, tg, cfg.Telegram.ChatID, log),
		media:    NewMediaRelay(wa, tg, cfg.Telegram.ChatID, cfg, log),
		limiter:  NewLimiter(),
		calls:    NewCallDeduper(),
		presence: NewPresenceSimulator(wa.SetPresence, log),
		replies:  newReplyIndex(),
		commandBucket: Bucket{
			Name:   "commands",
			Points: cfg.Limits.CommandsPerMinute,
			Window: time.Minute,
		},
		downloadBucket: Bucket{
			Name:   "downloads",
			Points: cfg.Limits.DownloadsPerHour,
			Window: time.Hour,
		},
		stop: make(chan struct{}),
	}
	b.super = NewSupervisor(wa.Connect, cfg.ReconnectDelay(), log)
	return b
}

// Start validates configuration, hydrates the mapping store and launches the
// event loops. A configuration error leaves the bridge inert: it is logged
// and returned, and no loop starts.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.cfg.Validate(); err != nil {
		b.log.Error().Err(err).Msg("Invalid configuration, bridge stays inert")
		return err
	}
	if err := b.store.Load(ctx); err != nil {
		b.log.Error().Err(err).Msg("Failed to load mapping store, bridge stays inert")
		return err
	}

	b.wg.Add(3)
	go b.runWhatsApp(ctx)
	go b.runTelegram(ctx)
	go b.runMaintenance()

	if err := b.super.Start(ctx); err != nil {
		// Recoverable: the supervisor already scheduled a retry.
		b.log.Warn().Err(err).Msg("Initial connection attempt failed")
	}
	return nil
}

// Stop shuts the bridge down. Reconnects are suppressed first so the
// disconnect that follows is not treated as a drop.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.super.Shutdown()
		b.presence.Stop()
		close(b.stop)
		b.wa.Disconnect()
		b.wg.Wait()
	})
}

// Status returns the operator-facing snapshot.
func (b *Bridge) Status() Status {
	mappings, participants := b.store.Counts()
	return Status{
		Connected:    b.super.State() == StateConnected,
		Mappings:     mappings,
		Participants: participants,
	}
}

// CommandAllowed spends one point of the operator-command budget for a user.
// Exposed for the external command router; denial carries the wait hint.
func (b *Bridge) CommandAllowed(userID string) (bool, time.Duration) {
	return b.limiter.TryConsume(userID, b.commandBucket)
}

// DeleteMapping removes a conversation mapping. Admin action, delegated here
// by the external command router.
func (b *Bridge) DeleteMapping(ctx context.Context, chatID string) error {
	return b.store.Delete(ctx, chatID)
}

// runMaintenance trims expired limiter windows, call-dedup entries and old
// reply-index rows on a slow timer.
func (b *Bridge) runMaintenance() {
	defer b.wg.Done()
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			b.limiter.GC()
			b.calls.Sweep()
			b.replies.prune(replyIndexMaxAge)
		}
	}
}
