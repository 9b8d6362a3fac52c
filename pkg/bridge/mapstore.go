// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ferdiga/wa-telegram-bridge/pkg/storage"
)

// Persistence is the narrow durable-store contract the mapping store writes
// through. pkg/storage satisfies it; tests use an in-memory fake.
type Persistence interface {
	Mappings(ctx context.Context) ([]storage.Mapping, error)
	UpsertMapping(ctx context.Context, m storage.Mapping) error
	DeleteMapping(ctx context.Context, chatID string) error
	Profiles(ctx context.Context) ([]storage.Profile, error)
	UpsertProfile(ctx context.Context, p storage.Profile) error
}

// MapStore owns the conversation-to-topic mappings and participant profiles.
// All other components go through its accessors; the raw maps are never
// exposed. Both inbound pipelines touch it concurrently, so every access is
// guarded by the mutex.
type MapStore struct {
	mu sync.RWMutex
	// forward: chat identity -> topic id. reverse is the secondary index
	// required for inbound-from-Telegram lookups; it is maintained in
	// lockstep with forward so ReverseResolve stays O(1).
	forward  map[string]int64
	reverse  map[int64]string
	profiles map[string]*storage.Profile

	db  Persistence
	log zerolog.Logger
}

// NewMapStore creates an empty store writing through db.
func NewMapStore(db Persistence, log zerolog.Logger) *MapStore {
	return &MapStore{
		forward:  make(map[string]int64),
		reverse:  make(map[int64]string),
		profiles: make(map[string]*storage.Profile),
		db:       db,
		log:      log.With().Str("component", "mapstore").Logger(),
	}
}

// Load hydrates the in-memory index from the durable store.
func (s *MapStore) Load(ctx context.Context) error {
	mappings, err := s.db.Mappings(ctx)
	if err != nil {
		return fmt.Errorf("load mappings: %w", err)
	}
	profiles, err := s.db.Profiles(ctx)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range mappings {
		s.forward[m.ChatID] = m.TopicID
		s.reverse[m.TopicID] = m.ChatID
	}
	for i := range profiles {
		p := profiles[i]
		s.profiles[p.UserID] = &p
	}
	s.log.Info().
		Int("mappings", len(s.forward)).
		Int("profiles", len(s.profiles)).
		Msg("Loaded mapping store")
	return nil
}

// ResolveOrNil returns the topic id for a chat, or (0, false) if unmapped.
func (s *MapStore) ResolveOrNil(chatID string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.forward[chatID]
	return id, ok
}

// ReverseResolve returns the chat identity that owns a topic, or ("", false).
func (s *MapStore) ReverseResolve(topicID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chatID, ok := s.reverse[topicID]
	return chatID, ok
}

// Record associates a chat with a topic. Recording an already-mapped chat is
// a no-op, not an overwrite; a mapping only ever changes through Delete.
// The durable upsert happens under the same lock as the in-memory write so a
// Delete racing this call cannot leave a durable row for a purged mapping.
func (s *MapStore) Record(ctx context.Context, chatID string, topicID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.forward[chatID]; ok {
		return nil
	}
	if err := s.db.UpsertMapping(ctx, storage.Mapping{
		ChatID:    chatID,
		TopicID:   topicID,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("persist mapping: %w", err)
	}
	s.forward[chatID] = topicID
	s.reverse[topicID] = chatID
	return nil
}

// Delete removes the mapping for a chat from both indexes and the durable
// store. The durable delete happens under the same lock as the in-memory
// purge so a concurrent reader never sees a half-removed mapping.
func (s *MapStore) Delete(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	topicID, ok := s.forward[chatID]
	if !ok {
		return nil
	}
	if err := s.db.DeleteMapping(ctx, chatID); err != nil {
		return fmt.Errorf("delete mapping: %w", err)
	}
	delete(s.forward, chatID)
	delete(s.reverse, topicID)
	return nil
}

// UpsertProfile records a participant sighting. The display name is written
// once: the first non-empty name observed wins and later observations never
// overwrite it. The upstream sources disagree on this, so it is an explicit
// policy here rather than last-writer-wins.
func (s *MapStore) UpsertProfile(ctx context.Context, userID, observedName string) {
	s.mu.Lock()
	p, ok := s.profiles[userID]
	if !ok {
		p = &storage.Profile{
			UserID:    userID,
			Handle:    UserHandle(userID),
			FirstSeen: time.Now(),
		}
		s.profiles[userID] = p
	}
	if p.DisplayName == "" && observedName != "" {
		p.DisplayName = observedName
	}
	p.MessageCount++
	snapshot := *p
	s.mu.Unlock()

	if err := s.db.UpsertProfile(ctx, snapshot); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to persist profile")
	}
}

// ProfileName returns the recorded display name for a participant, falling
// back to the numeric handle when no name was ever observed.
func (s *MapStore) ProfileName(userID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[userID]; ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return UserHandle(userID)
}

// Counts returns the mapping and participant counts for the status surface.
func (s *MapStore) Counts() (mappings, participants int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.forward), len(s.profiles)
}
