// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestResolver(t *testing.T) (*TopicResolver, *fakeWhatsApp, *fakeTelegram, *MapStore) {
	t.Helper()
	wa := newFakeWhatsApp()
	tg := newFakeTelegram()
	store := NewMapStore(newMemPersistence(), testLogger())
	return NewTopicResolver(store, wa, tg, -100, testLogger()), wa, tg, store
}

func TestGetOrCreateHitSkipsNetwork(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _, tg, store := newTestResolver(t)
	if err := store.Record(ctx, "123@s.whatsapp.net", 55); err != nil {
		t.Fatalf("Record: %v", err)
	}

	topicID, err := r.GetOrCreate(ctx, "123@s.whatsapp.net", "Ada")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if topicID != 55 {
		t.Errorf("topicID = %d, want 55", topicID)
	}
	if len(tg.topics) != 0 {
		t.Errorf("CreateTopic called %d times for a mapped chat", len(tg.topics))
	}
}

func TestGetOrCreateDirectChat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, wa, tg, store := newTestResolver(t)
	wa.photoURL = "https://example.invalid/avatar.jpg"

	topicID, err := r.GetOrCreate(ctx, "123@s.whatsapp.net", "Ada")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if got, _ := store.ResolveOrNil("123@s.whatsapp.net"); got != topicID {
		t.Errorf("store maps to %d, create returned %d", got, topicID)
	}
	if len(tg.topics) != 1 {
		t.Fatalf("CreateTopic called %d times, want 1", len(tg.topics))
	}
	if tg.topics[0].title != "Ada" {
		t.Errorf("title = %q, want hint name", tg.topics[0].title)
	}
	if tg.topics[0].color != colorBlue {
		t.Errorf("color = %#x, want direct-chat blue", tg.topics[0].color)
	}
	// The opening message is pinned and the avatar delivered.
	if len(tg.texts) != 1 || len(tg.pins) != 1 {
		t.Errorf("opening card: %d texts, %d pins, want 1 each", len(tg.texts), len(tg.pins))
	}
	if len(tg.photoURLs) != 1 || tg.photoURLs[0] != wa.photoURL {
		t.Errorf("avatar photoURLs = %v", tg.photoURLs)
	}
}

func TestGetOrCreateGroupChat(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, wa, tg, _ := newTestResolver(t)
	wa.groupNames["123@g.us"] = "Family"

	if _, err := r.GetOrCreate(ctx, "123@g.us", ""); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if len(tg.topics) != 1 {
		t.Fatalf("CreateTopic called %d times, want 1", len(tg.topics))
	}
	if tg.topics[0].title != "Family" {
		t.Errorf("title = %q, want group name", tg.topics[0].title)
	}
	if tg.topics[0].color != colorGreen {
		t.Errorf("color = %#x, want group green", tg.topics[0].color)
	}
	// Group topics never get an avatar post.
	if len(tg.photoURLs) != 0 {
		t.Errorf("avatar posted for a group: %v", tg.photoURLs)
	}
}

func TestGetOrCreateGroupNameFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _, tg, _ := newTestResolver(t)
	// GroupName returns "" for unknown groups in the fake.
	if _, err := r.GetOrCreate(ctx, "987@g.us", ""); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if tg.topics[0].title != "987" {
		t.Errorf("title = %q, want numeric handle fallback", tg.topics[0].title)
	}
}

func TestGetOrCreateStatusTopic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _, tg, _ := newTestResolver(t)

	if _, err := r.GetOrCreate(ctx, StatusBroadcastChatID, ""); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if tg.topics[0].title != "Status updates" {
		t.Errorf("title = %q", tg.topics[0].title)
	}
	if tg.topics[0].color != colorPurple {
		t.Errorf("color = %#x, want status purple", tg.topics[0].color)
	}
}

func TestGetOrCreateConcurrentSingleCreation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _, tg, _ := newTestResolver(t)
	// Slow creation widens the race window.
	tg.createDelay = 20 * time.Millisecond

	const callers = 16
	results := make([]int64, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			topicID, err := r.GetOrCreate(ctx, "123@s.whatsapp.net", "Ada")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			results[i] = topicID
		}(i)
	}
	wg.Wait()

	if len(tg.topics) != 1 {
		t.Fatalf("CreateTopic called %d times under contention, want 1", len(tg.topics))
	}
	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d got topic %d, caller 0 got %d", i, results[i], results[0])
		}
	}
}

func TestGetOrCreatePropagatesCreateError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _, tg, store := newTestResolver(t)
	tg.createErr = errors.New("forum is full")

	if _, err := r.GetOrCreate(ctx, "123@s.whatsapp.net", "Ada"); err == nil {
		t.Fatal("expected error from failed creation")
	}
	if _, ok := store.ResolveOrNil("123@s.whatsapp.net"); ok {
		t.Error("failed creation left a mapping behind")
	}

	// The chat can be retried once the backend recovers.
	tg.mu.Lock()
	tg.createErr = nil
	tg.mu.Unlock()
	if _, err := r.GetOrCreate(ctx, "123@s.whatsapp.net", "Ada"); err != nil {
		t.Errorf("retry after failure: %v", err)
	}
}

func TestGetOrCreatePinFailureDoesNotFailCreation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _, tg, _ := newTestResolver(t)
	tg.pinErr = errors.New("no pin permission")

	if _, err := r.GetOrCreate(ctx, "123@s.whatsapp.net", "Ada"); err != nil {
		t.Fatalf("GetOrCreate failed on pin error: %v", err)
	}
}
