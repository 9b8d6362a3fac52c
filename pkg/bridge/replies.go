// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"sync"
	"time"
)

// replyTarget is the WhatsApp-side origin of a relayed status post.
type replyTarget struct {
	senderID  string
	messageID string
	addedAt   time.Time
}

// replyIndex maps Telegram message ids in the shared status topic back to
// the WhatsApp poster, so a reply in that topic reaches the right person
// instead of a 1:1 mapped conversation. Entries are append-only and pruned
// by age.
type replyIndex struct {
	mu      sync.Mutex
	targets map[int64]replyTarget

	now func() time.Time
}

func newReplyIndex() *replyIndex {
	return &replyIndex{
		targets: make(map[int64]replyTarget),
		now:     time.Now,
	}
}

func (r *replyIndex) record(tgMessageID int64, senderID, waMessageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[tgMessageID] = replyTarget{
		senderID:  senderID,
		messageID: waMessageID,
		addedAt:   r.now(),
	}
}

func (r *replyIndex) resolve(tgMessageID int64) (replyTarget, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[tgMessageID]
	return t, ok
}

// prune drops entries older than maxAge.
func (r *replyIndex) prune(maxAge time.Duration) {
	cutoff := r.now().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.targets {
		if t.addedAt.Before(cutoff) {
			delete(r.targets, id)
		}
	}
}
