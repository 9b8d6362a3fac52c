// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const (
	reactionDelivered = "\U0001f44c"
	reactionFailed    = "\U0001f44e"
)

// runTelegram is the inbound-from-Telegram pipeline. Updates are processed
// serially on this goroutine, preserving per-thread order.
func (b *Bridge) runTelegram(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		case msg, ok := <-b.tg.Updates():
			if !ok {
				return
			}
			b.handleTGMessage(ctx, &msg)
		}
	}
}

// handleTGMessage routes one operator message back to WhatsApp. Unknown
// threads are logged and dropped; a single failed delivery is marked on the
// message and never halts the loop.
func (b *Bridge) handleTGMessage(ctx context.Context, msg *TGMessage) {
	chatID, ok := b.store.ReverseResolve(msg.ThreadID)
	if !ok {
		b.log.Warn().
			Int64("thread_id", msg.ThreadID).
			Int64("message_id", msg.MessageID).
			Msg("Message in unmapped thread, dropping")
		return
	}

	target := chatID
	if IsStatusChat(chatID) {
		// Replies in the status topic route back to the original poster.
		// Only actual replies route; top-level chatter has no recipient.
		if msg.ReplyToID == 0 {
			b.log.Debug().
				Int64("message_id", msg.MessageID).
				Msg("Non-reply message in status topic, dropping")
			return
		}
		reply, ok := b.replies.resolve(msg.ReplyToID)
		if !ok {
			b.log.Warn().
				Int64("message_id", msg.MessageID).
				Int64("reply_to", msg.ReplyToID).
				Msg("Status reply has no known origin, dropping")
			return
		}
		target = reply.senderID
	}

	// The operator is active in this thread; look alive on the phone side.
	b.presence.SignalActivity(ctx, target, true)

	var err error
	switch {
	case msg.Media != nil:
		var attempted bool
		attempted, err = b.relayOperatorMedia(ctx, msg, target)
		if !attempted {
			// Rate-limited: the operator already got the wait hint and
			// nothing was delivered, so no marker either way.
			return
		}
	case msg.Text != "":
		_, err = b.wa.SendText(ctx, target, msg.Text)
	default:
		b.log.Debug().Int64("message_id", msg.MessageID).Msg("Ignoring update with no relayable content")
		return
	}

	marker := reactionDelivered
	if err != nil {
		b.log.Error().Err(err).
			Int64("message_id", msg.MessageID).
			Str("chat_id", target).
			Msg("Failed to deliver to WhatsApp")
		marker = reactionFailed
	}
	if rerr := b.tg.SetReaction(ctx, b.cfg.Telegram.ChatID, msg.MessageID, marker); rerr != nil {
		b.log.Debug().Err(rerr).Int64("message_id", msg.MessageID).Msg("Failed to set delivery marker")
	}
}

// relayOperatorMedia enforces the download budget before relaying a media
// payload outbound. Denial is normal control flow, not an error: the
// operator gets a wait hint in the thread and attempted stays false.
func (b *Bridge) relayOperatorMedia(ctx context.Context, msg *TGMessage, target string) (attempted bool, err error) {
	userKey := strconv.FormatInt(msg.SenderID, 10)
	if allowed, retryAfter := b.limiter.TryConsume(userKey, b.downloadBucket); !allowed {
		hint := fmt.Sprintf("⏳ Download limit reached, try again in %s.", retryAfter.Round(time.Second))
		if _, herr := b.tg.SendText(ctx, b.cfg.Telegram.ChatID, msg.ThreadID, hint); herr != nil {
			b.log.Debug().Err(herr).Msg("Failed to post rate-limit hint")
		}
		return false, nil
	}
	_, err = b.media.RelayOutbound(ctx, msg.Media, msg.Caption, target)
	return true, err
}
