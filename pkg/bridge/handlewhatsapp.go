// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"context"
	"fmt"
)

// runWhatsApp is the inbound-from-WhatsApp pipeline. Events are processed
// serially on this goroutine, which preserves arrival order within each
// conversation; the Telegram pipeline runs concurrently with it.
func (b *Bridge) runWhatsApp(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-b.stop:
			return
		case evt, ok := <-b.wa.Events():
			if !ok {
				return
			}
			b.dispatchWhatsApp(ctx, evt)
		}
	}
}

// dispatchWhatsApp routes one event by variant. The switch is exhaustive
// over the sealed WAEvent union; a single event failure never stops the loop.
func (b *Bridge) dispatchWhatsApp(ctx context.Context, evt WAEvent) {
	switch e := evt.(type) {
	case *WAMessage:
		if err := b.handleWAMessage(ctx, e); err != nil {
			b.log.Error().Err(err).
				Str("chat_id", e.ChatID).
				Str("message_id", e.MessageID).
				Msg("Failed to relay WhatsApp message")
		}
	case *WAConnected:
		b.super.HandleConnected()
	case *WADisconnected:
		b.super.HandleDisconnected(ctx, e.Reason)
	case *WACall:
		b.handleCall(ctx, e)
	case *WACredentialsUpdated:
		b.log.Debug().Msg("Session credentials refreshed")
	}
}

// handleWAMessage relays one inbound message into its destination thread.
func (b *Bridge) handleWAMessage(ctx context.Context, msg *WAMessage) error {
	// Echo prevention: our own sends come back on the event stream.
	if msg.FromMe {
		return nil
	}

	b.store.UpsertProfile(ctx, msg.SenderID, msg.SenderName)

	if msg.IsStatus {
		return b.handleStatusPost(ctx, msg)
	}

	hint := ""
	if !msg.IsGroup {
		hint = msg.SenderName
	}
	topicID, err := b.topics.GetOrCreate(ctx, msg.ChatID, hint)
	if err != nil {
		return err
	}

	if err := b.relayToTopic(ctx, msg, topicID, msg.IsGroup); err != nil {
		return err
	}

	// Read receipt toward the phone, best-effort.
	if err := b.wa.MarkRead(ctx, msg.ChatID, msg.SenderID, []string{msg.MessageID}); err != nil {
		b.log.Debug().Err(err).Str("chat_id", msg.ChatID).Msg("Failed to mark read")
	}
	return nil
}

// handleStatusPost relays a broadcast/story post into the shared status
// topic and records the reply route back to the poster.
func (b *Bridge) handleStatusPost(ctx context.Context, msg *WAMessage) error {
	topicID, err := b.topics.GetOrCreate(ctx, StatusBroadcastChatID, "")
	if err != nil {
		return err
	}
	tgMsgID, err := b.relayAttributed(ctx, msg, topicID)
	if err != nil {
		return err
	}
	if tgMsgID == 0 {
		// The content was dropped; there is no message to route replies to.
		return nil
	}
	b.replies.record(tgMsgID, msg.SenderID, msg.MessageID)
	return nil
}

// relayToTopic delivers message content into a topic, attributing the sender
// for group conversations. Direct chats are attributed by the topic itself.
func (b *Bridge) relayToTopic(ctx context.Context, msg *WAMessage, topicID int64, attributed bool) error {
	if attributed {
		_, err := b.relayAttributed(ctx, msg, topicID)
		return err
	}
	_, err := b.relayContent(ctx, msg, topicID, msg.Text, msg.Caption)
	return err
}

// relayAttributed prefixes the sender's display name onto the relayed text
// or caption.
func (b *Bridge) relayAttributed(ctx context.Context, msg *WAMessage, topicID int64) (int64, error) {
	name := b.store.ProfileName(msg.SenderID)
	text := msg.Text
	caption := msg.Caption
	if text != "" {
		text = fmt.Sprintf("%s:\n%s", name, text)
	}
	if caption != "" {
		caption = fmt.Sprintf("%s:\n%s", name, caption)
	} else if msg.Attachment != nil {
		caption = name + ":"
	}
	return b.relayContent(ctx, msg, topicID, text, caption)
}

// relayContent performs the kind-switched send. A media failure drops the
// item with a visible marker in the thread instead of failing the stream.
func (b *Bridge) relayContent(ctx context.Context, msg *WAMessage, topicID int64, text, caption string) (int64, error) {
	chatID := b.cfg.Telegram.ChatID
	switch {
	case msg.Attachment != nil:
		tgMsgID, err := b.media.RelayInbound(ctx, msg.Attachment, caption, topicID)
		if err != nil {
			b.log.Error().Err(err).
				Str("kind", msg.Attachment.Kind.String()).
				Str("chat_id", msg.ChatID).
				Msg("Failed to relay media")
			if _, merr := b.tg.SendText(ctx, chatID, topicID, "\u26a0\ufe0f Failed to relay a "+msg.Attachment.Kind.String()+" from this chat."); merr != nil {
				b.log.Debug().Err(merr).Msg("Failed to post media failure marker")
			}
			// The item is dropped; the pipeline continues.
			return 0, nil
		}
		return tgMsgID, nil
	case msg.Location != nil:
		return b.tg.SendLocation(ctx, chatID, topicID, msg.Location.Latitude, msg.Location.Longitude)
	case text != "":
		return b.tg.SendText(ctx, chatID, topicID, text)
	default:
		b.log.Debug().Str("chat_id", msg.ChatID).Msg("Ignoring message with no relayable content")
		return 0, nil
	}
}

// handleCall posts one notification per real-world call into the caller's
// topic; duplicate offers within the suppression window are dropped.
func (b *Bridge) handleCall(ctx context.Context, call *WACall) {
	if !b.calls.ShouldNotify(MakeCallKey(call.CallerID, call.CallID)) {
		return
	}
	topicID, err := b.topics.GetOrCreate(ctx, call.CallerID, "")
	if err != nil {
		b.log.Error().Err(err).Str("caller", call.CallerID).Msg("Failed to resolve topic for call")
		return
	}
	name := b.store.ProfileName(call.CallerID)
	text := fmt.Sprintf("\U0001f4de Incoming call from %s", name)
	if _, err := b.tg.SendText(ctx, b.cfg.Telegram.ChatID, topicID, text); err != nil {
		b.log.Error().Err(err).Str("caller", call.CallerID).Msg("Failed to post call notification")
	}
}
