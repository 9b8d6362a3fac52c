// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Telegram's fixed forum-topic icon color palette.
const (
	colorBlue   = 0x6FB9F0
	colorYellow = 0xFFD67E
	colorPurple = 0xCB86DB
	colorGreen  = 0x8EEE98
	colorRed    = 0xFB6F5F
)

// chatClass is the coarse conversation classification used to pick a topic
// title and accent color.
type chatClass int

const (
	classDirect chatClass = iota
	classGroup
	classStatus
)

// TopicResolver maps WhatsApp conversations to forum topics, creating a
// topic on first contact.
type TopicResolver struct {
	store  *MapStore
	wa     WhatsAppClient
	tg     TelegramClient
	chatID int64

	// creating collapses concurrent first-contact creations for the same
	// chat into one CreateTopic call. Without it, two messages arriving
	// back to back from an unseen chat would race and create two topics.
	creating singleflight.Group

	log zerolog.Logger
}

// NewTopicResolver wires a resolver over the mapping store and both shims.
func NewTopicResolver(store *MapStore, wa WhatsAppClient, tg TelegramClient, chatID int64, log zerolog.Logger) *TopicResolver {
	return &TopicResolver{
		store:  store,
		wa:     wa,
		tg:     tg,
		chatID: chatID,
		log:    log.With().Str("component", "topics").Logger(),
	}
}

// GetOrCreate returns the destination thread for a chat, creating it if the
// chat has never been seen. hint is a display name observed on the triggering
// message, used for direct-chat titles. Concurrent calls for the same unseen
// chat yield exactly one created topic; losers of the race get the winner's
// thread id.
func (r *TopicResolver) GetOrCreate(ctx context.Context, chatID, hint string) (int64, error) {
	if topicID, ok := r.store.ResolveOrNil(chatID); ok {
		return topicID, nil
	}

	v, err, _ := r.creating.Do(chatID, func() (any, error) {
		// Re-check under the flight: another caller may have finished
		// between our miss and joining the group.
		if topicID, ok := r.store.ResolveOrNil(chatID); ok {
			return topicID, nil
		}
		return r.create(ctx, chatID, hint)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (r *TopicResolver) create(ctx context.Context, chatID, hint string) (int64, error) {
	class, title, color := r.classify(ctx, chatID, hint)

	topicID, err := r.tg.CreateTopic(ctx, r.chatID, title, color)
	if err != nil {
		return 0, fmt.Errorf("create topic for %s: %w", chatID, err)
	}
	if err := r.store.Record(ctx, chatID, topicID); err != nil {
		return 0, err
	}

	r.log.Info().
		Str("chat_id", chatID).
		Int64("topic_id", topicID).
		Str("title", title).
		Msg("Created topic")

	r.postOpeningCard(ctx, chatID, topicID, title, class)
	return topicID, nil
}

// classify derives the topic title and accent color from the conversation
// class. Group names come from live metadata; a fetch failure falls back to
// the numeric handle rather than failing creation.
func (r *TopicResolver) classify(ctx context.Context, chatID, hint string) (chatClass, string, int32) {
	switch {
	case IsStatusChat(chatID):
		return classStatus, "Status updates", colorPurple
	case IsGroupChat(chatID):
		name, err := r.wa.GroupName(ctx, chatID)
		if err != nil || name == "" {
			r.log.Warn().Err(err).Str("chat_id", chatID).Msg("Failed to fetch group name")
			name = UserHandle(chatID)
		}
		return classGroup, name, colorGreen
	default:
		title := hint
		if title == "" {
			title = r.store.ProfileName(chatID)
		}
		return classDirect, title, colorBlue
	}
}

// postOpeningCard sends and pins the one-time informational message in a
// fresh topic, then attempts avatar delivery. Everything here is best-effort:
// a pin or avatar failure must not fail the creation that triggered it.
func (r *TopicResolver) postOpeningCard(ctx context.Context, chatID string, topicID int64, title string, class chatClass) {
	var body string
	switch class {
	case classStatus:
		body = "Status updates from your contacts appear here. Replying routes back to the original poster."
	case classGroup:
		body = fmt.Sprintf("Conversation opened for group %q (%s).", title, UserHandle(chatID))
	default:
		body = fmt.Sprintf("Conversation opened with %s (+%s).", title, UserHandle(chatID))
	}

	msgID, err := r.tg.SendText(ctx, r.chatID, topicID, body)
	if err != nil {
		r.log.Warn().Err(err).Int64("topic_id", topicID).Msg("Failed to post opening message")
		return
	}
	if err := r.tg.PinMessage(ctx, r.chatID, msgID); err != nil {
		r.log.Warn().Err(err).Int64("topic_id", topicID).Msg("Failed to pin opening message")
	}

	if class == classDirect {
		url, err := r.wa.ProfilePhotoURL(ctx, chatID)
		if err != nil || url == "" {
			return
		}
		if _, err := r.tg.SendPhotoURL(ctx, r.chatID, topicID, url, ""); err != nil {
			r.log.Debug().Err(err).Str("chat_id", chatID).Msg("Failed to deliver avatar")
		}
	}
}
