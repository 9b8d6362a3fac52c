// Copyright 2025-2026 Ferdi Gartner

// Package telegram adapts the telego Bot API client to the narrow
// bridge.TelegramClient surface: forum-topic management, the send
// primitives, reactions, pinning and file downloads.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/rs/zerolog"

	"github.com/ferdiga/wa-telegram-bridge/pkg/bridge"
)

// Client implements bridge.TelegramClient over telego.
type Client struct {
	bot  *telego.Bot
	http *http.Client
	msgs chan bridge.TGMessage
	log  zerolog.Logger
}

var _ bridge.TelegramClient = (*Client)(nil)

// New creates a bot client. Long polling starts with Start.
func New(token string, log zerolog.Logger) (*Client, error) {
	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Client{
		bot:  bot,
		http: &http.Client{},
		msgs: make(chan bridge.TGMessage, 128),
		log:  log.With().Str("component", "telegram").Logger(),
	}, nil
}

// Start begins long polling and converting updates until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	updates, err := c.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	go func() {
		defer close(c.msgs)
		for update := range updates {
			if msg := c.convertUpdate(update); msg != nil {
				select {
				case c.msgs <- *msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return nil
}

// Updates returns the converted inbound message stream.
func (c *Client) Updates() <-chan bridge.TGMessage {
	return c.msgs
}

// convertUpdate keeps only messages posted inside forum threads and decodes
// their content kind once. Everything else (joins, service messages, posts
// outside a thread) is dropped here at the boundary.
func (c *Client) convertUpdate(update telego.Update) *bridge.TGMessage {
	m := update.Message
	if m == nil || m.From == nil || m.MessageThreadID == 0 {
		return nil
	}
	out := &bridge.TGMessage{
		MessageID:  int64(m.MessageID),
		ThreadID:   int64(m.MessageThreadID),
		SenderID:   m.From.ID,
		SenderName: m.From.FirstName,
		Text:       m.Text,
		Caption:    m.Caption,
	}
	if m.ReplyToMessage != nil {
		out.ReplyToID = int64(m.ReplyToMessage.MessageID)
	}

	switch {
	case len(m.Photo) > 0:
		// Last entry is the largest rendition.
		best := m.Photo[len(m.Photo)-1]
		out.Media = &bridge.TGMedia{Kind: bridge.KindImage, FileID: best.FileID, MimeType: "image/jpeg"}
	case m.Voice != nil:
		out.Media = &bridge.TGMedia{Kind: bridge.KindVoice, FileID: m.Voice.FileID, MimeType: m.Voice.MimeType}
	case m.Audio != nil:
		out.Media = &bridge.TGMedia{Kind: bridge.KindAudio, FileID: m.Audio.FileID, FileName: m.Audio.FileName, MimeType: m.Audio.MimeType}
	case m.Video != nil:
		out.Media = &bridge.TGMedia{Kind: bridge.KindVideo, FileID: m.Video.FileID, FileName: m.Video.FileName, MimeType: m.Video.MimeType}
	case m.Document != nil:
		out.Media = &bridge.TGMedia{Kind: bridge.KindDocument, FileID: m.Document.FileID, FileName: m.Document.FileName, MimeType: m.Document.MimeType}
	case m.Sticker != nil:
		out.Media = &bridge.TGMedia{Kind: bridge.KindSticker, FileID: m.Sticker.FileID, MimeType: "image/webp"}
	}

	if out.Text == "" && out.Caption == "" && out.Media == nil {
		return nil
	}
	return out
}

// CreateTopic creates a forum topic and returns its thread id.
func (c *Client) CreateTopic(ctx context.Context, chatID int64, title string, accentColor int32) (int64, error) {
	topic, err := c.bot.CreateForumTopic(ctx, &telego.CreateForumTopicParams{
		ChatID:    tu.ID(chatID),
		Name:      title,
		IconColor: int(accentColor),
	})
	if err != nil {
		return 0, fmt.Errorf("create forum topic: %w", err)
	}
	return int64(topic.MessageThreadID), nil
}

// SendText posts a text message into a thread.
func (c *Client) SendText(ctx context.Context, chatID, threadID int64, text string) (int64, error) {
	msg, err := c.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:          tu.ID(chatID),
		MessageThreadID: int(threadID),
		Text:            text,
	})
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return int64(msg.MessageID), nil
}

// SendPhotoURL posts a photo by URL; Telegram fetches it server-side.
func (c *Client) SendPhotoURL(ctx context.Context, chatID, threadID int64, url, caption string) (int64, error) {
	msg, err := c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
		ChatID:          tu.ID(chatID),
		MessageThreadID: int(threadID),
		Photo:           telego.InputFile{URL: url},
		Caption:         caption,
	})
	if err != nil {
		return 0, fmt.Errorf("send photo by url: %w", err)
	}
	return int64(msg.MessageID), nil
}

// SendFile streams the file at path with the primitive matching kind.
func (c *Client) SendFile(ctx context.Context, chatID, threadID int64, kind bridge.MessageKind, path, caption string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open staged file: %w", err)
	}
	defer f.Close()
	input := telego.InputFile{File: f}

	var msg *telego.Message
	switch kind {
	case bridge.KindImage:
		msg, err = c.bot.SendPhoto(ctx, &telego.SendPhotoParams{
			ChatID: tu.ID(chatID), MessageThreadID: int(threadID), Photo: input, Caption: caption,
		})
	case bridge.KindVideo:
		msg, err = c.bot.SendVideo(ctx, &telego.SendVideoParams{
			ChatID: tu.ID(chatID), MessageThreadID: int(threadID), Video: input, Caption: caption,
		})
	case bridge.KindVoice:
		msg, err = c.bot.SendVoice(ctx, &telego.SendVoiceParams{
			ChatID: tu.ID(chatID), MessageThreadID: int(threadID), Voice: input, Caption: caption,
		})
	case bridge.KindAudio:
		msg, err = c.bot.SendAudio(ctx, &telego.SendAudioParams{
			ChatID: tu.ID(chatID), MessageThreadID: int(threadID), Audio: input, Caption: caption,
		})
	case bridge.KindSticker:
		msg, err = c.bot.SendSticker(ctx, &telego.SendStickerParams{
			ChatID: tu.ID(chatID), MessageThreadID: int(threadID), Sticker: input,
		})
	default:
		msg, err = c.bot.SendDocument(ctx, &telego.SendDocumentParams{
			ChatID: tu.ID(chatID), MessageThreadID: int(threadID), Document: input, Caption: caption,
		})
	}
	if err != nil {
		return 0, fmt.Errorf("send %s: %w", kind, err)
	}
	return int64(msg.MessageID), nil
}

// SendLocation posts a geographic point into a thread.
func (c *Client) SendLocation(ctx context.Context, chatID, threadID int64, latitude, longitude float64) (int64, error) {
	msg, err := c.bot.SendLocation(ctx, &telego.SendLocationParams{
		ChatID:          tu.ID(chatID),
		MessageThreadID: int(threadID),
		Latitude:        latitude,
		Longitude:       longitude,
	})
	if err != nil {
		return 0, fmt.Errorf("send location: %w", err)
	}
	return int64(msg.MessageID), nil
}

// PinMessage pins a message in the group.
func (c *Client) PinMessage(ctx context.Context, chatID, messageID int64) error {
	err := c.bot.PinChatMessage(ctx, &telego.PinChatMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: int(messageID),
	})
	if err != nil {
		return fmt.Errorf("pin message: %w", err)
	}
	return nil
}

// SetReaction attaches a single emoji reaction to a message.
func (c *Client) SetReaction(ctx context.Context, chatID, messageID int64, emoji string) error {
	err := c.bot.SetMessageReaction(ctx, &telego.SetMessageReactionParams{
		ChatID:    tu.ID(chatID),
		MessageID: int(messageID),
		Reaction: []telego.ReactionType{
			&telego.ReactionTypeEmoji{Type: telego.ReactionEmoji, Emoji: emoji},
		},
	})
	if err != nil {
		return fmt.Errorf("set reaction: %w", err)
	}
	return nil
}

// DownloadFile resolves the file path through getFile and streams the
// payload into dst.
func (c *Client) DownloadFile(ctx context.Context, fileID string, dst io.Writer) error {
	file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
	if err != nil {
		return fmt.Errorf("get file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.bot.FileDownloadURL(file.FilePath), nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download file: unexpected status %s", resp.Status)
	}
	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("stream file: %w", err)
	}
	return nil
}
