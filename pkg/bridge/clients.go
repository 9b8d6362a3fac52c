// Copyright 2025-2026 Ferdi Gartner
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"io"
)

// WhatsAppClient is the narrow surface the core consumes from the WhatsApp
// protocol shim. Connection lifecycle, QR pairing and credential persistence
// live behind this interface; the core only observes the event stream and
// issues sends.
type WhatsAppClient interface {
	Connect(ctx context.Context) error
	Disconnect()
	// Events delivers the closed WAEvent union. The channel is closed when
	// the shim shuts down.
	Events() <-chan WAEvent

	SendText(ctx context.Context, chatID, text string) (messageID string, err error)
	SendAttachment(ctx context.Context, chatID string, kind MessageKind, data []byte, mimeType, fileName, caption string) (messageID string, err error)
	// DownloadAttachment fetches the full payload for an attachment
	// produced by this shim. whatsmeow has no incremental download, so the
	// caller enforces the configured size cap.
	DownloadAttachment(ctx context.Context, att *Attachment) ([]byte, error)
	MarkRead(ctx context.Context, chatID, senderID string, messageIDs []string) error
	SetPresence(ctx context.Context, chatID string, composing bool) error
	GroupName(ctx context.Context, chatID string) (string, error)
	ProfilePhotoURL(ctx context.Context, userID string) (string, error)
}

// TelegramClient is the narrow surface the core consumes from the Telegram
// bot shim. Thread ids are the Bot API forum-topic message-thread ids.
type TelegramClient interface {
	// Updates delivers new messages posted in threads of the forum group.
	Updates() <-chan TGMessage

	CreateTopic(ctx context.Context, chatID int64, title string, accentColor int32) (threadID int64, err error)
	SendText(ctx context.Context, chatID, threadID int64, text string) (messageID int64, err error)
	SendPhotoURL(ctx context.Context, chatID, threadID int64, url, caption string) (int64, error)
	// SendFile streams the staged file at path using the primitive matching
	// kind (photo, video, voice, audio, document or sticker).
	SendFile(ctx context.Context, chatID, threadID int64, kind MessageKind, path, caption string) (int64, error)
	SendLocation(ctx context.Context, chatID, threadID int64, latitude, longitude float64) (int64, error)
	PinMessage(ctx context.Context, chatID, messageID int64) error
	SetReaction(ctx context.Context, chatID, messageID int64, emoji string) error
	// DownloadFile streams a Telegram file into dst.
	DownloadFile(ctx context.Context, fileID string, dst io.Writer) error
}
