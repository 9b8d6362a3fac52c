// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exmime"
	"go.mau.fi/util/ffmpeg"
)

// MediaRelay moves attachments between the two networks through a scoped
// staging directory. Staged files carry a random component in their name so
// concurrent relays never collide, and are removed on every exit path.
type MediaRelay struct {
	wa       WhatsAppClient
	tg       TelegramClient
	chatID   int64
	tempDir  string
	maxBytes int64
	timeout  time.Duration

	// convert turns a staged file into another container format. Defaults
	// to ffmpeg; injected in tests.
	convert func(ctx context.Context, path, outputExtension string) (string, error)

	log zerolog.Logger
}

// NewMediaRelay builds a relay with ffmpeg-backed conversion.
func NewMediaRelay(wa WhatsAppClient, tg TelegramClient, chatID int64, cfg *Config, log zerolog.Logger) *MediaRelay {
	return &MediaRelay{
		wa:       wa,
		tg:       tg,
		chatID:   chatID,
		tempDir:  cfg.Media.TempDir,
		maxBytes: cfg.Media.MaxBytes,
		timeout:  cfg.MediaTimeout(),
		convert: func(ctx context.Context, path, outputExtension string) (string, error) {
			return ffmpeg.ConvertPath(ctx, path, outputExtension, nil, nil, false)
		},
		log: log.With().Str("component", "media").Logger(),
	}
}

// stagePath returns a collision-free staging location for the given mimetype.
func (m *MediaRelay) stagePath(mimeType string) string {
	ext := exmime.ExtensionFromMimetype(mimeType)
	return filepath.Join(m.tempDir, "wtb-"+uuid.NewString()+ext)
}

// RelayInbound downloads a WhatsApp attachment and delivers it into the
// destination thread. Sticker payloads the destination rejects are converted
// to a raster image and retried once.
func (m *MediaRelay) RelayInbound(ctx context.Context, att *Attachment, caption string, topicID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	data, err := m.wa.DownloadAttachment(ctx, att)
	if err != nil {
		return 0, fmt.Errorf("download attachment: %w", err)
	}
	if m.maxBytes > 0 && int64(len(data)) > m.maxBytes {
		return 0, fmt.Errorf("attachment of %d bytes exceeds cap of %d", len(data), m.maxBytes)
	}

	path := m.stagePath(att.MimeType)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return 0, fmt.Errorf("stage attachment: %w", err)
	}
	defer os.Remove(path)

	msgID, err := m.tg.SendFile(ctx, m.chatID, topicID, att.Kind, path, caption)
	if err == nil {
		return msgID, nil
	}
	if att.Kind != KindSticker {
		return 0, fmt.Errorf("send %s: %w", att.Kind, err)
	}

	// Sticker fallback: convert to a raster image and send as a photo.
	m.log.Debug().Err(err).Msg("Sticker rejected, falling back to raster image")
	converted, cerr := m.convert(ctx, path, ".png")
	if cerr != nil {
		return 0, fmt.Errorf("sticker raster fallback: %w", cerr)
	}
	defer os.Remove(converted)
	msgID, err = m.tg.SendFile(ctx, m.chatID, topicID, KindImage, converted, caption)
	if err != nil {
		return 0, fmt.Errorf("send converted sticker: %w", err)
	}
	return msgID, nil
}

// RelayOutbound downloads a Telegram media payload and delivers it to a
// WhatsApp conversation. The Telegram side streams to disk, so only the
// WhatsApp upload holds the payload in memory; the configured cap bounds it.
func (m *MediaRelay) RelayOutbound(ctx context.Context, media *TGMedia, caption, chatID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	path := m.stagePath(media.MimeType)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("stage download: %w", err)
	}
	defer os.Remove(path)

	err = m.tg.DownloadFile(ctx, media.FileID, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("download file %s: %w", media.FileID, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat staged file: %w", err)
	}
	if m.maxBytes > 0 && info.Size() > m.maxBytes {
		return "", fmt.Errorf("file of %d bytes exceeds cap of %d", info.Size(), m.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read staged file: %w", err)
	}

	mimeType := media.MimeType
	if mimeType == "" {
		mimeType = defaultMimeType(media.Kind)
	}
	msgID, err := m.wa.SendAttachment(ctx, chatID, media.Kind, data, mimeType, media.FileName, caption)
	if err != nil {
		return "", fmt.Errorf("send %s: %w", media.Kind, err)
	}
	return msgID, nil
}

func defaultMimeType(kind MessageKind) string {
	switch kind {
	case KindImage:
		return "image/jpeg"
	case KindVideo:
		return "video/mp4"
	case KindVoice:
		return "audio/ogg; codecs=opus"
	case KindAudio:
		return "audio/mpeg"
	case KindSticker:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
