// Copyright 2025-2026 Ferdi Gartner

// Package whatsapp adapts whatsmeow to the narrow bridge.WhatsAppClient
// surface. Connection lifecycle, QR pairing and credential persistence are
// handled here; the bridge core only sees the typed event union.
package whatsapp

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "modernc.org/sqlite"

	"github.com/ferdiga/wa-telegram-bridge/pkg/bridge"
)

// Client implements bridge.WhatsAppClient over whatsmeow.
type Client struct {
	wm     *whatsmeow.Client
	events chan bridge.WAEvent
	log    zerolog.Logger
}

var _ bridge.WhatsAppClient = (*Client)(nil)

// New opens the session container at sessionPath and builds a client. The
// socket is not connected until Connect.
func New(ctx context.Context, sessionPath string, log zerolog.Logger) (*Client, error) {
	log = log.With().Str("component", "whatsapp").Logger()
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", sessionPath)
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLog.Zerolog(log))
	if err != nil {
		return nil, fmt.Errorf("open session container: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	c := &Client{
		wm:     whatsmeow.NewClient(device, waLog.Zerolog(log)),
		events: make(chan bridge.WAEvent, 128),
		log:    log,
	}
	c.wm.AddEventHandler(c.handleEvent)
	return c, nil
}

// Connect dials the socket. On an unpaired device the QR code is printed for
// the operator to scan; the connect call itself returns once the socket is up.
func (c *Client) Connect(ctx context.Context) error {
	if c.wm.Store.ID == nil {
		qrChan, err := c.wm.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get QR channel: %w", err)
		}
		go func() {
			for item := range qrChan {
				if item.Event == "code" {
					c.log.Info().Str("code", item.Code).Msg("Scan this QR code to pair")
				} else {
					c.log.Info().Str("event", item.Event).Msg("Pairing event")
				}
			}
		}()
	}
	if err := c.wm.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Disconnect closes the socket and the event channel.
func (c *Client) Disconnect() {
	c.wm.Disconnect()
	close(c.events)
}

// Events returns the typed event stream.
func (c *Client) Events() <-chan bridge.WAEvent {
	return c.events
}

// handleEvent translates whatsmeow events into the bridge's closed union.
// Unhandled event types are dropped silently; the bridge has no use for them.
func (c *Client) handleEvent(evt any) {
	switch e := evt.(type) {
	case *events.Message:
		if msg := c.convertMessage(e); msg != nil {
			c.emit(msg)
		}
	case *events.Connected:
		c.emit(&bridge.WAConnected{})
	case *events.Disconnected:
		c.emit(&bridge.WADisconnected{Reason: bridge.ReasonTransient})
	case *events.StreamReplaced:
		// Another client took the socket; the session itself is intact.
		c.emit(&bridge.WADisconnected{Reason: bridge.ReasonTransient})
	case *events.LoggedOut:
		c.emit(&bridge.WADisconnected{Reason: bridge.ReasonLoggedOut})
	case *events.CallOffer:
		c.emit(&bridge.WACall{
			CallerID:  e.CallCreator.ToNonAD().String(),
			CallID:    e.CallID,
			Timestamp: e.Timestamp,
		})
	case *events.AppStateSyncComplete, *events.PushNameSetting:
		c.emit(&bridge.WACredentialsUpdated{})
	}
}

// emit drops events when the buffer is full rather than blocking the
// whatsmeow callback goroutine.
func (c *Client) emit(evt bridge.WAEvent) {
	select {
	case c.events <- evt:
	default:
		c.log.Warn().Msg("Event buffer full, dropping event")
	}
}

// convertMessage decodes the message payload once into the bridge's content
// variants. Returns nil for payloads with nothing to relay (receipts,
// protocol messages, reactions).
func (c *Client) convertMessage(e *events.Message) *bridge.WAMessage {
	msg := &bridge.WAMessage{
		ChatID:     e.Info.Chat.String(),
		SenderID:   e.Info.Sender.ToNonAD().String(),
		SenderName: e.Info.PushName,
		MessageID:  e.Info.ID,
		Timestamp:  e.Info.Timestamp,
		FromMe:     e.Info.IsFromMe,
		IsGroup:    e.Info.IsGroup,
		IsStatus:   e.Info.Chat == types.StatusBroadcastJID,
	}

	m := e.Message
	switch {
	case m.GetConversation() != "":
		msg.Text = m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		msg.Text = m.GetExtendedTextMessage().GetText()
	case m.GetImageMessage() != nil:
		im := m.GetImageMessage()
		msg.Attachment = &bridge.Attachment{
			Kind:     bridge.KindImage,
			Ref:      im,
			MimeType: im.GetMimetype(),
			Size:     im.GetFileLength(),
		}
		msg.Caption = im.GetCaption()
	case m.GetVideoMessage() != nil:
		vm := m.GetVideoMessage()
		msg.Attachment = &bridge.Attachment{
			Kind:     bridge.KindVideo,
			Ref:      vm,
			MimeType: vm.GetMimetype(),
			Size:     vm.GetFileLength(),
		}
		msg.Caption = vm.GetCaption()
	case m.GetAudioMessage() != nil:
		am := m.GetAudioMessage()
		kind := bridge.KindAudio
		if am.GetPTT() {
			kind = bridge.KindVoice
		}
		msg.Attachment = &bridge.Attachment{
			Kind:     kind,
			Ref:      am,
			MimeType: am.GetMimetype(),
			Size:     am.GetFileLength(),
		}
	case m.GetDocumentMessage() != nil:
		dm := m.GetDocumentMessage()
		msg.Attachment = &bridge.Attachment{
			Kind:     bridge.KindDocument,
			Ref:      dm,
			MimeType: dm.GetMimetype(),
			FileName: dm.GetFileName(),
			Size:     dm.GetFileLength(),
		}
		msg.Caption = dm.GetCaption()
	case m.GetStickerMessage() != nil:
		sm := m.GetStickerMessage()
		msg.Attachment = &bridge.Attachment{
			Kind:     bridge.KindSticker,
			Ref:      sm,
			MimeType: sm.GetMimetype(),
			Size:     sm.GetFileLength(),
		}
	case m.GetLocationMessage() != nil:
		lm := m.GetLocationMessage()
		msg.Location = &bridge.Location{
			Latitude:  lm.GetDegreesLatitude(),
			Longitude: lm.GetDegreesLongitude(),
			Name:      lm.GetName(),
		}
	default:
		return nil
	}
	return msg
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, chatID, text string) (string, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("parse chat id %q: %w", chatID, err)
	}
	resp, err := c.wm.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send text: %w", err)
	}
	return resp.ID, nil
}

// SendAttachment uploads data and sends it with the message type matching
// kind.
func (c *Client) SendAttachment(ctx context.Context, chatID string, kind bridge.MessageKind, data []byte, mimeType, fileName, caption string) (string, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("parse chat id %q: %w", chatID, err)
	}

	uploaded, err := c.wm.Upload(ctx, data, uploadMediaType(kind))
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}

	msg, err := composeMediaMessage(kind, uploaded, mimeType, fileName, caption, uint64(len(data)))
	if err != nil {
		return "", err
	}
	resp, err := c.wm.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", fmt.Errorf("send media: %w", err)
	}
	return resp.ID, nil
}

func uploadMediaType(kind bridge.MessageKind) whatsmeow.MediaType {
	switch kind {
	case bridge.KindImage, bridge.KindSticker:
		return whatsmeow.MediaImage
	case bridge.KindVideo:
		return whatsmeow.MediaVideo
	case bridge.KindVoice, bridge.KindAudio:
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

func composeMediaMessage(kind bridge.MessageKind, up whatsmeow.UploadResponse, mimeType, fileName, caption string, size uint64) (*waE2E.Message, error) {
	switch kind {
	case bridge.KindImage:
		return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
			Mimetype:      proto.String(mimeType),
			Caption:       proto.String(caption),
		}}, nil
	case bridge.KindVideo:
		return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
			Mimetype:      proto.String(mimeType),
			Caption:       proto.String(caption),
		}}, nil
	case bridge.KindVoice, bridge.KindAudio:
		return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
			Mimetype:      proto.String(mimeType),
			PTT:           proto.Bool(kind == bridge.KindVoice),
		}}, nil
	case bridge.KindSticker:
		return &waE2E.Message{StickerMessage: &waE2E.StickerMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
			Mimetype:      proto.String(mimeType),
		}}, nil
	case bridge.KindDocument:
		return &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(size),
			Mimetype:      proto.String(mimeType),
			FileName:      proto.String(fileName),
			Caption:       proto.String(caption),
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported media kind %s", kind)
	}
}

// DownloadAttachment fetches the full payload for an attachment produced by
// convertMessage.
func (c *Client) DownloadAttachment(ctx context.Context, att *bridge.Attachment) ([]byte, error) {
	downloadable, ok := att.Ref.(whatsmeow.DownloadableMessage)
	if !ok {
		return nil, fmt.Errorf("attachment ref is not downloadable")
	}
	data, err := c.wm.Download(ctx, downloadable)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	return data, nil
}

// MarkRead sends read receipts for the given message ids.
func (c *Client) MarkRead(ctx context.Context, chatID, senderID string, messageIDs []string) error {
	chat, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", chatID, err)
	}
	sender, err := types.ParseJID(senderID)
	if err != nil {
		return fmt.Errorf("parse sender id %q: %w", senderID, err)
	}
	ids := make([]types.MessageID, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = types.MessageID(id)
	}
	return c.wm.MarkRead(ctx, ids, time.Now(), chat, sender)
}

// SetPresence sends a composing or paused chat-presence update.
func (c *Client) SetPresence(ctx context.Context, chatID string, composing bool) error {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("parse chat id %q: %w", chatID, err)
	}
	state := types.ChatPresencePaused
	if composing {
		state = types.ChatPresenceComposing
	}
	return c.wm.SendChatPresence(ctx, jid, state, types.ChatPresenceMediaText)
}

// GroupName fetches the current subject of a group.
func (c *Client) GroupName(ctx context.Context, chatID string) (string, error) {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return "", fmt.Errorf("parse chat id %q: %w", chatID, err)
	}
	info, err := c.wm.GetGroupInfo(ctx, jid)
	if err != nil {
		return "", fmt.Errorf("get group info: %w", err)
	}
	return info.Name, nil
}

// ProfilePhotoURL returns a short-lived URL for a participant's avatar, or
// "" when none is set.
func (c *Client) ProfilePhotoURL(ctx context.Context, userID string) (string, error) {
	jid, err := types.ParseJID(userID)
	if err != nil {
		return "", fmt.Errorf("parse user id %q: %w", userID, err)
	}
	pic, err := c.wm.GetProfilePictureInfo(ctx, jid, &whatsmeow.GetProfilePictureParams{})
	if err != nil {
		return "", fmt.Errorf("get profile picture: %w", err)
	}
	if pic == nil {
		return "", nil
	}
	return pic.URL, nil
}
