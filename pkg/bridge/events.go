// Copyright 2025-2026 Ferdi Gartner

package bridge

import "time"

// MessageKind identifies the content variant of a relayed message. The kind
// is decided once, when the network shim decodes the wire payload; the core
// never probes optional fields again after that point.
type MessageKind int

const (
	KindText MessageKind = iota
	KindImage
	KindVideo
	// KindVoice is push-to-talk audio; KindAudio is regular music audio.
	// The two use different Telegram send primitives.
	KindVoice
	KindAudio
	KindDocument
	KindSticker
	KindLocation
)

// String returns the lowercase name of the kind for logging.
func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindVoice:
		return "voice"
	case KindAudio:
		return "audio"
	case KindDocument:
		return "document"
	case KindSticker:
		return "sticker"
	case KindLocation:
		return "location"
	default:
		return "unknown"
	}
}

// Attachment describes a downloadable media payload on the WhatsApp side.
// Ref is the shim's opaque download handle and is only meaningful to the
// client that produced it.
type Attachment struct {
	Kind     MessageKind
	Ref      any
	MimeType string
	FileName string
	Size     uint64
}

// Location is a shared geographic point.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// WAEvent is the closed set of events the WhatsApp shim can deliver.
// The interface is sealed so the dispatch switch in the core stays
// exhaustive; adding a variant requires touching both sides.
type WAEvent interface {
	isWAEvent()
}

// WAMessage is a new inbound message from WhatsApp.
type WAMessage struct {
	ChatID     string
	SenderID   string
	SenderName string
	MessageID  string
	Timestamp  time.Time
	FromMe     bool
	IsGroup    bool
	IsStatus   bool

	Text       string
	Attachment *Attachment
	Caption    string
	Location   *Location
}

// WAConnected signals that the WhatsApp socket is up and authenticated.
type WAConnected struct{}

// DisconnectReason classifies a WhatsApp connection drop.
type DisconnectReason int

const (
	// ReasonTransient covers network hiccups, server restarts and stream
	// replacement. The supervisor will reconnect.
	ReasonTransient DisconnectReason = iota
	// ReasonLoggedOut means the pairing was revoked from the phone. No
	// reconnect attempt can succeed until the operator re-scans the QR code.
	ReasonLoggedOut
)

// WADisconnected signals that the WhatsApp socket dropped.
type WADisconnected struct {
	Reason DisconnectReason
}

// WACall is an incoming call offer.
type WACall struct {
	CallerID  string
	CallID    string
	Timestamp time.Time
}

// WACredentialsUpdated signals that the shim persisted refreshed session
// credentials. Informational only; the shim owns credential storage.
type WACredentialsUpdated struct{}

func (*WAMessage) isWAEvent()            {}
func (*WAConnected) isWAEvent()          {}
func (*WADisconnected) isWAEvent()       {}
func (*WACall) isWAEvent()               {}
func (*WACredentialsUpdated) isWAEvent() {}

// TGMedia describes a media payload attached to a Telegram message.
type TGMedia struct {
	Kind     MessageKind
	FileID   string
	FileName string
	MimeType string
}

// TGMessage is a new message posted in a thread of the destination forum
// group. This is the only inbound event kind the Telegram shim delivers.
type TGMessage struct {
	MessageID  int64
	ThreadID   int64
	SenderID   int64
	SenderName string
	ReplyToID  int64

	Text    string
	Caption string
	Media   *TGMedia
}
