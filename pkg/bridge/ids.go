// Copyright 2025-2026 Ferdi Gartner

package bridge

import "strings"

// StatusBroadcastChatID is the pseudo-conversation WhatsApp uses for
// status/story posts. It maps to a single shared topic rather than a
// per-conversation one.
const StatusBroadcastChatID = "status@broadcast"

const groupServer = "g.us"

// IsGroupChat reports whether the chat identity addresses a group.
func IsGroupChat(chatID string) bool {
	return strings.HasSuffix(chatID, "@"+groupServer)
}

// IsStatusChat reports whether the chat identity is the status broadcast
// pseudo-conversation.
func IsStatusChat(chatID string) bool {
	return chatID == StatusBroadcastChatID
}

// UserHandle extracts the numeric handle (the part before '@') from a user
// or chat identity. Returns the input unchanged if it has no server part.
func UserHandle(id string) string {
	if idx := strings.IndexByte(id, '@'); idx >= 0 {
		return id[:idx]
	}
	return id
}

// MakeCallKey builds the deduplication key for a call event. The same
// real-world call is observed once per participant device, so the key
// combines the caller with the call session id.
func MakeCallKey(callerID, callID string) string {
	return callerID + ":" + callID
}
