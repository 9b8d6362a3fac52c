// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestHandleWAMessageFirstContact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, wa, tg, _ := newTestBridge(t)

	err := b.handleWAMessage(ctx, &WAMessage{
		ChatID:     "123@s.whatsapp.net",
		SenderID:   "123@s.whatsapp.net",
		SenderName: "Ada",
		MessageID:  "wamid-1",
		Text:       "hello",
	})
	if err != nil {
		t.Fatalf("handleWAMessage: %v", err)
	}

	// First contact creates the topic, pins the opening card and relays the
	// message into the new thread.
	if len(tg.topics) != 1 {
		t.Fatalf("CreateTopic called %d times, want 1", len(tg.topics))
	}
	if tg.topics[0].title != "Ada" {
		t.Errorf("topic title = %q, want Ada", tg.topics[0].title)
	}
	if len(tg.pins) != 1 {
		t.Errorf("pins = %d, want 1", len(tg.pins))
	}
	if len(tg.texts) != 2 {
		t.Fatalf("texts = %d, want opening card plus relayed message", len(tg.texts))
	}
	relayed := tg.texts[1]
	if relayed.text != "hello" {
		t.Errorf("relayed text = %q", relayed.text)
	}
	topicID, _ := b.store.ResolveOrNil("123@s.whatsapp.net")
	if relayed.threadID != topicID {
		t.Errorf("relayed into thread %d, topic is %d", relayed.threadID, topicID)
	}

	// The read receipt went back to the phone.
	if len(wa.markedRead) != 1 || wa.markedRead[0] != "wamid-1" {
		t.Errorf("markedRead = %v", wa.markedRead)
	}
}

func TestHandleWAMessageExistingMapping(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _, tg, _ := newTestBridge(t)
	if err := b.store.Record(ctx, "123@s.whatsapp.net", 42); err != nil {
		t.Fatalf("Record: %v", err)
	}

	err := b.handleWAMessage(ctx, &WAMessage{
		ChatID:    "123@s.whatsapp.net",
		SenderID:  "123@s.whatsapp.net",
		MessageID: "wamid-2",
		Text:      "again",
	})
	if err != nil {
		t.Fatalf("handleWAMessage: %v", err)
	}
	if len(tg.topics) != 0 {
		t.Error("topic created for an already-mapped chat")
	}
	if len(tg.texts) != 1 || tg.texts[0].threadID != 42 {
		t.Errorf("texts = %+v, want one message in thread 42", tg.texts)
	}
}

func TestHandleWAMessageEchoSuppressed(t *testing.T) {
	t.Parallel()
	b, _, tg, _ := newTestBridge(t)

	err := b.handleWAMessage(context.Background(), &WAMessage{
		ChatID:    "123@s.whatsapp.net",
		SenderID:  "me@s.whatsapp.net",
		MessageID: "wamid-3",
		FromMe:    true,
		Text:      "my own reply",
	})
	if err != nil {
		t.Fatalf("handleWAMessage: %v", err)
	}
	if len(tg.texts) != 0 || len(tg.topics) != 0 {
		t.Error("own message was relayed back")
	}
}

func TestHandleWAMessageGroupAttribution(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, wa, tg, _ := newTestBridge(t)
	wa.groupNames["99@g.us"] = "Family"

	err := b.handleWAMessage(ctx, &WAMessage{
		ChatID:     "99@g.us",
		SenderID:   "123@s.whatsapp.net",
		SenderName: "Ada",
		MessageID:  "wamid-4",
		IsGroup:    true,
		Text:       "hi all",
	})
	if err != nil {
		t.Fatalf("handleWAMessage: %v", err)
	}
	if tg.topics[0].title != "Family" {
		t.Errorf("topic title = %q, want group name", tg.topics[0].title)
	}
	relayed := tg.texts[len(tg.texts)-1]
	if relayed.text != "Ada:\nhi all" {
		t.Errorf("relayed text = %q, want sender attribution", relayed.text)
	}
}

func TestHandleWAMessageStatusPost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _, tg, _ := newTestBridge(t)

	err := b.handleWAMessage(ctx, &WAMessage{
		ChatID:     StatusBroadcastChatID,
		SenderID:   "123@s.whatsapp.net",
		SenderName: "Ada",
		MessageID:  "wamid-5",
		IsStatus:   true,
		Text:       "my story",
	})
	if err != nil {
		t.Fatalf("handleWAMessage: %v", err)
	}
	if tg.topics[0].title != "Status updates" {
		t.Errorf("topic title = %q", tg.topics[0].title)
	}
	relayed := tg.texts[len(tg.texts)-1]
	if relayed.text != "Ada:\nmy story" {
		t.Errorf("relayed text = %q, want poster attribution", relayed.text)
	}

	// The relayed message is reply-routable back to the poster. The fake
	// assigned nextMsgID to the last send.
	target, ok := b.replies.resolve(tg.nextMsgID)
	if !ok {
		t.Fatal("status post not recorded in the reply index")
	}
	if target.senderID != "123@s.whatsapp.net" {
		t.Errorf("reply target = %q", target.senderID)
	}
}

func TestHandleWAMessageMediaFailureDropsWithMarker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, wa, tg, _ := newTestBridge(t)
	wa.downloadErr = errors.New("media gone")

	err := b.handleWAMessage(ctx, &WAMessage{
		ChatID:     "123@s.whatsapp.net",
		SenderID:   "123@s.whatsapp.net",
		SenderName: "Ada",
		MessageID:  "wamid-6",
		Attachment: &Attachment{Kind: KindImage, MimeType: "image/jpeg"},
	})
	// A media failure is absorbed: marker posted, stream continues.
	if err != nil {
		t.Fatalf("handleWAMessage returned %v, want nil after drop", err)
	}
	last := tg.texts[len(tg.texts)-1]
	if !strings.Contains(last.text, "Failed to relay a image") {
		t.Errorf("marker text = %q", last.text)
	}
}

func TestHandleWAMessageLocation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _, tg, _ := newTestBridge(t)

	err := b.handleWAMessage(ctx, &WAMessage{
		ChatID:    "123@s.whatsapp.net",
		SenderID:  "123@s.whatsapp.net",
		MessageID: "wamid-7",
		Location:  &Location{Latitude: 52.52, Longitude: 13.405},
	})
	if err != nil {
		t.Fatalf("handleWAMessage: %v", err)
	}
	if len(tg.locations) != 1 {
		t.Errorf("SendLocation called %d times, want 1", len(tg.locations))
	}
}

func TestHandleCallDeduplicates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _, tg, _ := newTestBridge(t)
	b.store.UpsertProfile(ctx, "123@s.whatsapp.net", "Ada")

	call := &WACall{CallerID: "123@s.whatsapp.net", CallID: "call-1"}
	b.handleCall(ctx, call)
	b.handleCall(ctx, call)
	b.handleCall(ctx, call)

	notifications := 0
	for _, msg := range tg.texts {
		if strings.Contains(msg.text, "Incoming call from Ada") {
			notifications++
		}
	}
	if notifications != 1 {
		t.Errorf("%d call notifications, want 1", notifications)
	}

	// A different call from the same caller notifies again.
	b.handleCall(ctx, &WACall{CallerID: "123@s.whatsapp.net", CallID: "call-2"})
	notifications = 0
	for _, msg := range tg.texts {
		if strings.Contains(msg.text, "Incoming call from Ada") {
			notifications++
		}
	}
	if notifications != 2 {
		t.Errorf("%d call notifications after second call, want 2", notifications)
	}
}

func TestDispatchWhatsAppConnectionEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b, _, _, _ := newTestBridge(t)

	b.dispatchWhatsApp(ctx, &WAConnected{})
	if b.super.State() != StateConnected {
		t.Errorf("state = %s after connected event", b.super.State())
	}
	b.dispatchWhatsApp(ctx, &WADisconnected{Reason: ReasonLoggedOut})
	if b.super.State() != StateTerminal {
		t.Errorf("state = %s after logout event", b.super.State())
	}
}
