// Copyright 2025-2026 Ferdi Gartner

package bridge

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ferdiga/wa-telegram-bridge/pkg/storage"
)

// memPersistence is an in-memory Persistence used by tests.
type memPersistence struct {
	mu       sync.Mutex
	mappings map[string]storage.Mapping
	profiles map[string]storage.Profile
	deletes  []string

	upsertMappingErr error
}

func newMemPersistence() *memPersistence {
	return &memPersistence{
		mappings: make(map[string]storage.Mapping),
		profiles: make(map[string]storage.Profile),
	}
}

func (m *memPersistence) Mappings(_ context.Context) ([]storage.Mapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.Mapping, 0, len(m.mappings))
	for _, v := range m.mappings {
		out = append(out, v)
	}
	return out, nil
}

func (m *memPersistence) UpsertMapping(_ context.Context, mp storage.Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertMappingErr != nil {
		return m.upsertMappingErr
	}
	m.mappings[mp.ChatID] = mp
	return nil
}

func (m *memPersistence) DeleteMapping(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mappings, chatID)
	m.deletes = append(m.deletes, chatID)
	return nil
}

func (m *memPersistence) Profiles(_ context.Context) ([]storage.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.Profile, 0, len(m.profiles))
	for _, v := range m.profiles {
		out = append(out, v)
	}
	return out, nil
}

func (m *memPersistence) UpsertProfile(_ context.Context, p storage.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
	return nil
}

type sentWAText struct {
	chatID string
	text   string
}

type sentWAAttachment struct {
	chatID   string
	kind     MessageKind
	data     []byte
	mimeType string
	fileName string
	caption  string
}

type presenceCall struct {
	chatID    string
	composing bool
}

var (
	_ WhatsAppClient = (*fakeWhatsApp)(nil)
	_ TelegramClient = (*fakeTelegram)(nil)
	_ Persistence    = (*memPersistence)(nil)
)

// fakeWhatsApp implements WhatsAppClient for tests.
type fakeWhatsApp struct {
	mu     sync.Mutex
	events chan WAEvent

	connectCalls int
	connectErr   error

	texts       []sentWAText
	attachments []sentWAAttachment
	markedRead  []string
	presence    []presenceCall

	downloadData []byte
	downloadErr  error

	groupNames map[string]string
	photoURL   string
	photoErr   error

	sendErr error
}

func newFakeWhatsApp() *fakeWhatsApp {
	return &fakeWhatsApp{
		events:     make(chan WAEvent, 16),
		groupNames: make(map[string]string),
	}
}

func (f *fakeWhatsApp) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	return f.connectErr
}

func (f *fakeWhatsApp) Disconnect() {}

func (f *fakeWhatsApp) Events() <-chan WAEvent { return f.events }

func (f *fakeWhatsApp) SendText(_ context.Context, chatID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.texts = append(f.texts, sentWAText{chatID: chatID, text: text})
	return "wamid-1", nil
}

func (f *fakeWhatsApp) SendAttachment(_ context.Context, chatID string, kind MessageKind, data []byte, mimeType, fileName, caption string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.attachments = append(f.attachments, sentWAAttachment{
		chatID: chatID, kind: kind, data: append([]byte(nil), data...),
		mimeType: mimeType, fileName: fileName, caption: caption,
	})
	return "wamid-media-1", nil
}

func (f *fakeWhatsApp) DownloadAttachment(_ context.Context, _ *Attachment) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.downloadData, nil
}

func (f *fakeWhatsApp) MarkRead(_ context.Context, chatID, _ string, messageIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, messageIDs...)
	_ = chatID
	return nil
}

func (f *fakeWhatsApp) SetPresence(_ context.Context, chatID string, composing bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = append(f.presence, presenceCall{chatID: chatID, composing: composing})
	return nil
}

func (f *fakeWhatsApp) GroupName(_ context.Context, chatID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groupNames[chatID], nil
}

func (f *fakeWhatsApp) ProfilePhotoURL(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.photoURL, f.photoErr
}

type sentTGText struct {
	chatID   int64
	threadID int64
	text     string
}

type sentTGFile struct {
	threadID int64
	kind     MessageKind
	path     string
	caption  string
}

type createdTopic struct {
	title string
	color int32
}

// fakeTelegram implements TelegramClient for tests.
type fakeTelegram struct {
	mu      sync.Mutex
	updates chan TGMessage

	nextTopicID int64
	createDelay time.Duration
	createErr   error
	topics      []createdTopic

	nextMsgID int64
	texts     []sentTGText
	files     []sentTGFile
	locations []int64
	photoURLs []string
	pins      []int64
	reactions map[int64]string

	sendFileErr map[MessageKind]error
	pinErr      error
	photoURLErr error

	downloadContent []byte
	downloadErr     error
}

func newFakeTelegram() *fakeTelegram {
	return &fakeTelegram{
		updates:     make(chan TGMessage, 16),
		nextTopicID: 100,
		nextMsgID:   1000,
		reactions:   make(map[int64]string),
		sendFileErr: make(map[MessageKind]error),
	}
}

func (f *fakeTelegram) Updates() <-chan TGMessage { return f.updates }

func (f *fakeTelegram) CreateTopic(_ context.Context, _ int64, title string, accentColor int32) (int64, error) {
	if f.createDelay > 0 {
		time.Sleep(f.createDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextTopicID++
	f.topics = append(f.topics, createdTopic{title: title, color: accentColor})
	return f.nextTopicID, nil
}

func (f *fakeTelegram) SendText(_ context.Context, chatID, threadID int64, text string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	f.texts = append(f.texts, sentTGText{chatID: chatID, threadID: threadID, text: text})
	return f.nextMsgID, nil
}

func (f *fakeTelegram) SendPhotoURL(_ context.Context, _, _ int64, url, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.photoURLErr != nil {
		return 0, f.photoURLErr
	}
	f.nextMsgID++
	f.photoURLs = append(f.photoURLs, url)
	return f.nextMsgID, nil
}

func (f *fakeTelegram) SendFile(_ context.Context, _, threadID int64, kind MessageKind, path, caption string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendFileErr[kind]; err != nil {
		return 0, err
	}
	f.nextMsgID++
	f.files = append(f.files, sentTGFile{threadID: threadID, kind: kind, path: path, caption: caption})
	return f.nextMsgID, nil
}

func (f *fakeTelegram) SendLocation(_ context.Context, _, threadID int64, _, _ float64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	f.locations = append(f.locations, threadID)
	return f.nextMsgID, nil
}

func (f *fakeTelegram) PinMessage(_ context.Context, _, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pinErr != nil {
		return f.pinErr
	}
	f.pins = append(f.pins, messageID)
	return nil
}

func (f *fakeTelegram) SetReaction(_ context.Context, _, messageID int64, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[messageID] = emoji
	return nil
}

func (f *fakeTelegram) DownloadFile(_ context.Context, _ string, dst io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.downloadErr != nil {
		return f.downloadErr
	}
	_, err := dst.Write(f.downloadContent)
	return err
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testConfig(tempDir string) *Config {
	cfg := &Config{}
	cfg.Telegram.Token = "test-token"
	cfg.Telegram.ChatID = -100
	cfg.WhatsApp.SessionPath = "session.db"
	cfg.Database.Path = "bridge.db"
	cfg.Media.TempDir = tempDir
	cfg.applyDefaults()
	return cfg
}

// newTestBridge builds a bridge over fakes, with the store already loaded.
func newTestBridge(t interface {
	Helper()
	Fatalf(format string, args ...any)
	TempDir() string
}) (*Bridge, *fakeWhatsApp, *fakeTelegram, *memPersistence) {
	t.Helper()
	wa := newFakeWhatsApp()
	tg := newFakeTelegram()
	db := newMemPersistence()
	b := New(testConfig(t.TempDir()), wa, tg, db, testLogger())
	if err := b.store.Load(context.Background()); err != nil {
		t.Fatalf("load store: %v", err)
	}
	return b, wa, tg, db
}
