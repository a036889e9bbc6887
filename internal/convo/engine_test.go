package convo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"wa-bridge/internal/ai"
	"wa-bridge/internal/repo"
	"wa-bridge/internal/wa"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	messages      []repo.Message
	mediaFiles    []repo.MediaFile
	localPaths    map[string]string
	history       []repo.HistoryEntry
	duplicate     bool
	insertErr     error
	convErr       error
	historyErr    error
	convCalls     int
	historyCalled bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{localPaths: map[string]string{}}
}

func (s *fakeStore) CreateOrGetConversation(ctx context.Context, businessID, phoneNumber string) (*repo.Conversation, error) {
	s.convCalls++
	if s.convErr != nil {
		return nil, s.convErr
	}
	return &repo.Conversation{ID: "conv-1", BusinessID: businessID, PhoneNumber: phoneNumber}, nil
}

func (s *fakeStore) InsertMessage(ctx context.Context, msg repo.Message) (*repo.Message, bool, error) {
	if s.insertErr != nil {
		return nil, false, s.insertErr
	}
	if s.duplicate && msg.Direction == repo.DirectionInbound {
		return nil, false, nil
	}
	msg.ID = fmt.Sprintf("msg-%d", len(s.messages)+1)
	s.messages = append(s.messages, msg)
	return &msg, true, nil
}

func (s *fakeStore) RecentHistory(ctx context.Context, businessID, phoneNumber, excludeMessageID string, limit int) ([]repo.HistoryEntry, error) {
	s.historyCalled = true
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.history, nil
}

func (s *fakeStore) InsertMediaFile(ctx context.Context, file repo.MediaFile) (*repo.MediaFile, error) {
	s.mediaFiles = append(s.mediaFiles, file)
	return &file, nil
}

func (s *fakeStore) SetMessageLocalPath(ctx context.Context, messageID, path string) error {
	s.localPaths[messageID] = path
	return nil
}

type fakeTenants struct {
	cfg     *repo.ChannelConfig
	cfgErr  error
	tone    *repo.Tone
	toneErr error
}

func (t *fakeTenants) ResolveChannelConfig(ctx context.Context, phoneNumberID string) (*repo.ChannelConfig, error) {
	if t.cfgErr != nil {
		return nil, t.cfgErr
	}
	return t.cfg, nil
}

func (t *fakeTenants) DefaultTone(ctx context.Context, businessID string) (*repo.Tone, error) {
	if t.toneErr != nil {
		return nil, t.toneErr
	}
	return t.tone, nil
}

type fakeAdapter struct {
	downloadErr  error
	downloadData string
	sendErr      error
	sentTo       string
	sentBody     string
	sendCalls    int
}

func (a *fakeAdapter) DownloadMedia(ctx context.Context, creds wa.Credentials, mediaID string) (io.ReadCloser, error) {
	if a.downloadErr != nil {
		return nil, a.downloadErr
	}
	return io.NopCloser(strings.NewReader(a.downloadData)), nil
}

func (a *fakeAdapter) SendText(ctx context.Context, creds wa.Credentials, to, body string) (*wa.SendReceipt, error) {
	a.sendCalls++
	a.sentTo = to
	a.sentBody = body
	if a.sendErr != nil {
		return nil, a.sendErr
	}
	return &wa.SendReceipt{MessageID: "wamid.sent"}, nil
}

type fakeGenerator struct {
	reply   string
	err     error
	lastReq ai.Request
	calls   int
}

func (g *fakeGenerator) Reply(ctx context.Context, req ai.Request) (string, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type fakeMedia struct {
	path    string
	saveErr error
	saved   string
}

func (m *fakeMedia) Save(kind, name string, r io.Reader) (string, int64, error) {
	if m.saveErr != nil {
		return "", 0, m.saveErr
	}
	data, _ := io.ReadAll(r)
	m.saved = string(data)
	return m.path, int64(len(data)), nil
}

func textEventBody(messageID string) []byte {
	return []byte(fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "111222"},
			"messages": [{"from": "628111", "id": %q, "text": {"body": "hello"}}]
		}}]}]
	}`, messageID))
}

func imageEventBody() []byte {
	return []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "111222"},
			"messages": [{"from": "628111", "id": "wamid.img", "image": {"id": "media-1", "caption": "look", "mime_type": "image/jpeg"}}]
		}}]}]
	}`)
}

func activeConfig() *repo.ChannelConfig {
	return &repo.ChannelConfig{
		ID:            "cfg-1",
		BusinessID:    "biz-1",
		PhoneNumberID: "111222",
		AccessToken:   "tok-a",
		VerifyToken:   "verify-me",
		Status:        "active",
	}
}

func newTestEngine(store *fakeStore, tenants *fakeTenants, adapter *fakeAdapter, gen *fakeGenerator, media *fakeMedia) *Engine {
	return New(store, tenants, adapter, gen, media, nil, testLogger(), EngineConfig{HistoryLimit: 10})
}

func TestProcessTextEvent(t *testing.T) {
	store := newFakeStore()
	tenants := &fakeTenants{cfg: activeConfig(), tone: &repo.Tone{Instructions: "Be brief."}}
	adapter := &fakeAdapter{}
	gen := &fakeGenerator{reply: "hi there"}
	engine := newTestEngine(store, tenants, adapter, gen, &fakeMedia{})

	if err := engine.ProcessEvent(context.Background(), textEventBody("wamid.1")); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(store.messages) != 2 {
		t.Fatalf("expected inbound and outbound rows, got %d", len(store.messages))
	}
	inbound, outbound := store.messages[0], store.messages[1]
	if inbound.Direction != repo.DirectionInbound || inbound.ProviderID != "wamid.1" {
		t.Fatalf("unexpected inbound row: %+v", inbound)
	}
	if inbound.FromNumber != "628111" || inbound.ToNumber != "111222" {
		t.Fatalf("unexpected inbound parties: %+v", inbound)
	}
	if outbound.Direction != repo.DirectionOutbound || outbound.Content == nil || *outbound.Content != "hi there" {
		t.Fatalf("unexpected outbound row: %+v", outbound)
	}
	if !strings.HasPrefix(outbound.ProviderID, "ai_wamid.1_") {
		t.Fatalf("outbound provider id must derive from the inbound id, got %q", outbound.ProviderID)
	}
	if adapter.sentTo != "628111" || adapter.sentBody != "hi there" {
		t.Fatalf("reply not delivered to sender: to=%q body=%q", adapter.sentTo, adapter.sentBody)
	}
	if gen.lastReq.ToneInstructions != "Be brief." {
		t.Fatalf("tone not threaded through, got %q", gen.lastReq.ToneInstructions)
	}
	if !store.historyCalled {
		t.Fatal("history was not fetched")
	}
}

func TestProcessStatusCallbackIsNoOp(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(store, &fakeTenants{cfg: activeConfig()}, &fakeAdapter{}, &fakeGenerator{}, &fakeMedia{})

	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "111222"},
			"statuses": [{"id": "wamid.x", "status": "read"}]
		}}]}]
	}`)
	if err := engine.ProcessEvent(context.Background(), body); err != nil {
		t.Fatalf("status callback must be acknowledged: %v", err)
	}
	if store.convCalls != 0 || len(store.messages) != 0 {
		t.Fatal("status callback must not touch the store")
	}
}

func TestProcessMalformedPayload(t *testing.T) {
	engine := newTestEngine(newFakeStore(), &fakeTenants{}, &fakeAdapter{}, &fakeGenerator{}, &fakeMedia{})

	err := engine.ProcessEvent(context.Background(), []byte(`{"object":"page"}`))
	if !errors.Is(err, wa.ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestProcessUnknownChannel(t *testing.T) {
	store := newFakeStore()
	tenants := &fakeTenants{cfgErr: repo.ErrNotFound}
	adapter := &fakeAdapter{}
	engine := newTestEngine(store, tenants, adapter, &fakeGenerator{}, &fakeMedia{})

	if err := engine.ProcessEvent(context.Background(), textEventBody("wamid.1")); err != nil {
		t.Fatalf("unknown channel must be acknowledged: %v", err)
	}
	if store.convCalls != 0 || adapter.sendCalls != 0 {
		t.Fatal("unknown channel must not write or send")
	}
}

func TestProcessDuplicateMessage(t *testing.T) {
	store := newFakeStore()
	store.duplicate = true
	adapter := &fakeAdapter{}
	gen := &fakeGenerator{reply: "hi"}
	engine := newTestEngine(store, &fakeTenants{cfg: activeConfig()}, adapter, gen, &fakeMedia{})

	if err := engine.ProcessEvent(context.Background(), textEventBody("wamid.1")); err != nil {
		t.Fatalf("duplicate must be acknowledged: %v", err)
	}
	if gen.calls != 0 {
		t.Fatal("duplicate must not invoke the generator")
	}
	if adapter.sendCalls != 0 {
		t.Fatal("duplicate must not send a reply")
	}
}

func TestProcessGenerationFailureSendsApology(t *testing.T) {
	store := newFakeStore()
	adapter := &fakeAdapter{}
	gen := &fakeGenerator{err: ai.ErrGenerationFailed}
	engine := newTestEngine(store, &fakeTenants{cfg: activeConfig()}, adapter, gen, &fakeMedia{})

	if err := engine.ProcessEvent(context.Background(), textEventBody("wamid.1")); err != nil {
		t.Fatalf("generation failure must still acknowledge: %v", err)
	}
	if adapter.sentBody != ApologyReply {
		t.Fatalf("expected apology reply, got %q", adapter.sentBody)
	}
	outbound := store.messages[len(store.messages)-1]
	if outbound.Content == nil || *outbound.Content != ApologyReply {
		t.Fatalf("apology must be persisted as the outbound row, got %+v", outbound)
	}
}

func TestProcessMediaDownloadFailureIsRecoverable(t *testing.T) {
	store := newFakeStore()
	adapter := &fakeAdapter{downloadErr: wa.ErrMediaDownloadFailed}
	gen := &fakeGenerator{err: ai.ErrMissingMedia}
	engine := newTestEngine(store, &fakeTenants{cfg: activeConfig()}, adapter, gen, &fakeMedia{})

	if err := engine.ProcessEvent(context.Background(), imageEventBody()); err != nil {
		t.Fatalf("media failure must still acknowledge: %v", err)
	}
	if gen.lastReq.LocalFilePath != "" {
		t.Fatalf("failed download must yield an empty local path, got %q", gen.lastReq.LocalFilePath)
	}
	if adapter.sentBody != ApologyReply {
		t.Fatalf("expected apology reply, got %q", adapter.sentBody)
	}
	if len(store.mediaFiles) != 0 {
		t.Fatal("no media record must be written on download failure")
	}
}

func TestProcessMediaCredentialExpiry(t *testing.T) {
	store := newFakeStore()
	adapter := &fakeAdapter{downloadErr: wa.ErrCredentialExpired}
	gen := &fakeGenerator{err: ai.ErrMissingMedia}
	engine := newTestEngine(store, &fakeTenants{cfg: activeConfig()}, adapter, gen, &fakeMedia{})

	if err := engine.ProcessEvent(context.Background(), imageEventBody()); err != nil {
		t.Fatalf("expired credential on download must still acknowledge: %v", err)
	}
	if adapter.sentBody != ApologyReply {
		t.Fatalf("expected apology reply, got %q", adapter.sentBody)
	}
	if len(store.mediaFiles) != 0 {
		t.Fatal("no media record may be written")
	}
}

func TestProcessMediaSuccessRecordsFile(t *testing.T) {
	store := newFakeStore()
	adapter := &fakeAdapter{downloadData: "jpeg-bytes"}
	gen := &fakeGenerator{reply: "nice photo"}
	media := &fakeMedia{path: "uploads/images/biz-1_wamid.img_1.jpg"}
	engine := newTestEngine(store, &fakeTenants{cfg: activeConfig()}, adapter, gen, media)

	if err := engine.ProcessEvent(context.Background(), imageEventBody()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if media.saved != "jpeg-bytes" {
		t.Fatalf("downloaded bytes not stored, got %q", media.saved)
	}
	if gen.lastReq.LocalFilePath != media.path {
		t.Fatalf("generator must receive the stored path, got %q", gen.lastReq.LocalFilePath)
	}
	if len(store.mediaFiles) != 1 {
		t.Fatalf("expected one media record, got %d", len(store.mediaFiles))
	}
	record := store.mediaFiles[0]
	if record.LocalPath != media.path || record.FileSize != int64(len("jpeg-bytes")) {
		t.Fatalf("unexpected media record: %+v", record)
	}
	if store.localPaths[record.MessageID] != media.path {
		t.Fatal("inbound message row must reference the local media path")
	}
}

func TestProcessCredentialExpiryOnSend(t *testing.T) {
	store := newFakeStore()
	adapter := &fakeAdapter{sendErr: wa.ErrCredentialExpired}
	gen := &fakeGenerator{reply: "hi"}
	engine := newTestEngine(store, &fakeTenants{cfg: activeConfig()}, adapter, gen, &fakeMedia{})

	if err := engine.ProcessEvent(context.Background(), textEventBody("wamid.1")); err != nil {
		t.Fatalf("send failure must not change the acknowledgement: %v", err)
	}
	if len(store.messages) != 2 {
		t.Fatal("outbound row must be persisted even when delivery fails")
	}
}

func TestProcessInboundStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.insertErr = errors.New("connection refused")
	adapter := &fakeAdapter{}
	engine := newTestEngine(store, &fakeTenants{cfg: activeConfig()}, adapter, &fakeGenerator{reply: "hi"}, &fakeMedia{})

	if err := engine.ProcessEvent(context.Background(), textEventBody("wamid.1")); err == nil {
		t.Fatal("losing the inbound row must be a hard failure")
	}
	if adapter.sendCalls != 0 {
		t.Fatal("no reply may be sent when the inbound row is lost")
	}
}

func TestProcessHistoryFailureIsHard(t *testing.T) {
	store := newFakeStore()
	store.historyErr = errors.New("connection refused")
	engine := newTestEngine(store, &fakeTenants{cfg: activeConfig()}, &fakeAdapter{}, &fakeGenerator{reply: "hi"}, &fakeMedia{})

	if err := engine.ProcessEvent(context.Background(), textEventBody("wamid.1")); err == nil {
		t.Fatal("history failure must be a hard failure")
	}
}

func TestProcessToneFailureIsRecoverable(t *testing.T) {
	store := newFakeStore()
	tenants := &fakeTenants{cfg: activeConfig(), toneErr: errors.New("timeout")}
	adapter := &fakeAdapter{}
	gen := &fakeGenerator{reply: "hi"}
	engine := newTestEngine(store, tenants, adapter, gen, &fakeMedia{})

	if err := engine.ProcessEvent(context.Background(), textEventBody("wamid.1")); err != nil {
		t.Fatalf("tone failure must not abort: %v", err)
	}
	if gen.lastReq.ToneInstructions != "" {
		t.Fatalf("failed tone lookup must fall back to no instructions, got %q", gen.lastReq.ToneInstructions)
	}
	if adapter.sentBody != "hi" {
		t.Fatalf("reply must still be delivered, got %q", adapter.sentBody)
	}
}
