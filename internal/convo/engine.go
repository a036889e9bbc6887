// Package convo contains the webhook orchestrator: it drives one inbound
// event through parsing, tenant resolution, persistence, media retrieval,
// response generation and delivery.
package convo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"wa-bridge/internal/ai"
	"wa-bridge/internal/logging"
	"wa-bridge/internal/metrics"
	"wa-bridge/internal/repo"
	"wa-bridge/internal/wa"
)

// ApologyReply is the one fixed user-facing fallback. The end user always
// receives either the real reply or this string, never a raw error.
const ApologyReply = "Sorry, I encountered an error processing your message. Please try again."

// Store is the conversation-store surface the engine consumes.
type Store interface {
	CreateOrGetConversation(ctx context.Context, businessID, phoneNumber string) (*repo.Conversation, error)
	InsertMessage(ctx context.Context, msg repo.Message) (*repo.Message, bool, error)
	RecentHistory(ctx context.Context, businessID, phoneNumber, excludeMessageID string, limit int) ([]repo.HistoryEntry, error)
	InsertMediaFile(ctx context.Context, file repo.MediaFile) (*repo.MediaFile, error)
	SetMessageLocalPath(ctx context.Context, messageID, path string) error
}

// TenantResolver is the business-directory surface the engine consumes.
type TenantResolver interface {
	ResolveChannelConfig(ctx context.Context, phoneNumberID string) (*repo.ChannelConfig, error)
	DefaultTone(ctx context.Context, businessID string) (*repo.Tone, error)
}

// ChannelAdapter is the provider surface the engine consumes. Credentials
// are passed per call; the adapter holds no tenant state.
type ChannelAdapter interface {
	DownloadMedia(ctx context.Context, creds wa.Credentials, mediaID string) (io.ReadCloser, error)
	SendText(ctx context.Context, creds wa.Credentials, to, body string) (*wa.SendReceipt, error)
}

// Generator produces a reply string for one inbound message.
type Generator interface {
	Reply(ctx context.Context, req ai.Request) (string, error)
}

// MediaStore persists downloaded media locally.
type MediaStore interface {
	Save(kind, name string, r io.Reader) (string, int64, error)
}

// EngineConfig carries orchestrator tunables.
type EngineConfig struct {
	HistoryLimit int
}

// Engine ties the pipeline together for one event at a time. Instances are
// safe for concurrent use; all per-event state lives on the stack.
type Engine struct {
	store   Store
	tenants TenantResolver
	adapter ChannelAdapter
	gen     Generator
	media   MediaStore
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     EngineConfig
}

// New creates an Engine.
func New(store Store, tenants TenantResolver, adapter ChannelAdapter, gen Generator, media MediaStore, metricRegistry *metrics.Metrics, logger *slog.Logger, cfg EngineConfig) *Engine {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &Engine{
		store:   store,
		tenants: tenants,
		adapter: adapter,
		gen:     gen,
		media:   media,
		metrics: metricRegistry,
		logger:  logger.With("component", "convo"),
		cfg:     cfg,
	}
}

// ProcessEvent runs one webhook body through the pipeline. A nil return means
// the provider gets a success acknowledgement; a non-nil return is a hard
// failure the provider should retry (or wa.ErrMalformedPayload, which it
// should not).
func (e *Engine) ProcessEvent(ctx context.Context, body []byte) error {
	event, err := wa.ParseInbound(body)
	if err != nil {
		e.countOutcome("malformed")
		return err
	}
	if event == nil {
		// Status/delivery callback; frequent and uninteresting.
		e.countOutcome("ignored")
		return nil
	}

	cfg, err := e.tenants.ResolveChannelConfig(ctx, event.PhoneNumberID)
	if errors.Is(err, repo.ErrNotFound) {
		// Unknown or deprovisioned channel. Acknowledge and drop: there is
		// no tenant to notify and a retry cannot succeed.
		e.logger.Info("no channel config for phone number", "phone_number_id", event.PhoneNumberID)
		e.countOutcome("unknown_channel")
		return nil
	}
	if err != nil {
		e.countOutcome("hard_failure")
		return fmt.Errorf("resolve channel config: %w", err)
	}

	creds := wa.Credentials{PhoneNumberID: cfg.PhoneNumberID, AccessToken: cfg.AccessToken}
	logger := e.logger.With("business_id", cfg.BusinessID, "message_id", event.MessageID)

	var toneInstructions string
	tone, err := e.tenants.DefaultTone(ctx, cfg.BusinessID)
	if err != nil {
		// A reply without styling beats no reply.
		logger.Warn("tone lookup failed", "error", err)
	} else if tone != nil {
		toneInstructions = tone.Instructions
	}

	conversation, err := e.store.CreateOrGetConversation(ctx, cfg.BusinessID, event.From)
	if err != nil {
		e.countOutcome("hard_failure")
		return fmt.Errorf("create or get conversation: %w", err)
	}

	// The inbound message is persisted before any AI work so it survives
	// every downstream failure.
	inbound, inserted, err := e.store.InsertMessage(ctx, repo.Message{
		BusinessID:     cfg.BusinessID,
		ConversationID: conversation.ID,
		ProviderID:     event.MessageID,
		FromNumber:     event.From,
		ToNumber:       event.PhoneNumberID,
		Type:           string(event.Type),
		Content:        optional(event.Content),
		MediaURL:       optional(event.MediaURL),
		Direction:      repo.DirectionInbound,
	})
	if err != nil {
		e.countOutcome("hard_failure")
		return fmt.Errorf("save inbound message: %w", err)
	}
	if !inserted {
		// Provider redelivery of an id we already handled.
		logger.Info("duplicate provider message id, skipping")
		e.countOutcome("duplicate")
		return nil
	}
	if e.metrics != nil {
		e.metrics.InboundMessages.WithLabelValues(string(event.Type)).Inc()
	}

	localPath := e.resolveMedia(ctx, logger, creds, cfg.BusinessID, event, inbound.ID)

	history, err := e.store.RecentHistory(ctx, cfg.BusinessID, event.From, inbound.ID, e.cfg.HistoryLimit)
	if err != nil {
		e.countOutcome("hard_failure")
		return fmt.Errorf("fetch history: %w", err)
	}

	reply := e.generateReply(ctx, logger, event, localPath, history, toneInstructions)

	outboundProviderID := fmt.Sprintf("ai_%s_%d", event.MessageID, time.Now().UnixMilli())
	if _, _, err := e.store.InsertMessage(ctx, repo.Message{
		BusinessID:     cfg.BusinessID,
		ConversationID: conversation.ID,
		ProviderID:     outboundProviderID,
		FromNumber:     event.PhoneNumberID,
		ToNumber:       event.From,
		Type:           string(wa.TypeText),
		Content:        optional(reply),
		Direction:      repo.DirectionOutbound,
	}); err != nil {
		// Losing the outbound record breaks future context, so this aborts.
		e.countOutcome("hard_failure")
		return fmt.Errorf("save outbound message: %w", err)
	}

	// Delivery failures never change the acknowledgement already owed to the
	// provider; webhook retry semantics are independent of send success.
	if _, err := e.adapter.SendText(ctx, creds, event.From, reply); err != nil {
		if errors.Is(err, wa.ErrCredentialExpired) {
			e.alertCredentialExpired(logger, cfg.PhoneNumberID, "send")
		} else {
			logger.Error("send reply failed", "error", err)
		}
		if e.metrics != nil {
			e.metrics.OutboundMessages.WithLabelValues("failed").Inc()
		}
	} else if e.metrics != nil {
		e.metrics.OutboundMessages.WithLabelValues("sent").Inc()
	}

	e.countOutcome("processed")
	return nil
}

// resolveMedia downloads and records media for image/audio events. Every
// failure is recoverable: it returns an empty path and the generator raises
// missing-media downstream, which becomes the apology reply.
func (e *Engine) resolveMedia(ctx context.Context, logger *slog.Logger, creds wa.Credentials, businessID string, event *wa.InboundEvent, messageID string) string {
	if !event.HasMedia() || event.MediaID == "" {
		return ""
	}

	stream, err := e.adapter.DownloadMedia(ctx, creds, event.MediaID)
	if err != nil {
		if errors.Is(err, wa.ErrCredentialExpired) {
			e.alertCredentialExpired(logger, creds.PhoneNumberID, "media_download")
		} else {
			logger.Warn("media download failed", "media_id", event.MediaID, "error", err)
		}
		return ""
	}
	defer stream.Close()

	name := fmt.Sprintf("%s_%s_%d%s", businessID, event.MessageID, time.Now().UnixMilli(), extensionFor(event.Type))
	path, size, err := e.media.Save(string(event.Type), name, stream)
	if err != nil {
		logger.Warn("media save failed", "media_id", event.MediaID, "error", err)
		return ""
	}

	if _, err := e.store.InsertMediaFile(ctx, repo.MediaFile{
		BusinessID: businessID,
		MessageID:  messageID,
		FileType:   string(event.Type),
		LocalPath:  path,
		FileSize:   size,
		MimeType:   optional(event.MimeType),
	}); err != nil {
		logger.Warn("media record insert failed", "error", err)
	}
	if err := e.store.SetMessageLocalPath(ctx, messageID, path); err != nil {
		logger.Warn("message local path update failed", "error", err)
	}

	return path
}

// generateReply invokes the generator and absorbs every generation failure
// into the fixed apology; the pipeline never aborts at this stage.
func (e *Engine) generateReply(ctx context.Context, logger *slog.Logger, event *wa.InboundEvent, localPath string, history []repo.HistoryEntry, toneInstructions string) string {
	reply, err := e.gen.Reply(ctx, ai.Request{
		Type:             event.Type,
		Content:          event.Content,
		LocalFilePath:    localPath,
		History:          history,
		ToneInstructions: toneInstructions,
	})
	if err != nil {
		logger.Warn("reply generation failed", "type", event.Type, "error", err)
		if e.metrics != nil {
			e.metrics.Errors.WithLabelValues("generator").Inc()
		}
		return ApologyReply
	}
	return reply
}

func (e *Engine) alertCredentialExpired(logger *slog.Logger, phoneNumberID, stage string) {
	logging.Alert(logger, "credential_expired").Error("channel credential expired",
		"phone_number_id", phoneNumberID, "stage", stage)
	if e.metrics != nil {
		e.metrics.CredentialExpiry.WithLabelValues(phoneNumberID).Inc()
	}
}

func (e *Engine) countOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.WebhookEvents.WithLabelValues(outcome).Inc()
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func extensionFor(t wa.MessageType) string {
	switch t {
	case wa.TypeImage:
		return ".jpg"
	case wa.TypeAudio:
		return ".ogg"
	default:
		return ".bin"
	}
}
