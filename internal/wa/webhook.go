package wa

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"wa-bridge/internal/metrics"
)

const maxWebhookBodyBytes = 1 << 20

// EventProcessor handles one parsed-or-parseable webhook body.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, body []byte) error
}

// SecretResolver looks up the stored verification secret matching a
// presented handshake token across all active channel configs.
type SecretResolver interface {
	VerifySecret(ctx context.Context, token string) (string, error)
}

// WebhookHandler serves the provider webhook: GET for the subscription
// handshake, POST for events.
type WebhookHandler struct {
	logger         *slog.Logger
	metrics        *metrics.Metrics
	secrets        SecretResolver
	processor      EventProcessor
	processTimeout time.Duration
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(logger *slog.Logger, metrics *metrics.Metrics, secrets SecretResolver, processor EventProcessor, processTimeout time.Duration) *WebhookHandler {
	if processTimeout <= 0 {
		processTimeout = 2 * time.Minute
	}
	return &WebhookHandler{
		logger:         logger.With("component", "webhook"),
		metrics:        metrics,
		secrets:        secrets,
		processor:      processor,
		processTimeout: processTimeout,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleHandshake(w, r)
	case http.MethodPost:
		h.handleEvent(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleHandshake answers the provider's subscription confirmation. The
// failure response carries no body: internals must not leak to the caller.
func (h *WebhookHandler) handleHandshake(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	expected, err := h.secrets.VerifySecret(r.Context(), token)
	if err != nil {
		h.logger.Warn("handshake token matched no channel", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	echo, err := VerifyHandshake(mode, token, challenge, expected)
	if err != nil {
		h.logger.Warn("handshake rejected", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	h.logger.Info("handshake verified", "mode", mode)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(echo))
}

func (h *WebhookHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.countError("webhook_read")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Detach from the request context: if the provider closes the connection
	// early the pipeline still runs to completion, so the inbound message is
	// never lost. A local deadline bounds the work instead.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.processTimeout)
	defer cancel()

	if err := h.processor.ProcessEvent(ctx, body); err != nil {
		if errors.Is(err, ErrMalformedPayload) {
			h.countError("webhook_malformed")
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed processing webhook event", "error", err)
		h.countError("webhook_process")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *WebhookHandler) countError(component string) {
	if h.metrics != nil {
		h.metrics.Errors.WithLabelValues(component).Inc()
	}
}
