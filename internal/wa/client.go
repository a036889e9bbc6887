package wa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wa-bridge/internal/metrics"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v18.0"

// Graph error codes that signal an invalidated access token.
const (
	graphCodeAuthException = 190
	graphCodeSessionError  = 102
)

// Client provides typed access to the WhatsApp Business Cloud API. It holds
// no tenant state: credentials are threaded through every call.
type Client struct {
	logger  *slog.Logger
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds Graph API client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a new Cloud API client.
func New(cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultGraphBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "wa"),
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
		metrics: metrics,
	}
}

type graphErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText delivers a text reply to a counterparty number.
func (c *Client) SendText(ctx context.Context, creds Credentials, to, body string) (*SendReceipt, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	return c.sendMessage(ctx, creds, payload)
}

// SendImage delivers an image by link with an optional caption.
func (c *Client) SendImage(ctx context.Context, creds Credentials, to, link, caption string) (*SendReceipt, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image":             map[string]string{"link": link, "caption": caption},
	}
	return c.sendMessage(ctx, creds, payload)
}

// SendAudio delivers an audio message by link.
func (c *Client) SendAudio(ctx context.Context, creds Credentials, to, link string) (*SendReceipt, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "audio",
		"audio":             map[string]string{"link": link},
	}
	return c.sendMessage(ctx, creds, payload)
}

func (c *Client) sendMessage(ctx context.Context, creds Credentials, payload map[string]any) (*SendReceipt, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal send payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, creds.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe("messages", "error", started)
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := c.classifyFailure(resp)
		if kind == ErrCredentialExpired {
			c.observe("messages", "expired", started)
			return nil, fmt.Errorf("%w: send rejected for %s", ErrCredentialExpired, creds.PhoneNumberID)
		}
		c.observe("messages", "error", started)
		return nil, fmt.Errorf("%w: status %d", ErrSendFailed, resp.StatusCode)
	}

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.observe("messages", "error", started)
		return nil, fmt.Errorf("%w: decode response: %v", ErrSendFailed, err)
	}
	c.observe("messages", "ok", started)

	receipt := &SendReceipt{}
	if len(parsed.Messages) > 0 {
		receipt.MessageID = parsed.Messages[0].ID
	}
	return receipt, nil
}

type mediaLookupResponse struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// DownloadMedia fetches media bytes by reference id. Two authenticated calls:
// resolve the id to a transient URL, then fetch the bytes from it. The caller
// owns the returned reader.
func (c *Client) DownloadMedia(ctx context.Context, creds Credentials, mediaID string) (io.ReadCloser, error) {
	lookupURL := fmt.Sprintf("%s/%s", c.baseURL, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe("media_lookup", "error", started)
		return nil, fmt.Errorf("%w: lookup: %v", ErrMediaDownloadFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		kind := c.classifyFailure(resp)
		resp.Body.Close()
		if kind == ErrCredentialExpired {
			c.observe("media_lookup", "expired", started)
			return nil, fmt.Errorf("%w: media lookup for %s", ErrCredentialExpired, creds.PhoneNumberID)
		}
		c.observe("media_lookup", "error", started)
		return nil, fmt.Errorf("%w: lookup status %d", ErrMediaDownloadFailed, resp.StatusCode)
	}

	var lookup mediaLookupResponse
	err = json.NewDecoder(resp.Body).Decode(&lookup)
	resp.Body.Close()
	if err != nil {
		c.observe("media_lookup", "error", started)
		return nil, fmt.Errorf("%w: decode lookup: %v", ErrMediaDownloadFailed, err)
	}
	if lookup.URL == "" {
		c.observe("media_lookup", "error", started)
		return nil, fmt.Errorf("%w: lookup returned no url", ErrMediaDownloadFailed)
	}
	c.observe("media_lookup", "ok", started)

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, lookup.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build media download request: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	started = time.Now()
	dlResp, err := c.http.Do(dlReq)
	if err != nil {
		c.observe("media_download", "error", started)
		return nil, fmt.Errorf("%w: download: %v", ErrMediaDownloadFailed, err)
	}
	if dlResp.StatusCode != http.StatusOK {
		kind := c.classifyFailure(dlResp)
		dlResp.Body.Close()
		if kind == ErrCredentialExpired {
			c.observe("media_download", "expired", started)
			return nil, fmt.Errorf("%w: media download for %s", ErrCredentialExpired, creds.PhoneNumberID)
		}
		c.observe("media_download", "error", started)
		return nil, fmt.Errorf("%w: download status %d", ErrMediaDownloadFailed, dlResp.StatusCode)
	}
	c.observe("media_download", "ok", started)

	return dlResp.Body, nil
}

// classifyFailure inspects a non-200 response and reports whether it signals
// an expired credential. The response body is partially consumed.
func (c *Client) classifyFailure(resp *http.Response) error {
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrCredentialExpired
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if err != nil {
		return ErrSendFailed
	}
	var parsed graphErrorBody
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Error.Code == graphCodeAuthException || parsed.Error.Code == graphCodeSessionError {
			return ErrCredentialExpired
		}
		if parsed.Error.Type == "OAuthException" {
			return ErrCredentialExpired
		}
	}
	return ErrSendFailed
}

func (c *Client) observe(endpoint, status string, started time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.GraphRequests.WithLabelValues(endpoint, status).Inc()
	c.metrics.GraphLatency.WithLabelValues(endpoint, status).Observe(time.Since(started).Seconds())
}
