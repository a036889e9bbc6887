package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"wa-bridge/internal/metrics"
	"wa-bridge/internal/repo"
	"wa-bridge/internal/wa"
)

const (
	baseSystemPrompt = "You are a helpful AI assistant integrated with WhatsApp. " +
		"Be conversational, friendly, and helpful. Keep responses concise but informative. " +
		"If you're analyzing images, describe what you see clearly and provide relevant insights."

	defaultImagePrompt = "Please analyze this image and describe what you see. " +
		"If there is any text in the image, please read it out."

	// Token budgets are fixed per call kind; vision gets more headroom since
	// descriptions run longer than conversational replies.
	maxTextTokens   = 1000
	maxVisionTokens = 1200

	chatTemperature = 0.7
)

// Client generates replies for normalized inbound messages. State-free per
// call; dispatch is purely by modality.
type Client struct {
	api     *openai.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     Config
}

// Config holds OpenAI client configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
	AudioModel  string
	Timeout     time.Duration
}

// Request carries everything needed to generate one reply.
type Request struct {
	Type             wa.MessageType
	Content          string
	LocalFilePath    string
	History          []repo.HistoryEntry
	ToneInstructions string
}

// New creates a response generator client.
func New(cfg Config, logger *slog.Logger, metricRegistry *metrics.Metrics) *Client {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.AudioModel == "" {
		cfg.AudioModel = openai.Whisper1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		logger:  logger.With("component", "ai"),
		metrics: metricRegistry,
		cfg:     cfg,
	}
}

// Reply produces a reply string for one inbound message.
func (c *Client) Reply(ctx context.Context, req Request) (string, error) {
	switch req.Type {
	case wa.TypeText:
		return c.chat(ctx, req.ToneInstructions, req.History, req.Content)
	case wa.TypeImage:
		return c.replyToImage(ctx, req)
	case wa.TypeAudio:
		return c.replyToAudio(ctx, req)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedModality, req.Type)
	}
}

// chat runs one text completion: system prompt (base + tone), prior turns
// oldest first, then the current user content.
func (c *Client) chat(ctx context.Context, tone string, history []repo.HistoryEntry, userContent string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(tone),
	})
	for _, turn := range history {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userContent})

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    msgs,
		MaxTokens:   maxTextTokens,
		Temperature: chatTemperature,
	})
	if err != nil {
		c.observe("chat", "error", started)
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	c.observe("chat", "ok", started)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrGenerationFailed)
	}
	return resp.Choices[0].Message.Content, nil
}

// replyToImage first obtains a vision description with a neutral analysis
// prompt, then folds description and caption into a regular completion so the
// tone governs the final voice.
func (c *Client) replyToImage(ctx context.Context, req Request) (string, error) {
	data, err := readMediaFile(req.LocalFilePath)
	if err != nil {
		return "", err
	}

	prompt := req.Content
	if prompt == "" {
		prompt = defaultImagePrompt
	}

	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
	started := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.cfg.VisionModel,
		MaxTokens: maxVisionTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: imageURL}},
			},
		}},
		Temperature: chatTemperature,
	})
	if err != nil {
		c.observe("vision", "error", started)
		return "", fmt.Errorf("%w: vision: %v", ErrGenerationFailed, err)
	}
	c.observe("vision", "ok", started)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty vision completion", ErrGenerationFailed)
	}
	description := resp.Choices[0].Message.Content

	followUp := fmt.Sprintf("The user sent an image. Image description: %q.", description)
	if req.Content != "" {
		followUp += fmt.Sprintf(" Their caption was: %q.", req.Content)
	}
	followUp += " Please respond to this message."
	return c.chat(ctx, req.ToneInstructions, req.History, followUp)
}

// replyToAudio transcribes the voice note deterministically, then routes the
// transcript through the regular text path.
func (c *Client) replyToAudio(ctx context.Context, req Request) (string, error) {
	if _, err := readMediaFile(req.LocalFilePath); err != nil {
		return "", err
	}

	started := time.Now()
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:       c.cfg.AudioModel,
		FilePath:    req.LocalFilePath,
		Format:      openai.AudioResponseFormatText,
		Temperature: 0,
	})
	if err != nil {
		c.observe("transcribe", "error", started)
		return "", fmt.Errorf("%w: %v", ErrTranscriptionFailed, err)
	}
	c.observe("transcribe", "ok", started)

	transcript := strings.TrimSpace(resp.Text)
	if transcript == "" {
		return "", fmt.Errorf("%w: empty transcript", ErrTranscriptionFailed)
	}

	userContent := fmt.Sprintf("Transcribed audio: %q. Please respond to this message.", transcript)
	return c.chat(ctx, req.ToneInstructions, req.History, userContent)
}

func systemPrompt(tone string) string {
	if strings.TrimSpace(tone) == "" {
		return baseSystemPrompt
	}
	return baseSystemPrompt + "\n\nTone of voice instructions:\n" + tone
}

// readMediaFile loads a locally retrieved media copy. Absent, unreadable and
// zero-byte files are all reported as missing media.
func readMediaFile(path string) ([]byte, error) {
	if path == "" {
		return nil, ErrMissingMedia
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingMedia, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file %s", ErrMissingMedia, path)
	}
	return data, nil
}

func (c *Client) observe(operation, status string, started time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.OpenAIRequests.WithLabelValues(operation, status).Inc()
	c.metrics.OpenAILatency.WithLabelValues(operation, status).Observe(time.Since(started).Seconds())
}
