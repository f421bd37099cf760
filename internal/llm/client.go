// Package llm calls an OpenAI-compatible chat-completion API with a primary
// model and a single fallback, under one bounded deadline.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Error kinds the handler maps onto distinct caller-facing messages.
var (
	// ErrTimeout means the completion call exceeded the configured bound.
	ErrTimeout = errors.New("completion timed out")
	// ErrEmptyReply means the API answered 2xx but carried no usable text.
	ErrEmptyReply = errors.New("completion returned an empty reply")
)

// HTTPError is a non-success status from the completion API after every
// model in the sequence has been tried. Body is kept for operator logs only.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("completion API returned status %d: %s", e.Status, e.Body)
}

// Config holds the completion-API settings, injected from internal/config.
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	FallbackModel string
	Temperature   float64
	MaxTokens     int
	Timeout       time.Duration
	SystemPrompt  string
}

// Client is safe for concurrent use; it holds no per-request state.
type Client struct {
	cfg        Config
	models     []string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient builds a completion client. The primary and fallback model ids
// form an ordered sequence tried until the first success.
func NewClient(cfg Config, log zerolog.Logger) *Client {
	models := []string{cfg.Model}
	if cfg.FallbackModel != "" && cfg.FallbackModel != cfg.Model {
		models = append(models, cfg.FallbackModel)
	}
	return &Client{
		cfg:    cfg,
		models: models,
		// No transport-level timeout: the total bound is the context
		// deadline set in complete, covering both attempts.
		httpClient: &http.Client{},
		log:        log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Reply sends the fixed system persona plus the user message and returns the
// assistant's text.
func (c *Client) Reply(ctx context.Context, userMessage string) (string, error) {
	return c.complete(ctx, c.cfg.SystemPrompt, userMessage, false)
}

// complete runs the model sequence under one deadline. An HTTP-level failure
// advances to the next model id; any other failure stops immediately.
func (c *Client) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var lastErr error
	for _, model := range c.models {
		text, err := c.call(ctx, model, system, user, jsonMode)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, c.cfg.Timeout)
		}
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			c.log.Warn().Str("model", model).Int("status", httpErr.Status).
				Msg("completion attempt failed, trying next model")
			lastErr = err
			continue
		}
		return "", err
	}
	return "", lastErr
}

func (c *Client) call(ctx context.Context, model, system, user string, jsonMode bool) (string, error) {
	payload := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if jsonMode {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send completion request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyReply
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
