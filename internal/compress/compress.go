// Package compress turns a captured conversation into a structured context
// handoff using the OpenAI chat completions API.  It is a single
// user-initiated request with one bounded retry on rate limiting; no
// exponential backoff, no circuit breaker.
package compress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultURL is the OpenAI chat completions endpoint.
	DefaultURL = "https://api.openai.com/v1/chat/completions"

	model       = "gpt-4o-mini"
	maxTokens   = 1500
	temperature = 0.3

	// rateLimitBackoff is the fixed wait before the single 429 retry.
	rateLimitBackoff = 15 * time.Second
)

var (
	// ErrRateLimited is returned when the API is still rate limited after
	// the single retry.
	ErrRateLimited = errors.New("rate limit exceeded, wait a minute and try again")
	// ErrBadAPIKey is returned on an authorization failure.
	ErrBadAPIKey = errors.New("invalid API key")
)

// Message is one turn of the captured conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client calls the compression model.
type Client struct {
	hc     *http.Client
	url    string
	apiKey string
	lg     *slog.Logger
	sleep  func(time.Duration)
	now    func() time.Time
}

// Option is the Client option.
type Option func(*Client)

// WithURL overrides the API endpoint (tests).
func WithURL(u string) Option {
	return func(c *Client) {
		c.url = u
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(c *Client) {
		if lg != nil {
			c.lg = lg
		}
	}
}

func withSleep(f func(time.Duration)) Option {
	return func(c *Client) {
		c.sleep = f
	}
}

// New creates a compression client with the given API key.
func New(apiKey string, opt ...Option) *Client {
	c := &Client{
		hc:     &http.Client{Timeout: 90 * time.Second},
		url:    DefaultURL,
		apiKey: apiKey,
		lg:     slog.Default(),
		sleep:  time.Sleep,
		now:    time.Now,
	}
	for _, o := range opt {
		o(c)
	}
	return c
}

type apiRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type apiResponse struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Compress sends the conversation through the compression prompt and
// returns the structured handoff markdown.
func (c *Client) Compress(ctx context.Context, conversation []Message) (string, error) {
	prompt := compressionPrompt(Transcript(conversation), c.now())

	status, resp, err := c.post(ctx, prompt)
	if err != nil {
		return "", err
	}
	if status == http.StatusTooManyRequests {
		c.lg.InfoContext(ctx, "compress: rate limited, retrying once", "backoff", rateLimitBackoff)
		c.sleep(rateLimitBackoff)
		if status, resp, err = c.post(ctx, prompt); err != nil {
			return "", err
		}
	}

	switch {
	case status == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if resp.Error != nil && resp.Error.Message != "" {
			return "", fmt.Errorf("%w: %s", ErrBadAPIKey, resp.Error.Message)
		}
		return "", ErrBadAPIKey
	case status < 200 || status > 299:
		if resp.Error != nil && resp.Error.Message != "" {
			return "", errors.New(resp.Error.Message)
		}
		return "", fmt.Errorf("API error: %d", status)
	}

	return parseResponse(resp)
}

func (c *Client) post(ctx context.Context, prompt string) (int, apiResponse, error) {
	body, err := json.Marshal(apiRequest{
		Model:       model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return 0, apiResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, apiResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, apiResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, apiResponse{}, err
	}
	var ar apiResponse
	// a non-JSON error body is fine, the status code decides.
	_ = json.Unmarshal(raw, &ar)
	return resp.StatusCode, ar, nil
}

func parseResponse(resp apiResponse) (string, error) {
	if resp.Error != nil {
		msg := resp.Error.Message
		if msg == "" {
			msg = "OpenAI API error"
		}
		return "", errors.New(msg)
	}
	if len(resp.Choices) > 0 {
		if content := strings.TrimSpace(resp.Choices[0].Message.Content); content != "" {
			return content, nil
		}
	}
	return "", errors.New("unexpected OpenAI response format")
}

// Transcript renders the conversation as a labelled plain-text transcript.
func Transcript(conversation []Message) string {
	lines := make([]string, 0, len(conversation))
	for _, m := range conversation {
		label := "Assistant"
		if m.Role == "user" {
			label = "User"
		}
		lines = append(lines, label+": "+m.Content)
	}
	return strings.Join(lines, "\n\n")
}

// FailureHandoff renders the fallback handoff body used when compression
// itself failed: the error plus the raw transcript, so nothing is lost.
func FailureHandoff(err error, conversation []Message) string {
	return fmt.Sprintf("## CONTEXT HANDOFF (Compression failed)\n\n**Error:** %s\n\n### Raw transcript\n\n%s",
		err, Transcript(conversation))
}
