// Package line sends outbound text messages through the LINE Messaging API.
package line

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

	"github.com/google/uuid"
)

// DefaultBaseURL is the production Messaging API host.
const DefaultBaseURL = "https://api.line.me"

const (
	replyPath = "/v2/bot/message/reply"
	pushPath  = "/v2/bot/message/push"

	// maxErrorBody caps how much of a failed response is kept.
	maxErrorBody = 64 * 1024
)

// ErrMissingToken is returned when no channel access token is configured.
var ErrMissingToken = errors.New("line: channel access token is not configured")

// APIError is a non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line api returned %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// TextMessage is the only outbound message type used.
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []TextMessage `json:"messages"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []TextMessage `json:"messages"`
}

// Config holds client settings.
type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client talks to the Messaging API with bearer-token auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client. An empty BaseURL means DefaultBaseURL.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		token:   cfg.AccessToken,
		http:    &http.Client{Timeout: timeout},
	}
}

// Reply answers one inbound event using its reply token.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	return c.post(ctx, replyPath, replyRequest{
		ReplyToken: replyToken,
		Messages:   []TextMessage{{Type: "text", Text: text}},
	}, "")
}

// Push sends text to a user id at any time.
// Each call carries a fresh X-Line-Retry-Key.
func (c *Client) Push(ctx context.Context, to, text string) error {
	return c.post(ctx, pushPath, pushRequest{
		To:       to,
		Messages: []TextMessage{{Type: "text", Text: text}},
	}, uuid.NewString())
}

func (c *Client) post(ctx context.Context, path string, body any, retryKey string) error {
	if c.token == "" {
		return ErrMissingToken
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if retryKey != "" {
		req.Header.Set("X-Line-Retry-Key", retryKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: respBody}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
