// Package line implements the LINE Messaging API transport: webhook
// signature verification, event decoding, and the reply/push client.
package line

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
)

const (
	// DefaultAPIBase is the LINE Messaging API origin.
	DefaultAPIBase = "https://api.line.me"
	// MaxReplyMessages is the LINE limit on messages per reply call.
	MaxReplyMessages = 5
	// DefaultPushDelay spaces consecutive push calls.
	DefaultPushDelay = 900 * time.Millisecond

	maxErrorBody = 2048
)

// APIError is a non-2xx response from the Messaging API.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("line %s failed: %d %s", e.Op, e.Status, e.Body)
}

// Client sends replies and pushes. The access token is passed per call since
// each tenant channel has its own.
type Client struct {
	apiBase   string
	pushDelay time.Duration
	http      *http.Client
}

// NewClient creates a client. Empty apiBase means DefaultAPIBase; a negative
// pushDelay disables spacing.
func NewClient(apiBase string, pushDelay time.Duration, httpClient *http.Client) *Client {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if pushDelay == 0 {
		pushDelay = DefaultPushDelay
	}
	if pushDelay < 0 {
		pushDelay = 0
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		apiBase:   strings.TrimRight(apiBase, "/"),
		pushDelay: pushDelay,
		http:      httpClient,
	}
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []TextMessage `json:"messages"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []TextMessage `json:"messages"`
}

// Reply answers with up to MaxReplyMessages chunks in one call. Extra chunks are
// not sent; callers deliver them with Push.
func (c *Client) Reply(ctx context.Context, token, replyToken string, chunks []string) error {
	if replyToken == "" {
		return fmt.Errorf("line reply: empty reply token")
	}
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) > MaxReplyMessages {
		chunks = chunks[:MaxReplyMessages]
	}
	msgs := make([]TextMessage, 0, len(chunks))
	for _, ch := range chunks {
		msgs = append(msgs, NewText(ch))
	}
	return c.callAPI(ctx, "reply", token, "/v2/bot/message/reply", replyRequest{ReplyToken: replyToken, Messages: msgs})
}

// Push sends each chunk in its own call, waiting pushDelay between calls.
// It stops at the first failure or when ctx is done.
func (c *Client) Push(ctx context.Context, token, to string, chunks []string) error {
	return c.PushSequence(ctx, token, to, chunks, 0, c.pushDelay)
}

// PushSequence pushes chunks one per call, waiting first before the first call
// and between before each later call.
func (c *Client) PushSequence(ctx context.Context, token, to string, chunks []string, first, between time.Duration) error {
	if to == "" {
		return fmt.Errorf("line push: empty recipient")
	}
	for i, ch := range chunks {
		wait := between
		if i == 0 {
			wait = first
		}
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := c.callAPI(ctx, "push", token, "/v2/bot/message/push", pushRequest{To: to, Messages: []TextMessage{NewText(ch)}}); err != nil {
			return fmt.Errorf("push %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func (c *Client) callAPI(ctx context.Context, op, token, path string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("line %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	io.Copy(io.Discard, resp.Body)
	slog.Debug("line api ok", "op", op, "status", resp.StatusCode)
	return nil
}
