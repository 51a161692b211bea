// Package api is the HTTP JSON client for the PicklePick messaging endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/picklepick/ppchat/internal/auth"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds every request when Config.Timeout is unset.
const DefaultTimeout = 15 * time.Second

const maxErrorBody = 1024

// Config defines client settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls the remote messaging API with a bearer token.
type Client struct {
	base    string
	http    *http.Client
	timeout time.Duration
	tokens  auth.TokenSource
	logger  *zap.Logger
	reads   singleflight.Group
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config, tokens auth.TokenSource, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("api: base url required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: unsupported scheme %q", u.Scheme)
	}
	if tokens == nil {
		return nil, errors.New("api: token source required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		base:    strings.TrimRight(u.String(), "/"),
		http:    hc,
		timeout: timeout,
		tokens:  tokens,
		logger:  logger,
	}, nil
}

// ListMessages returns the full conversation with counterpartID, oldest first
// as sent by the server.
func (c *Client) ListMessages(ctx context.Context, counterpartID string) ([]WireMessage, error) {
	var out []WireMessage
	path := "/messages/" + url.PathEscape(counterpartID) + "/"
	if err := c.getShared(ctx, "list messages", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListConversations returns one entry per counterpart.
func (c *Client) ListConversations(ctx context.Context) ([]WireConversation, error) {
	var out []WireConversation
	if err := c.getShared(ctx, "list conversations", "/conversations/", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage posts an already-encoded message body to receiverID.
func (c *Client) SendMessage(ctx context.Context, receiverID, encoded string) (*SendAck, error) {
	const op = "send message"
	body, err := json.Marshal(SendRequest{ReceiverID: receiverID, Message: encoded})
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.do(ctx, op, http.MethodPost, "/messages/send/", body)
	if err != nil {
		return nil, err
	}
	var ack SendAck
	if len(bytes.TrimSpace(raw)) > 0 {
		// A non-object body is still a successful send.
		_ = json.Unmarshal(raw, &ack)
	}
	return &ack, nil
}

// Health checks that the API is reachable.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.do(ctx, "health", http.MethodGet, "/health/", nil)
	return err
}

// getShared collapses concurrent identical GETs into one request. The shared
// request runs detached from any single caller's cancellation and is bounded
// by the client timeout; each caller still returns as soon as its own ctx ends.
func (c *Client) getShared(ctx context.Context, op, path string, out any) error {
	ch := c.reads.DoChan(path, func() (any, error) {
		reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.do(reqCtx, op, http.MethodGet, path, nil)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return &TransportError{Op: op, Err: ctx.Err()}
	}
	if res.Err != nil {
		return res.Err
	}
	if err := json.Unmarshal(res.Val.([]byte), out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("request failed", zap.String("op", op), zap.Error(err))
		return nil, &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Debug("request rejected",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.Duration("took", time.Since(start)))
		return nil, &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
			Err:        fmt.Errorf("http %d", resp.StatusCode),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("request ok",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("took", time.Since(start)))
	return raw, nil
}
