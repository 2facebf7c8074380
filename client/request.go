// Package client is the resilience layer consumed by dashboards and field
// tooling: a retrying request client, a self-healing stream subscriber, and a
// polling health manager with exponential reconnect backoff.
package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Options tunes the request client.
type Options struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string
	// APIKey is sent as X-API-Key on every request.
	APIKey string
	// DeviceID, when set, is sent as X-Device-ID alongside a fresh
	// X-Timestamp header.
	DeviceID string
	// DeviceSecret, when set, signs "{timestamp}.{body}" with HMAC-SHA256
	// into X-Signature.
	DeviceSecret string
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// BackoffMax caps the retry delay.
	BackoffMax time.Duration
}

// StatusError is a non-2xx response. Client-class statuses are never retried.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// IsClientError reports whether the status is 4xx.
func (e *StatusError) IsClientError() bool {
	return e.Code >= 400 && e.Code < 500
}

// Client wraps outbound HTTP calls with per-attempt timeouts and retries.
// Transport errors and 5xx responses retry with exponential backoff; 4xx
// responses propagate immediately.
type Client struct {
	opts   Options
	http   *http.Client
	logger *zap.SugaredLogger
}

// New creates a request client. Zero option fields fall back to defaults:
// 10s timeout, 3 retries, 1s base backoff capped at 30s.
func New(opts Options, logger *zap.SugaredLogger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 30 * time.Second
	}
	return &Client{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}
}

// Do sends one request and returns the response body. A non-nil body is
// JSON-encoded. Retries never outlive ctx.
func (c *Client) Do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(c.opts.BackoffBase, c.opts.BackoffMax, attempt-1)
			c.logger.Debugw("Retrying request",
				"method", method, "path", path, "attempt", attempt, "delay", delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}

		data, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return data, nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.IsClientError() {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.opts.MaxRetries+1, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("X-API-Key", c.opts.APIKey)
	}
	if c.opts.DeviceID != "" {
		timestamp := fmt.Sprintf("%d", time.Now().Unix())
		req.Header.Set("X-Device-ID", c.opts.DeviceID)
		req.Header.Set("X-Timestamp", timestamp)
		if c.opts.DeviceSecret != "" {
			mac := hmac.New(sha256.New, []byte(c.opts.DeviceSecret))
			fmt.Fprintf(mac, "%s.%s", timestamp, payload)
			req.Header.Set("X-Signature", hex.EncodeToString(mac.Sum(nil)))
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// backoffDelay returns min(base << attempt, max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
