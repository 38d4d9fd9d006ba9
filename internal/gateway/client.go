package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Client performs upstream GETs with a bounded exponential retry. 4xx
// answers are not retried.
type Client struct {
	http       *http.Client
	maxRetries uint64
	logger     *zap.Logger
}

// NewClient creates a client with the given per-request timeout
func NewClient(timeout time.Duration, maxRetries uint64, logger *zap.Logger) *Client {
	return &Client{
		http:       &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// Get returns the body of a 2xx response to GET rawURL
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
	return backoff.RetryNotifyWithData(
		func() ([]byte, error) {
			body, err := c.do(ctx, rawURL)
			if httpErr, ok := err.(*HTTPError); ok && httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusTooManyRequests {
				return nil, backoff.Permanent(err)
			}
			return body, err
		},
		policy,
		func(err error, wait time.Duration) {
			c.logger.Debug("retrying upstream request",
				zap.String("url", redact(rawURL)),
				zap.Duration("wait", wait),
				zap.Error(err))
		},
	)
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/x-protobuf")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{
			URL:        redact(rawURL),
			Status:     resp.Status,
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrUpstreamUnavailable, err)
	}
	return body, nil
}

// getJSON fetches rawURL and decodes the body as T
func getJSON[T any](ctx context.Context, c *Client, rawURL string) (T, error) {
	var out T
	body, err := c.Get(ctx, rawURL)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s: %w", redact(rawURL), err)
	}
	return out, nil
}

// redact drops the query string, which may carry API credentials
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.Redacted()
}

func join(base string, elems ...string) string {
	out, err := url.JoinPath(base, elems...)
	if err != nil {
		return base
	}
	return out
}
