// Package httpclient wraps outbound HTTP with retry, exponential
// backoff, and rate-limit awareness. Every source adapter goes through
// this client.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"demandradar/internal/model"
)

const (
	// DefaultUserAgent mimics a desktop browser; several of the
	// upstream endpoints reject obvious bot agents.
	DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"

	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = 2.0 // seconds, delay = base^attempt + jitter
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	BackoffBase float64
	UserAgent   string
}

// Client retries transient failures with exponential backoff plus
// uniform jitter. Permanent failures (4xx other than 429, malformed
// responses) are returned immediately.
type Client struct {
	http        *http.Client
	maxAttempts int
	backoffBase float64
	userAgent   string

	// sleep and jitter are swappable so tests don't wait on real
	// backoff schedules.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// New creates a retrying client.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	return &Client{
		http:        &http.Client{Timeout: opts.Timeout},
		maxAttempts: opts.MaxAttempts,
		backoffBase: opts.BackoffBase,
		userAgent:   opts.UserAgent,
		sleep:       sleepCtx,
		jitter:      func() float64 { return 0.1 + rand.Float64()*0.4 },
	}
}

// Get fetches url and returns the response body. It retries transient
// failures up to the attempt bound, doubling the backoff delay after a
// 429. The last transient error is returned when attempts run out.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	var lastErr error
	rateLimited := false

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := math.Pow(c.backoffBase, float64(attempt)) + c.jitter()
			if rateLimited {
				delay *= 2
			}
			if err := c.sleep(ctx, time.Duration(delay*float64(time.Second))); err != nil {
				return nil, err
			}
		}

		body, err := c.get(ctx, url, headers)
		if err == nil {
			return body, nil
		}

		var te *model.TransientError
		if !errors.As(err, &te) {
			return nil, err
		}
		lastErr = err
		rateLimited = te.RateLimited()
	}

	return nil, lastErr
}

// GetJSON fetches url and decodes the JSON body into v. A body that
// fails to decode is a permanent error.
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, v any) error {
	body, err := c.Get(ctx, url, headers)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &model.PermanentError{Op: "GET " + url, Err: fmt.Errorf("decoding JSON: %w", err)}
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	op := "GET " + url

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &model.PermanentError{Op: op, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &model.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return nil, &model.TransientError{Op: op, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		io.Copy(io.Discard, resp.Body)
		return nil, &model.PermanentError{Op: op, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.TransientError{Op: op, Err: err}
	}
	return body, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
