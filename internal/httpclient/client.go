package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Client wraps outbound provider calls with a hard per-attempt timeout,
// bounded retries for idempotent requests, exponential backoff with jitter,
// and Retry-After handling. Non-idempotent requests fail once.
type Client struct {
	httpClient *http.Client
	attempts   int
	timeout    time.Duration
	baseDelay  time.Duration
	maxDelay   time.Duration

	// sleep and jitter are overridable in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

type Config struct {
	Timeout   time.Duration // Default: 10s
	Attempts  int           // Default: 3
	BaseDelay time.Duration // Default: 250ms
	MaxDelay  time.Duration // Default: 5s
}

// Request is a provider-call description. GET and HEAD are retried on
// retryable failures; other methods only when ForceIdempotent is set.
type Request struct {
	Method          string
	URL             string
	Header          http.Header
	Body            []byte
	ForceIdempotent bool
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// TimeoutError marks an aborted in-flight call.
type TimeoutError struct {
	URL string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request to %s timed out", e.URL)
}

// HTTPError carries the last non-2xx status after retries are exhausted.
type HTTPError struct {
	Status int
	URL    string
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request to %s returned status %d", e.URL, e.Status)
}

var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 250 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 5 * time.Second
	}

	return &Client{
		httpClient: &http.Client{},
		attempts:   cfg.Attempts,
		timeout:    cfg.Timeout,
		baseDelay:  cfg.BaseDelay,
		maxDelay:   cfg.MaxDelay,
		sleep:      sleepCtx,
		jitter:     rand.Float64,
	}
}

func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	idempotent := req.ForceIdempotent ||
		req.Method == http.MethodGet || req.Method == http.MethodHead

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		resp, err := c.once(ctx, req)
		if err != nil {
			lastErr = err
			if !idempotent || attempt == c.attempts || ctx.Err() != nil {
				return nil, lastErr
			}
			if err := c.sleep(ctx, c.backoff(attempt, nil)); err != nil {
				return nil, lastErr
			}
			continue
		}

		if resp.Status >= 400 {
			lastErr = &HTTPError{Status: resp.Status, URL: req.URL, Body: resp.Body}
			if idempotent && retryableStatus[resp.Status] && attempt < c.attempts {
				if err := c.sleep(ctx, c.backoff(attempt, resp.Header)); err != nil {
					return nil, lastErr
				}
				continue
			}
			return nil, lastErr
		}

		return resp, nil
	}

	return nil, lastErr
}

func (c *Client) once(ctx context.Context, req Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if isTimeout(err, attemptCtx, ctx) {
			return nil, &TimeoutError{URL: req.URL}
		}
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if isTimeout(err, attemptCtx, ctx) {
			return nil, &TimeoutError{URL: req.URL}
		}
		return nil, err
	}

	return &Response{
		Status: httpResp.StatusCode,
		Header: httpResp.Header,
		Body:   respBody,
	}, nil
}

// backoff computes the delay before the next attempt: exponential from
// baseDelay, capped at maxDelay, replaced by Retry-After when the server
// sent one (also capped), with ±20% jitter either way.
func (c *Client) backoff(attempt int, header http.Header) time.Duration {
	delay := c.baseDelay << (attempt - 1)
	if delay > c.maxDelay {
		delay = c.maxDelay
	}

	if ra := parseRetryAfter(header); ra > 0 {
		delay = ra
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}

	// ±20% jitter
	factor := 0.8 + 0.4*c.jitter()
	return time.Duration(float64(delay) * factor)
}

func parseRetryAfter(header http.Header) time.Duration {
	if header == nil {
		return 0
	}
	value := header.Get("Retry-After")
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func isTimeout(err error, attemptCtx, parentCtx context.Context) bool {
	// Only the per-attempt deadline counts as a timeout; a cancelled parent
	// context is plain cancellation.
	if parentCtx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout() && attemptCtx.Err() != nil
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
