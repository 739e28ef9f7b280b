// Package external wraps outbound HTTP calls to third-party APIs with a
// circuit breaker, retries on 429/5xx and mapping to *Error.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy configures retries for a Client.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    250 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// Client is shared by every vendor adapter. Each adapter gets its own
// breaker so one failing API does not trip the others.
type Client struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(context.Context, time.Duration) error
}

type Option func(*Client)

// WithSleepFunc replaces the wait between retries, for tests.
func WithSleepFunc(fn func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// WithBreakerThreshold trips the breaker after n consecutive failures.
func WithBreakerThreshold(n uint32) Option {
	return func(c *Client) {
		c.breaker = newBreaker(c.breaker.Name(), n)
	}
}

func newBreaker(name string, threshold uint32) *gobreaker.CircuitBreaker[*http.Response] {
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
}

func NewClient(httpClient *http.Client, name string, policy RetryPolicy, userAgent string, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		client:      httpClient,
		breaker:     newBreaker(name, 5),
		retryPolicy: policy,
		userAgent:   userAgent,
		sleepFn:     sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
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

// Do executes req through the breaker, retrying 429 and 5xx responses and
// transport errors. Any other response is returned as-is and the caller
// closes its body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var body []byte
	if req.Body != nil {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, NewError(CodeInternalUnexpected, "read request body", err)
		}
		req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error

	attempts := 1 + c.retryPolicy.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if body != nil {
			req.Body = io.NopCloser(bytes.NewReader(body))
			req.ContentLength = int64(len(body))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, err := c.client.Do(req)
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if lastResp != nil {
			lastResp.Body.Close()
		}
		lastResp = resp

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if ctxErr := req.Context().Err(); ctxErr != nil {
			break
		}

		if attempt < attempts-1 {
			if err := c.sleepFn(req.Context(), c.backoff(attempt, resp)); err != nil {
				lastErr = err
				break
			}
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// backoff honours Retry-After, otherwise uses jittered exponential backoff
// clamped to [MinWait, MaxWait].
func (c *Client) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
				return min(time.Duration(secs)*time.Second, c.retryPolicy.MaxWait)
			}
			if t, err := http.ParseTime(ra); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return c.retryPolicy.MinWait
				}
				return min(wait, c.retryPolicy.MaxWait)
			}
		}
	}

	base := float64(c.retryPolicy.MinWait) * math.Pow(2, float64(attempt))
	base = math.Min(base, float64(c.retryPolicy.MaxWait))
	lo := float64(c.retryPolicy.MinWait)
	if base <= lo {
		return c.retryPolicy.MinWait
	}
	return time.Duration(lo + rand.Float64()*(base-lo))
}

func (c *Client) mapError(resp *http.Response, err error) *Error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return NewError(CodeUpstreamUnavailable, "circuit breaker open", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewError(CodeUpstreamUnavailable, "request abandoned", err)
	}
	if resp != nil {
		e := NewError(CodeUpstreamUnavailable, fmt.Sprintf("upstream returned %d after retries", resp.StatusCode), err)
		if resp.StatusCode == http.StatusTooManyRequests {
			e.Code = CodeUpstreamRateLimited
			e.Message = "upstream rate limit exceeded"
		}
		e.Status = resp.StatusCode
		return e
	}
	return NewError(CodeUpstreamUnavailable, "upstream request failed", err)
}

// DoJSON runs req and decodes a 2xx JSON body into out. Non-2xx responses
// become *Error with the status code mapped to a Code.
func (c *Client) DoJSON(req *http.Request, out any) error {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return NewError(CodeUpstreamUnavailable, "read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := NewError(CodeUpstreamRejected, fmt.Sprintf("upstream returned %d: %s", resp.StatusCode, truncate(data, 200)), nil)
		e.Status = resp.StatusCode
		if resp.StatusCode == http.StatusNotFound {
			e.Code = CodeUpstreamNotFound
		}
		return e
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return NewError(CodeInternalUnexpected, "decode response", err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
