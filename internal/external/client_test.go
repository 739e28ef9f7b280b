package external

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestClient(opts ...Option) *Client {
	opts = append([]Option{WithSleepFunc(noSleep)}, opts...)
	return NewClient(nil, "test", DefaultRetryPolicy(), "fairweather-test", opts...)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, newTestClient().DoJSON(req, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ReplaysBodyOnRetry(t *testing.T) {
	var calls atomic.Int32
	var lastBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		lastBody.Store(string(b))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(`{"a":1}`))
	require.NoError(t, newTestClient().DoJSON(req, nil))
	assert.Equal(t, `{"a":1}`, lastBody.Load())
}

func TestClient_RateLimitExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var waits []time.Duration
	c := NewClient(nil, "rl", DefaultRetryPolicy(), "", WithSleepFunc(func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}))

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	err := c.DoJSON(req, nil)
	require.Error(t, err)
	assert.Equal(t, CodeUpstreamRateLimited, CodeOf(err))
	assert.Equal(t, []time.Duration{time.Second, time.Second}, waits)
}

func TestClient_MapsClientErrors(t *testing.T) {
	tests := []struct {
		status int
		want   Code
	}{
		{http.StatusNotFound, CodeUpstreamNotFound},
		{http.StatusUnauthorized, CodeUpstreamRejected},
		{http.StatusBadRequest, CodeUpstreamRejected},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
			err := newTestClient().DoJSON(req, nil)
			require.Error(t, err)
			assert.Equal(t, tt.want, CodeOf(err))
			assert.Equal(t, int32(1), calls.Load(), "client errors are not retried")
		})
	}
}

func TestClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(WithBreakerThreshold(2))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	err := c.DoJSON(req, nil)
	require.Error(t, err)
	assert.Equal(t, CodeUpstreamUnavailable, CodeOf(err))
	assert.Equal(t, int32(2), calls.Load())

	err = c.DoJSON(req, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_DecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	var out map[string]any
	err := newTestClient().DoJSON(req, &out)
	assert.Equal(t, CodeInternalUnexpected, CodeOf(err))
}

func TestClient_SetsUserAgent(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, newTestClient().DoJSON(req, nil))
	assert.Equal(t, "fairweather-test", ua.Load())
}
