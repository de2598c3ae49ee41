package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	c := New()
	assert.Equal(t, 3, c.maxRetries)
	assert.Equal(t, time.Second, c.baseDelay)
	assert.Equal(t, 60*time.Second, c.client.Timeout)

	c = New(WithMaxRetries(1), WithBaseDelay(5*time.Millisecond), WithTimeout(time.Second))
	assert.Equal(t, 1, c.maxRetries)
	assert.Equal(t, 5*time.Millisecond, c.baseDelay)
	assert.Equal(t, time.Second, c.client.Timeout)
}

func TestDefaultRetryStrategy(t *testing.T) {
	assert.Equal(t, SmartRetry, DefaultRetryStrategy(http.StatusTooManyRequests))
	assert.Equal(t, SmartRetry, DefaultRetryStrategy(http.StatusServiceUnavailable))
	assert.Equal(t, ConservativeRetry, DefaultRetryStrategy(http.StatusBadGateway))
	assert.Equal(t, NoRetry, DefaultRetryStrategy(http.StatusNotFound))
	assert.Equal(t, NoRetry, DefaultRetryStrategy(http.StatusUnauthorized))
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, 4)
		n, _ := r.Body.Read(body)
		assert.Equal(t, "ping", string(body[:n]))
		assert.Equal(t, "quiz", r.Header.Get("X-Client"))
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(WithBaseDelay(time.Millisecond), WithHeader("X-Client", "quiz"))
	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("ping"))
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_NoRetryReturnsResponse(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	resp, err := New().Do(mustGet(t, srv.URL))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(WithMaxRetries(2), WithBaseDelay(time.Millisecond))
	_, err := c.Do(mustGet(t, srv.URL))

	var re *RetryableError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusTooManyRequests, re.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = New().Do(req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseRetryAfter(t *testing.T) {
	h := http.Header{}
	assert.Zero(t, ParseRetryAfter(h))

	h.Set("Retry-After", "7")
	assert.Equal(t, 7*time.Second, ParseRetryAfter(h))

	h.Set("Retry-After", time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat))
	assert.Zero(t, ParseRetryAfter(h))

	h.Set("Retry-After", "soon")
	assert.Zero(t, ParseRetryAfter(h))
}

func mustGet(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}
