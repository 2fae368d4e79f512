package httpclient

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCBConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      1 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func newClient(cfg CircuitBreakerConfig) (*http.Client, *BreakerTransport) {
	bt := NewBreakerTransport(NewTransport(DefaultConfig()), cfg, testLogger())
	return &http.Client{Transport: bt}, bt
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, 30*time.Second, cfg.ResponseTimeout)
	assert.Equal(t, 100, cfg.MaxConnsPerHost)

	tr := NewTransport(cfg)
	assert.Equal(t, 100, tr.MaxConnsPerHost)
	assert.Equal(t, 30*time.Second, tr.ResponseHeaderTimeout)
}

func TestBreakerTransport_ClosedState_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client, bt := newClient(testCBConfig("test-closed"))

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, bt.State())
}

func TestBreakerTransport_ServerErrorsTripButReturnResponse(t *testing.T) {
	var reqCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqCount.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"boom"}}`))
	}))
	defer server.Close()

	client, bt := newClient(testCBConfig("test-trip"))

	for i := 0; i < 3; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Contains(t, string(body), "boom")
	}
	assert.Equal(t, gobreaker.StateOpen, bt.State())

	_, err := client.Get(server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), reqCount.Load())
}

func TestBreakerTransport_HalfOpenToClosedRecovery(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testCBConfig("test-recovery")
	cfg.Timeout = 100 * time.Millisecond
	client, bt := newClient(cfg)

	for i := 0; i < 3; i++ {
		if resp, err := client.Get(server.URL); err == nil {
			resp.Body.Close()
		}
	}
	assert.Equal(t, gobreaker.StateOpen, bt.State())

	time.Sleep(150 * time.Millisecond)
	failing.Store(false)

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, bt.State())
}

func TestBreakerTransport_4xxNotCountedAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client, bt := newClient(testCBConfig("test-4xx"))

	for i := 0; i < 5; i++ {
		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Equal(t, gobreaker.StateClosed, bt.State())
}

func TestBreakerTransport_ConnectionErrorsCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, bt := newClient(testCBConfig("test-conn"))
	for i := 0; i < 3; i++ {
		_, err := client.Get(url)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, bt.State())
}

func TestCircuitBreaker_DefaultConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("test-defaults")
	assert.Equal(t, "test-defaults", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 60*time.Second, cfg.Interval)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 0.5, cfg.FailureRatio)
	assert.Equal(t, uint32(5), cfg.MinRequests)
}
