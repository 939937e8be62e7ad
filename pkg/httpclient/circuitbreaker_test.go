package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// breakerEnv is an upstream whose status code can be switched mid-test.
type breakerEnv struct {
	server *httptest.Server
	status atomic.Int32
	calls  atomic.Int32
	cb     *CircuitBreakerClient
}

func newBreakerEnv(t *testing.T, name string) *breakerEnv {
	t.Helper()
	env := &breakerEnv{}
	env.status.Store(http.StatusOK)
	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.calls.Add(1)
		w.WriteHeader(int(env.status.Load()))
		_, _ = w.Write([]byte(`upstream says hi`))
	}))
	t.Cleanup(env.server.Close)

	env.cb = NewCircuitBreakerClient(New(Config{Timeout: 2 * time.Second, MaxConnsPerHost: 10}), CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      100 * time.Millisecond,
		FailureRatio: 0.5,
		MinRequests:  3,
	}, testLogger())
	return env
}

func (e *breakerEnv) post(t *testing.T) (*http.Response, error) {
	t.Helper()
	resp, err := e.cb.Do(context.Background(), newPost(t, e.server.URL))
	if resp != nil {
		_ = resp.Body.Close()
	}
	return resp, err
}

func (e *breakerEnv) trip(t *testing.T) {
	t.Helper()
	e.status.Store(http.StatusBadGateway)
	for i := 0; i < 3; i++ {
		_, err := e.post(t)
		require.Error(t, err)
	}
}

func TestDefaultCircuitBreakerConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("auth-refresh")
	assert.Equal(t, "auth-refresh", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, 0.5, cfg.FailureRatio)
	assert.Equal(t, uint32(5), cfg.MinRequests)
}

func TestCircuitBreaker_PassesSuccessfulResponses(t *testing.T) {
	env := newBreakerEnv(t, t.Name())

	resp, err := env.post(t)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCircuitBreaker_ServerErrorCarriesStatus(t *testing.T) {
	env := newBreakerEnv(t, t.Name())
	env.status.Store(http.StatusBadGateway)

	_, err := env.post(t)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusBadGateway, serverErr.StatusCode)
	assert.Equal(t, "upstream says hi", serverErr.Body)
}

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	env := newBreakerEnv(t, t.Name())
	env.trip(t)

	_, err := env.post(t)

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(3), env.calls.Load())
}

func TestCircuitBreaker_RejectionsAreNotFailures(t *testing.T) {
	env := newBreakerEnv(t, t.Name())
	env.status.Store(http.StatusUnauthorized)

	for i := 0; i < 5; i++ {
		resp, err := env.post(t)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	assert.Equal(t, int32(5), env.calls.Load())
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	env := newBreakerEnv(t, t.Name())
	env.trip(t)
	env.status.Store(http.StatusOK)

	time.Sleep(150 * time.Millisecond)

	for i := 0; i < 3; i++ {
		_, err := env.post(t)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(6), env.calls.Load())
}

func TestCircuitBreaker_CanceledRequestsDoNotTrip(t *testing.T) {
	env := newBreakerEnv(t, t.Name())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_, err := env.cb.Do(ctx, newPost(t, env.server.URL))
		require.ErrorIs(t, err, context.Canceled)
	}

	_, err := env.post(t)
	assert.NoError(t, err)
}

func TestCircuitBreaker_FallbackWhenOpen(t *testing.T) {
	env := newBreakerEnv(t, t.Name())
	errFallback := errors.New("served by fallback")
	var fallbackCause error
	env.cb = env.cb.WithFallback(func(_ context.Context, err error) (*http.Response, error) {
		fallbackCause = err
		return nil, errFallback
	})
	env.trip(t)

	_, err := env.post(t)

	assert.ErrorIs(t, err, errFallback)
	assert.ErrorIs(t, fallbackCause, ErrCircuitOpen)
	assert.Equal(t, int32(3), env.calls.Load())
}

func TestCircuitBreaker_FallbackNotUsedWhileClosed(t *testing.T) {
	env := newBreakerEnv(t, t.Name())
	used := false
	env.cb = env.cb.WithFallback(func(context.Context, error) (*http.Response, error) {
		used = true
		return nil, nil
	})
	env.status.Store(http.StatusBadGateway)

	_, err := env.post(t)

	var serverErr *ServerError
	assert.ErrorAs(t, err, &serverErr)
	assert.False(t, used)
}
