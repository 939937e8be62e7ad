package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	calls atomic.Int32
	n     int64
	err   error
}

func (f *fakeStore) SweepExpired(context.Context) (int64, error) {
	f.calls.Add(1)
	return f.n, f.err
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepOnce_CountsDeleted(t *testing.T) {
	store := &fakeStore{n: 5}
	s := New(store, time.Minute, newTestLogger())

	before := counterValue(t, sweptTotal)
	assert.Equal(t, int64(5), s.SweepOnce(context.Background()))
	assert.Equal(t, before+5, counterValue(t, sweptTotal))
}

func TestSweepOnce_FailureIsRecorded(t *testing.T) {
	store := &fakeStore{err: errors.New("db down")}
	s := New(store, time.Minute, newTestLogger())

	before := counterValue(t, sweepFailuresTotal)
	assert.Zero(t, s.SweepOnce(context.Background()))
	assert.Equal(t, before+1, counterValue(t, sweepFailuresTotal))
}

func TestRun_SweepsImmediatelyAndOnTick(t *testing.T) {
	store := &fakeStore{}
	s := New(store, 10*time.Millisecond, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestNew_DefaultInterval(t *testing.T) {
	s := New(&fakeStore{}, 0, newTestLogger())
	assert.Equal(t, time.Hour, s.interval)
}
