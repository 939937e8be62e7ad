// Package sweeper periodically removes refresh token handles that can no
// longer be redeemed.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_tokens_swept_total",
		Help: "Total number of expired or revoked refresh tokens deleted by the sweeper",
	})

	sweepFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_refresh_token_sweep_failures_total",
		Help: "Total number of failed sweep runs",
	})
)

// Store deletes ineligible handles and reports how many were removed.
type Store interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Sweeper runs Store.SweepExpired on a fixed interval.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
}

// New creates a sweeper. A non-positive interval defaults to one hour.
func New(store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: store, interval: interval, logger: logger}
}

// Run sweeps once immediately and then every interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.InfoContext(ctx, "refresh token sweeper started", slog.Duration("interval", s.interval))
	defer s.logger.Info("refresh token sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce performs a single sweep and returns the number of rows removed.
// Failures are logged; the next tick tries again.
func (s *Sweeper) SweepOnce(ctx context.Context) int64 {
	n, err := s.store.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		sweepFailuresTotal.Inc()
		s.logger.ErrorContext(ctx, "refresh token sweep failed", slog.String("error", err.Error()))
		return 0
	}

	sweptTotal.Add(float64(n))
	if n > 0 {
		s.logger.InfoContext(ctx, "refresh tokens swept", slog.Int64("deleted", n))
	}
	return n
}
