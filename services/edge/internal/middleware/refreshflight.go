package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/anvit-dd/pi-drive/services/edge/internal/refresh"
)

// DefaultRefreshGrace is how long a successful silent refresh is replayed to
// other requests that still carry the rotated refresh token.
const DefaultRefreshGrace = 10 * time.Second

// flight is one silent refresh of a refresh token, shared by every request
// that presents the same token while it runs and during the grace window.
type flight struct {
	done     chan struct{}
	res      *refresh.Result
	err      error
	finished time.Time
}

// refreshFlights collapses concurrent silent refreshes of the same refresh
// token into a single call. Rotation is single-use: a second refresh of the
// same token is rejected as reuse.
type refreshFlights struct {
	mu      sync.Mutex
	flights map[string]*flight
	grace   time.Duration
	nowFunc func() time.Time // injectable clock for testing
}

func newRefreshFlights(grace time.Duration) *refreshFlights {
	if grace <= 0 {
		grace = DefaultRefreshGrace
	}
	return &refreshFlights{
		flights: make(map[string]*flight),
		grace:   grace,
		nowFunc: time.Now,
	}
}

// do runs fn once per refresh token. Callers that join a running or recently
// successful flight get its result and shared=true. Failed flights are
// forgotten as soon as they finish so a later request can try again.
func (f *refreshFlights) do(ctx context.Context, refreshToken string, fn func(context.Context) (*refresh.Result, error)) (res *refresh.Result, shared bool, err error) {
	key := flightKey(refreshToken)

	f.mu.Lock()
	f.evictLocked()
	if fl, ok := f.flights[key]; ok {
		f.mu.Unlock()
		select {
		case <-fl.done:
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
		return fl.res, true, fl.err
	}
	fl := &flight{done: make(chan struct{})}
	f.flights[key] = fl
	f.mu.Unlock()

	// One client hanging up must not fail the requests waiting on it.
	fl.res, fl.err = fn(context.WithoutCancel(ctx))

	f.mu.Lock()
	fl.finished = f.nowFunc()
	if fl.err != nil {
		delete(f.flights, key)
	}
	f.mu.Unlock()
	close(fl.done)

	return fl.res, false, fl.err
}

// evictLocked drops successful flights older than the grace window.
func (f *refreshFlights) evictLocked() {
	now := f.nowFunc()
	for key, fl := range f.flights {
		if !fl.finished.IsZero() && now.Sub(fl.finished) > f.grace {
			delete(f.flights, key)
		}
	}
}

func (f *refreshFlights) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flights)
}

// flightKey keys flights by a digest so raw refresh tokens are not retained.
func flightKey(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}
