package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/anvit-dd/pi-drive/services/auth/internal/domain"
)

// Default token lifetimes.
const (
	DefaultAccessTTL  = 24 * time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// Policy holds the session lifetime and replay rules.
type Policy struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// RevokeAllOnReuse revokes every refresh token of a user whose already
	// redeemed token is presented again.
	RevokeAllOnReuse bool
}

// DefaultPolicy returns the standard lifetimes with revoke-all disabled.
func DefaultPolicy() Policy {
	return Policy{AccessTTL: DefaultAccessTTL, RefreshTTL: DefaultRefreshTTL}
}

// EventPublisher emits session lifecycle events. Failures are logged by the
// caller and never fail the operation.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishSessionIssued(ctx context.Context, userID, tokenID string) error
	PublishSessionRotated(ctx context.Context, userID, fromTokenID, toTokenID string) error
	PublishSessionsRevoked(ctx context.Context, userID, reason string, count int64) error
	PublishReuseDetected(ctx context.Context, userID, tokenID string, revoked int64) error
}

// AccessDenylist blocks access tokens before their natural expiry.
type AccessDenylist interface {
	Deny(ctx context.Context, tokenID string, until time.Time) error
}

type settings struct {
	now        func() time.Time
	events     EventPublisher
	denylist   AccessDenylist
	bcryptCost int
	logger     *slog.Logger
}

// Option configures the services of this package.
type Option func(*settings)

// WithClock replaces time.Now. Share the same clock with the token codec.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithEvents publishes lifecycle events through p.
func WithEvents(p EventPublisher) Option {
	return func(s *settings) {
		if p != nil {
			s.events = p
		}
	}
}

// WithDenylist makes logout deny the presented access token.
func WithDenylist(d AccessDenylist) Option {
	return func(s *settings) { s.denylist = d }
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *settings) { s.bcryptCost = cost }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		now:        func() time.Time { return time.Now().UTC() },
		events:     nopEvents{},
		bcryptCost: bcryptCost,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// bcryptCost is the default cost factor for password hashing.
const bcryptCost = 12

type nopEvents struct{}

func (nopEvents) PublishUserRegistered(context.Context, *domain.User) error           { return nil }
func (nopEvents) PublishSessionIssued(context.Context, string, string) error          { return nil }
func (nopEvents) PublishSessionRotated(context.Context, string, string, string) error { return nil }
func (nopEvents) PublishSessionsRevoked(context.Context, string, string, int64) error { return nil }
func (nopEvents) PublishReuseDetected(context.Context, string, string, int64) error   { return nil }

// publish runs fn and logs a failure without propagating it.
func publish(ctx context.Context, l *slog.Logger, event string, fn func() error) {
	if err := fn(); err != nil {
		l.WarnContext(ctx, "failed to publish event",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
