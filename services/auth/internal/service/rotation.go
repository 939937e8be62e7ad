package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
	"github.com/anvit-dd/pi-drive/pkg/logger"
	"github.com/anvit-dd/pi-drive/pkg/token"
	"github.com/anvit-dd/pi-drive/pkg/tracing"
	"github.com/anvit-dd/pi-drive/services/auth/internal/domain"
	"github.com/anvit-dd/pi-drive/services/auth/internal/repository"
)

var tracer = tracing.Tracer("services/auth/service")

// Rotator exchanges a refresh token for a new pair.
//
// A handle moves issued -> revoked exactly once. The transition is a single
// conditional update, so of two rotations racing on the same token one
// wins and the other sees Reused. The old handle is revoked before the new
// pair is minted: a crash in between forces a fresh login rather than
// leaving the old token usable.
type Rotator struct {
	codec  *token.Codec
	issuer *Issuer
	users  repository.UserRepository
	tokens repository.RefreshTokenRepository
	policy Policy
	settings
}

// NewRotator creates a rotation engine.
func NewRotator(
	codec *token.Codec,
	issuer *Issuer,
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	policy Policy,
	opts ...Option,
) *Rotator {
	return &Rotator{
		codec:    codec,
		issuer:   issuer,
		users:    users,
		tokens:   tokens,
		policy:   policy,
		settings: newSettings(opts),
	}
}

// Rotate verifies presented, redeems its handle and issues a new pair for
// the handle's current owner. Security failures are *RotationError; store
// failures are *StoreError.
func (r *Rotator) Rotate(ctx context.Context, presented string) (pair *domain.TokenPair, err error) {
	ctx, span := tracer.Start(ctx, "Rotator.Rotate")
	defer func() {
		outcome := rotationOutcome(err)
		span.SetAttributes(attribute.String("rotation.outcome", outcome))
		if IsStoreError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store failure")
		}
		span.End()
		rotationsTotal.WithLabelValues(outcome).Inc()
	}()

	claims, err := r.codec.VerifyRefresh(presented)
	if err != nil {
		return nil, &RotationError{Kind: RotationInvalid, Err: err}
	}

	row, err := r.tokens.GetByID(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, &RotationError{Kind: RotationInvalid, Err: errors.New("no handle for token id")}
		}
		return nil, storeErr("load refresh token", err)
	}
	if row.UserID != claims.Subject {
		return nil, &RotationError{Kind: RotationInvalid, Err: errors.New("handle owner does not match subject")}
	}

	if row.IsRevoked {
		r.reuseDetected(ctx, row)
		return nil, &RotationError{Kind: RotationReused}
	}

	if row.IsExpired(r.now()) {
		if err := r.tokens.Delete(ctx, row.ID); err != nil {
			return nil, storeErr("delete expired refresh token", err)
		}
		return nil, &RotationError{Kind: RotationExpired}
	}

	won, err := r.tokens.Consume(ctx, row.ID)
	if err != nil {
		return nil, storeErr("consume refresh token", err)
	}
	if !won {
		r.reuseDetected(ctx, row)
		return nil, &RotationError{Kind: RotationReused, Err: errors.New("lost concurrent rotation")}
	}

	// The owner is re-read: role or name may have changed, or the account
	// may be gone.
	user, err := r.users.GetByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, &RotationError{Kind: RotationUserMissing}
		}
		return nil, storeErr("load user", err)
	}

	pair, err = r.issuer.Issue(ctx, user)
	if err != nil {
		return nil, err
	}
	sessionsIssuedTotal.WithLabelValues("rotation").Inc()

	publish(ctx, r.logger, "session.rotated", func() error {
		return r.events.PublishSessionRotated(ctx, user.ID, row.ID, pair.RefreshTokenID)
	})

	return pair, nil
}

// reuseDetected records a replayed token and, when configured, revokes
// every refresh token the owner holds.
func (r *Rotator) reuseDetected(ctx context.Context, row *domain.RefreshToken) {
	reuseDetectedTotal.Inc()
	l := logger.WithContext(ctx, r.logger)

	var revoked int64
	if r.policy.RevokeAllOnReuse {
		n, err := r.tokens.RevokeAllForUser(ctx, row.UserID)
		if err != nil {
			l.ErrorContext(ctx, "failed to revoke sessions after refresh token reuse",
				slog.String("owner_id", row.UserID),
				slog.String("error", err.Error()),
			)
		} else {
			revoked = n
			tokensRevokedTotal.WithLabelValues("reuse").Add(float64(n))
		}
	}

	l.WarnContext(ctx, "refresh token reuse detected",
		slog.String("owner_id", row.UserID),
		slog.String("token_id", row.ID),
		slog.Int64("revoked", revoked),
	)

	publish(ctx, r.logger, "session.reuse_detected", func() error {
		return r.events.PublishReuseDetected(ctx, row.UserID, row.ID, revoked)
	})
}
