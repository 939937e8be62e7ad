package service

import (
	"context"
	"net/http"

	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
	"github.com/anvit-dd/pi-drive/services/auth/internal/domain"
	"github.com/anvit-dd/pi-drive/services/auth/internal/repository"
)

// Reasons recorded on revocation metrics and events.
const (
	RevokeReasonLogout   = "logout"
	RevokeReasonExplicit = "explicit"
	RevokeReasonAdmin    = "admin"
)

// tokenNotLive is the client-visible answer for revoking a token that is
// unknown, foreign, expired or already revoked.
func tokenNotLive() error {
	return &apperrors.AppError{
		Code:    "NOT_FOUND",
		Message: "token not found or already revoked",
		Status:  http.StatusNotFound,
		Err:     apperrors.ErrNotFound,
	}
}

// Revoker revokes refresh tokens and removes those that can no longer be
// redeemed.
type Revoker struct {
	tokens repository.RefreshTokenRepository
	settings
}

// NewRevoker creates a revocation manager.
func NewRevoker(tokens repository.RefreshTokenRepository, opts ...Option) *Revoker {
	return &Revoker{tokens: tokens, settings: newSettings(opts)}
}

// RevokeOne revokes a single token. Unknown or already revoked tokens are
// not an error.
func (r *Revoker) RevokeOne(ctx context.Context, tokenID string) error {
	if err := r.tokens.Revoke(ctx, tokenID); err != nil {
		return storeErr("revoke refresh token", err)
	}
	return nil
}

// RevokeOwned revokes one of userID's live tokens. It returns a 404 AppError
// when tokenID is not a live token of that user.
func (r *Revoker) RevokeOwned(ctx context.Context, userID, tokenID string) error {
	ok, err := r.tokens.RevokeOwned(ctx, userID, tokenID, r.now())
	if err != nil {
		return storeErr("revoke owned refresh token", err)
	}
	if !ok {
		return tokenNotLive()
	}

	tokensRevokedTotal.WithLabelValues(RevokeReasonExplicit).Inc()
	publish(ctx, r.logger, "session.revoked", func() error {
		return r.events.PublishSessionsRevoked(ctx, userID, RevokeReasonExplicit, 1)
	})
	return nil
}

// RevokeAllForUser revokes every live token of userID and returns how many
// were revoked. Zero is not an error.
func (r *Revoker) RevokeAllForUser(ctx context.Context, userID, reason string) (int64, error) {
	n, err := r.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, storeErr("revoke refresh tokens", err)
	}

	tokensRevokedTotal.WithLabelValues(reason).Add(float64(n))
	publish(ctx, r.logger, "session.revoked", func() error {
		return r.events.PublishSessionsRevoked(ctx, userID, reason, n)
	})
	return n, nil
}

// SweepExpired deletes expired and revoked handles and returns the count.
// Only rows that can never be redeemed are touched, so it is safe to run
// alongside issuance and rotation.
func (r *Revoker) SweepExpired(ctx context.Context) (int64, error) {
	n, err := r.tokens.DeleteIneligible(ctx, r.now())
	if err != nil {
		return 0, storeErr("sweep refresh tokens", err)
	}
	return n, nil
}

// ListLive returns userID's redeemable tokens, newest first.
func (r *Revoker) ListLive(ctx context.Context, userID string) ([]domain.RefreshToken, error) {
	tokens, err := r.tokens.ListLive(ctx, userID, r.now())
	if err != nil {
		return nil, storeErr("list refresh tokens", err)
	}
	return tokens, nil
}
