package service

import (
	"context"
	"fmt"

	"github.com/anvit-dd/pi-drive/pkg/token"
	"github.com/anvit-dd/pi-drive/services/auth/internal/domain"
	"github.com/anvit-dd/pi-drive/services/auth/internal/repository"
)

// Issuer mints token pairs and records the refresh handle.
type Issuer struct {
	codec  *token.Codec
	tokens repository.RefreshTokenRepository
	policy Policy
}

// NewIssuer creates a session issuer.
func NewIssuer(codec *token.Codec, tokens repository.RefreshTokenRepository, policy Policy) *Issuer {
	return &Issuer{codec: codec, tokens: tokens, policy: policy}
}

// Issue mints an access and a refresh token for u. The refresh token is
// only returned once its handle is stored; a store failure yields a
// *StoreError and no tokens.
func (i *Issuer) Issue(ctx context.Context, u *domain.User) (*domain.TokenPair, error) {
	access, err := i.IssueAccess(u)
	if err != nil {
		return nil, err
	}

	refresh, err := i.codec.MintRefresh(u.ID, i.policy.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}

	handle := &domain.RefreshToken{
		ID:        refresh.ID,
		UserID:    u.ID,
		CreatedAt: refresh.IssuedAt,
		ExpiresAt: refresh.ExpiresAt,
	}
	if err := i.tokens.Create(ctx, handle); err != nil {
		return nil, storeErr("store refresh token", err)
	}

	return &domain.TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshTokenID:   refresh.ID,
		RefreshExpiresAt: refresh.ExpiresAt,
		ExpiresIn:        int64(i.policy.AccessTTL.Seconds()),
	}, nil
}

// IssueAccess mints only an access token carrying u's snapshot.
func (i *Issuer) IssueAccess(u *domain.User) (*token.Minted, error) {
	access, err := i.codec.MintAccess(token.AccessClaims{User: u.Snapshot()}, i.policy.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	return access, nil
}
