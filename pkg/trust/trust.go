// Package trust verifies access tokens at two levels of assurance.
//
// The restricted tier only checks the token itself and needs nothing but the
// access secret, so it can run at the edge. The full tier additionally
// re-reads the user from the store and consults the access-token denylist,
// so a deleted user or a logged-out token is rejected immediately.
// Both tiers fail closed: any error yields no session.
package trust

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
	"github.com/anvit-dd/pi-drive/pkg/token"
)

// Session is the identity established from a verified access token.
type Session struct {
	User      token.UserSnapshot
	TokenID   string
	ExpiresAt time.Time
	// Strict is set when the user was re-read from the store.
	Strict bool
}

// UserID returns the id of the session owner.
func (s *Session) UserID() string { return s.User.ID }

// Restricted verifies an access token without any I/O.
type Restricted interface {
	VerifyAccess(raw string) (*Session, error)
}

// Full verifies an access token and confirms the user still exists.
type Full interface {
	Restricted
	VerifyAccessStrict(ctx context.Context, raw string) (*Session, error)
}

// AccessVerifier is the part of the token codec the verifiers need.
type AccessVerifier interface {
	VerifyAccess(raw string) (*token.AccessClaims, error)
}

// UserLookup loads the current snapshot of a user. It returns an error
// matching apperrors.ErrNotFound when the user no longer exists.
type UserLookup interface {
	LookupUser(ctx context.Context, id string) (*token.UserSnapshot, error)
}

// Denylist reports whether an access token id was revoked before expiry.
type Denylist interface {
	IsDenied(ctx context.Context, tokenID string) (bool, error)
}

var (
	ErrNoSession   = newUnauthorized("no session")
	ErrRevoked     = newUnauthorized("access token revoked")
	ErrUserMissing = newUnauthorized("user no longer exists")
)

type unauthorizedError struct{ msg string }

func newUnauthorized(msg string) error { return &unauthorizedError{msg: msg} }

func (e *unauthorizedError) Error() string { return e.msg }

func (e *unauthorizedError) Is(target error) bool {
	return target == apperrors.ErrUnauthorized
}

func sessionFromClaims(c *token.AccessClaims) *Session {
	s := &Session{User: c.User, TokenID: c.ID}
	if s.User.ID == "" {
		s.User.ID = c.Subject
	}
	if s.User.Email == "" {
		s.User.Email = c.Email
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}

func storeFailure(op string, err error) error {
	if errors.Is(err, apperrors.ErrServiceUnavail) {
		return err
	}
	return apperrors.Internal(fmt.Errorf("%s: %w", op, err))
}
