package repository

import (
	"context"
	"time"

	"github.com/anvit-dd/pi-drive/services/auth/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user. Returns an error matching
	// apperrors.ErrAlreadyExists when the email is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Touch bumps updated_at after a successful sign-in.
	Touch(ctx context.Context, id string) error

	// Count returns the number of registered users.
	Count(ctx context.Context) (int, error)

	// Delete removes a user. Their refresh tokens cascade.
	Delete(ctx context.Context, id string) error
}

// RefreshTokenRepository defines the persistence of refresh token handles.
// Every state change is a single conditional statement so concurrent
// callers never both observe a successful transition.
type RefreshTokenRepository interface {
	// Create stores a new live handle.
	Create(ctx context.Context, token *domain.RefreshToken) error

	// GetByID retrieves a handle by its token id.
	GetByID(ctx context.Context, id string) (*domain.RefreshToken, error)

	// Consume marks a live handle revoked. It reports false when the handle
	// was already revoked or does not exist.
	Consume(ctx context.Context, id string) (bool, error)

	// Revoke marks a handle revoked. Absent or already revoked is not an error.
	Revoke(ctx context.Context, id string) error

	// RevokeOwned revokes a live, unexpired handle belonging to userID and
	// reports whether one was found.
	RevokeOwned(ctx context.Context, userID, id string, now time.Time) (bool, error)

	// RevokeAllForUser revokes every live handle of the user and returns
	// how many changed.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// Delete removes a handle.
	Delete(ctx context.Context, id string) error

	// ListLive returns the user's unrevoked, unexpired handles, newest first.
	ListLive(ctx context.Context, userID string, now time.Time) ([]domain.RefreshToken, error)

	// DeleteIneligible removes expired or revoked handles and returns the
	// number removed.
	DeleteIneligible(ctx context.Context, now time.Time) (int64, error)
}
