package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anvit-dd/pi-drive/pkg/database"
	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
	"github.com/anvit-dd/pi-drive/services/auth/internal/domain"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using
// PostgreSQL. Every transition is one conditional statement; row locks
// taken by UPDATE serialise concurrent writers on the same id.
type RefreshTokenRepository struct {
	db database.DBTX
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token handle.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) (err error) {
	query := `
		INSERT INTO refresh_tokens (id, user_id, created_at, expires_at, is_revoked)
		VALUES ($1, $2, $3, $4, $5)`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.create", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query, t.ID, t.UserID, t.CreatedAt, t.ExpiresAt, t.IsRevoked)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("refresh token", "id", t.ID)
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetByID retrieves a refresh token handle by its id.
func (r *RefreshTokenRepository) GetByID(ctx context.Context, id string) (_ *domain.RefreshToken, err error) {
	query := `
		SELECT id, user_id, created_at, expires_at, is_revoked
		FROM refresh_tokens
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.get_by_id", query)
	defer func() {
		if errors.Is(err, apperrors.ErrNotFound) {
			end(nil)
			return
		}
		end(err)
	}()

	var t domain.RefreshToken
	err = r.db.QueryRow(ctx, query, id).Scan(&t.ID, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.IsRevoked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}
	return &t, nil
}

// Consume flips a live handle to revoked. Only one of any number of
// concurrent callers sees true.
func (r *RefreshTokenRepository) Consume(ctx context.Context, id string) (_ bool, err error) {
	query := `UPDATE refresh_tokens SET is_revoked = true WHERE id = $1 AND is_revoked = false`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.consume", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Revoke marks a handle revoked. Absent or already revoked rows are ignored.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, id string) (err error) {
	query := `UPDATE refresh_tokens SET is_revoked = true WHERE id = $1 AND is_revoked = false`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.revoke", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeOwned revokes a live handle only if it belongs to userID.
func (r *RefreshTokenRepository) RevokeOwned(ctx context.Context, userID, id string, now time.Time) (_ bool, err error) {
	query := `
		UPDATE refresh_tokens SET is_revoked = true
		WHERE id = $1 AND user_id = $2 AND is_revoked = false AND expires_at > $3`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.revoke_owned", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, userID, now)
	if err != nil {
		return false, fmt.Errorf("revoke owned refresh token: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// RevokeAllForUser revokes every live handle of the user.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string) (_ int64, err error) {
	query := `UPDATE refresh_tokens SET is_revoked = true WHERE user_id = $1 AND is_revoked = false`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.revoke_all", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens by user: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Delete removes a handle. Deleting an absent row is not an error.
func (r *RefreshTokenRepository) Delete(ctx context.Context, id string) (err error) {
	query := `DELETE FROM refresh_tokens WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.delete", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}

// ListLive returns the user's live handles, newest first.
func (r *RefreshTokenRepository) ListLive(ctx context.Context, userID string, now time.Time) (_ []domain.RefreshToken, err error) {
	query := `
		SELECT id, user_id, created_at, expires_at, is_revoked
		FROM refresh_tokens
		WHERE user_id = $1 AND is_revoked = false AND expires_at > $2
		ORDER BY created_at DESC`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.list_live", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	defer rows.Close()

	tokens := []domain.RefreshToken{}
	for rows.Next() {
		var t domain.RefreshToken
		if err = rows.Scan(&t.ID, &t.UserID, &t.CreatedAt, &t.ExpiresAt, &t.IsRevoked); err != nil {
			return nil, fmt.Errorf("scan refresh token row: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh token rows: %w", err)
	}

	return tokens, nil
}

// DeleteIneligible removes handles that can never be redeemed again.
func (r *RefreshTokenRepository) DeleteIneligible(ctx context.Context, now time.Time) (_ int64, err error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1 OR is_revoked = true`

	ctx, end := database.TraceQuery(ctx, "refresh_tokens.delete_ineligible", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete ineligible refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}
