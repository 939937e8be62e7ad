package domain

import "time"

// RefreshToken is the persisted handle of an issued refresh token. ID equals
// the token's jti; the signed value itself is never stored.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsRevoked bool      `json:"-"`
}

// IsExpired reports whether the token is past its expiry at now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// IsLive reports whether the token may still be redeemed at now.
func (t *RefreshToken) IsLive(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt.After(now)
}

// TokenPair holds a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken      string    `json:"-"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshToken     string    `json:"-"`
	RefreshTokenID   string    `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn"`
}
