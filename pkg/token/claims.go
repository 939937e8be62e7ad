package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Class discriminates access tokens from refresh tokens inside the signed
// payload. A token whose class does not match the verifier is rejected.
type Class string

const (
	ClassAccess  Class = "access"
	ClassRefresh Class = "refresh"
)

// RoleAuthenticated is the role claim carried by every access token.
const RoleAuthenticated = "authenticated"

// UserSnapshot is the point-in-time copy of a user embedded in an access
// token. It never carries the password hash.
type UserSnapshot struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Provider  string    `json:"provider"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AccessClaims is the payload of an access token. Subject is the user id.
type AccessClaims struct {
	User  UserSnapshot `json:"user"`
	Email string       `json:"email,omitempty"`
	Role  string       `json:"role"`
	Class Class        `json:"cls"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a refresh token. Subject is the user id and
// ID (jti) is the key of the persisted refresh_tokens row.
type RefreshClaims struct {
	Class Class `json:"cls"`
	jwt.RegisteredClaims
}

// classed is satisfied by both claim types so the codec can check the
// discriminant and the mandatory registered fields in one place.
type classed interface {
	jwt.Claims
	class() Class
	registered() *jwt.RegisteredClaims
}

func (c *AccessClaims) class() Class                      { return c.Class }
func (c *AccessClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

func (c *RefreshClaims) class() Class                      { return c.Class }
func (c *RefreshClaims) registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// Minted is a freshly signed token together with the registered fields the
// caller needs to persist or report.
type Minted struct {
	Token     string
	ID        string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
