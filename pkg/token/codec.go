package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is the iss claim written and required by the codec.
const DefaultIssuer = "pi-drive"

// idBytes is the entropy of a token id: 128 bits, hex encoded to 32 chars.
const idBytes = 16

// Codec signs and verifies access and refresh tokens with HS256 using a
// distinct secret per class. It performs no I/O.
type Codec struct {
	accessKey  []byte
	refreshKey []byte
	issuer     string
	leeway     time.Duration
	now        func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for iat/exp.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithLeeway tolerates clock skew when checking exp/iat.
func WithLeeway(d time.Duration) Option {
	return func(c *Codec) { c.leeway = d }
}

// WithIssuer overrides DefaultIssuer.
func WithIssuer(iss string) Option {
	return func(c *Codec) { c.issuer = iss }
}

// NewCodec creates a codec able to mint and verify both token classes.
func NewCodec(accessSecret, refreshSecret string, opts ...Option) (*Codec, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, fmt.Errorf("token codec: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("token codec: access and refresh secrets must differ")
	}
	return newCodec([]byte(accessSecret), []byte(refreshSecret), opts...), nil
}

// NewAccessCodec creates a codec that only knows the access secret. Refresh
// operations fail. The edge tier is built on this.
func NewAccessCodec(accessSecret string, opts ...Option) (*Codec, error) {
	if accessSecret == "" {
		return nil, fmt.Errorf("token codec: access secret is required")
	}
	return newCodec([]byte(accessSecret), nil, opts...), nil
}

func newCodec(accessKey, refreshKey []byte, opts ...Option) *Codec {
	c := &Codec{
		accessKey:  accessKey,
		refreshKey: refreshKey,
		issuer:     DefaultIssuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MintAccess signs an access token for claims.User, valid for ttl.
// Subject, role and class are filled in by the codec.
func (c *Codec) MintAccess(claims AccessClaims, ttl time.Duration) (*Minted, error) {
	claims.Class = ClassAccess
	claims.Role = RoleAuthenticated
	claims.Subject = claims.User.ID
	if claims.Email == "" {
		claims.Email = claims.User.Email
	}
	return c.mint(ClassAccess, &claims, ttl)
}

// MintRefresh signs a refresh token for userID, valid for ttl.
func (c *Codec) MintRefresh(userID string, ttl time.Duration) (*Minted, error) {
	claims := &RefreshClaims{Class: ClassRefresh}
	claims.Subject = userID
	return c.mint(ClassRefresh, claims, ttl)
}

func (c *Codec) mint(class Class, claims classed, ttl time.Duration) (*Minted, error) {
	key, err := c.key(class)
	if err != nil {
		return nil, &EncodingError{Class: class, Err: err}
	}

	id, err := NewID()
	if err != nil {
		return nil, &EncodingError{Class: class, Err: err}
	}

	now := c.now().UTC().Truncate(time.Second)
	reg := claims.registered()
	reg.ID = id
	reg.Issuer = c.issuer
	reg.IssuedAt = jwt.NewNumericDate(now)
	reg.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return nil, &EncodingError{Class: class, Err: err}
	}

	return &Minted{
		Token:     signed,
		ID:        id,
		Subject:   reg.Subject,
		IssuedAt:  now,
		ExpiresAt: reg.ExpiresAt.Time,
	}, nil
}

// VerifyAccess checks signature, expiry and shape of an access token.
func (c *Codec) VerifyAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(ClassAccess, raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh checks signature, expiry and shape of a refresh token.
func (c *Codec) VerifyRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.verify(ClassRefresh, raw, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *Codec) verify(class Class, raw string, claims classed) error {
	key, err := c.key(class)
	if err != nil {
		return &VerificationError{Kind: KindMalformed, Class: class, Err: err}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(c.issuer),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	)

	_, err = parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil {
		return &VerificationError{Kind: classify(err), Class: class, Err: err}
	}

	if claims.class() != class {
		return &VerificationError{Kind: KindMalformed, Class: class, Err: errClassMismatch}
	}
	reg := claims.registered()
	switch {
	case reg.ID == "":
		return &VerificationError{Kind: KindMalformed, Class: class, Err: errMissingID}
	case !validID(reg.ID):
		return &VerificationError{Kind: KindMalformed, Class: class, Err: errBadID}
	case reg.Subject == "":
		return &VerificationError{Kind: KindMalformed, Class: class, Err: errMissingSubject}
	}

	return nil
}

func (c *Codec) key(class Class) ([]byte, error) {
	var key []byte
	switch class {
	case ClassAccess:
		key = c.accessKey
	case ClassRefresh:
		key = c.refreshKey
	}
	if len(key) == 0 {
		return nil, errNoKey
	}
	return key, nil
}

// classify maps jwt parser errors onto the three verification kinds.
// The parser checks the signature before claims, so Expired implies a
// genuine token.
func classify(err error) Kind {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return KindBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return KindExpired
	default:
		return KindMalformed
	}
}

// NewID returns a fresh 128-bit random identifier, hex encoded.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validID(id string) bool {
	if len(id) != idBytes*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
