package trust

import (
	"strings"
)

type restricted struct {
	codec AccessVerifier
}

// NewRestricted returns a verifier backed only by the token codec.
func NewRestricted(codec AccessVerifier) Restricted {
	return &restricted{codec: codec}
}

func (v *restricted) VerifyAccess(raw string) (*Session, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoSession
	}
	claims, err := v.codec.VerifyAccess(raw)
	if err != nil {
		return nil, err
	}
	return sessionFromClaims(claims), nil
}
