package token

import (
	"errors"
	"fmt"

	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
)

// Kind classifies why a token failed verification.
type Kind string

const (
	KindMalformed    Kind = "malformed"
	KindBadSignature Kind = "bad_signature"
	KindExpired      Kind = "expired"
)

// VerificationError is returned for every token that must not be trusted.
// It matches apperrors.ErrUnauthorized so HTTP layers render a generic 401.
type VerificationError struct {
	Kind  Kind
	Class Class
	Err   error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verify %s token: %s: %v", e.Class, e.Kind, e.Err)
	}
	return fmt.Sprintf("verify %s token: %s", e.Class, e.Kind)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Is reports a match for apperrors.ErrUnauthorized.
func (e *VerificationError) Is(target error) bool {
	return target == apperrors.ErrUnauthorized
}

// KindOf returns the verification kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var vErr *VerificationError
	if errors.As(err, &vErr) {
		return vErr.Kind, true
	}
	return "", false
}

// EncodingError is returned when a token cannot be signed. It indicates a
// programming or configuration error, never a client problem.
type EncodingError struct {
	Class Class
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %s token: %v", e.Class, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

var (
	errMissingID      = errors.New("missing token id")
	errMissingSubject = errors.New("missing subject")
	errBadID          = errors.New("token id is not 128-bit hex")
	errClassMismatch  = errors.New("token class mismatch")
	errNoKey          = errors.New("no signing key configured")
)
