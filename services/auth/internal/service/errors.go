package service

import (
	"errors"
	"fmt"

	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
)

// RotationKind says why a refresh token could not be rotated.
type RotationKind string

const (
	// RotationInvalid: the token failed verification, has no row, or the row
	// belongs to someone else.
	RotationInvalid RotationKind = "invalid"
	// RotationReused: the token was already redeemed or revoked.
	RotationReused RotationKind = "reused"
	// RotationExpired: the row is past its expiry and has been removed.
	RotationExpired RotationKind = "expired"
	// RotationUserMissing: the owner was deleted after issuance.
	RotationUserMissing RotationKind = "user_missing"
)

// RotationError is a security failure of a rotation. Every kind renders as
// the same 401; the kind is for logs and metrics only.
type RotationError struct {
	Kind RotationKind
	Err  error
}

func (e *RotationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rotate refresh token: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("rotate refresh token: %s", e.Kind)
}

func (e *RotationError) Unwrap() error { return e.Err }

// Is reports a match for apperrors.ErrUnauthorized.
func (e *RotationError) Is(target error) bool {
	return target == apperrors.ErrUnauthorized
}

// RotationKindOf returns the kind carried by err, if any.
func RotationKindOf(err error) (RotationKind, bool) {
	var rErr *RotationError
	if errors.As(err, &rErr) {
		return rErr.Kind, true
	}
	return "", false
}

// StoreError is a persistence failure. It is an infrastructure fault and
// must never be reported to the client as a rejected credential.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsStoreError reports whether err is or wraps a *StoreError.
func IsStoreError(err error) bool {
	var sErr *StoreError
	return errors.As(err, &sErr)
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
