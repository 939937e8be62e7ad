package trust

import (
	"context"
	"errors"

	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
)

type full struct {
	restricted
	users    UserLookup
	denylist Denylist
}

// FullOption configures the full verifier.
type FullOption func(*full)

// WithDenylist makes the full tier reject access tokens revoked at logout.
func WithDenylist(d Denylist) FullOption {
	return func(f *full) { f.denylist = d }
}

// NewFull returns a verifier that re-reads the user on strict checks.
func NewFull(codec AccessVerifier, users UserLookup, opts ...FullOption) Full {
	f := &full{restricted: restricted{codec: codec}, users: users}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (v *full) VerifyAccessStrict(ctx context.Context, raw string) (*Session, error) {
	session, err := v.VerifyAccess(raw)
	if err != nil {
		return nil, err
	}

	if v.denylist != nil {
		denied, err := v.denylist.IsDenied(ctx, session.TokenID)
		if err != nil {
			return nil, storeFailure("check access token denylist", err)
		}
		if denied {
			return nil, ErrRevoked
		}
	}

	user, err := v.users.LookupUser(ctx, session.User.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, ErrUserMissing
		}
		return nil, storeFailure("lookup session user", err)
	}
	if user == nil {
		return nil, ErrUserMissing
	}

	session.User = *user
	session.Strict = true
	return session, nil
}
