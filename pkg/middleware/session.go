package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/anvit-dd/pi-drive/pkg/authcookie"
	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
	"github.com/anvit-dd/pi-drive/pkg/httputil"
	"github.com/anvit-dd/pi-drive/pkg/logger"
	"github.com/anvit-dd/pi-drive/pkg/token"
	"github.com/anvit-dd/pi-drive/pkg/trust"
)

type contextKeyType string

const sessionKey contextKeyType = "session"

// SessionVerifier resolves a raw access token to a session.
type SessionVerifier func(ctx context.Context, raw string) (*trust.Session, error)

// Restricted adapts the codec-only tier.
func Restricted(v trust.Restricted) SessionVerifier {
	return func(_ context.Context, raw string) (*trust.Session, error) {
		return v.VerifyAccess(raw)
	}
}

// Strict adapts the full tier; the user is re-read on every request.
func Strict(v trust.Full) SessionVerifier {
	return v.VerifyAccessStrict
}

// RequireSession rejects requests without a verified session with 401.
// Store failures inside the verifier surface as 5xx, never as 401.
func RequireSession(verify SessionVerifier, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := resolve(r, verify, l)
			if err != nil {
				httputil.WriteError(w, r, err, l)
				return
			}
			if session == nil {
				httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), l)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// OptionalSession attaches a session when one verifies and otherwise passes
// the request through untouched. Verifier failures of any kind count as no
// session.
func OptionalSession(verify SessionVerifier, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, _ := resolve(r, verify, l)
			if session != nil {
				r = r.WithContext(ContextWithSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolve returns (nil, nil) when there is no token or it fails a security
// check, and a non-nil error only for infrastructure failures.
func resolve(r *http.Request, verify SessionVerifier, l *slog.Logger) (*trust.Session, error) {
	raw := authcookie.AccessToken(r)
	if raw == "" {
		return nil, nil
	}

	session, err := verify(r.Context(), raw)
	if err == nil {
		return session, nil
	}
	if errors.Is(err, apperrors.ErrUnauthorized) {
		attrs := []any{slog.String("error", err.Error())}
		if kind, ok := token.KindOf(err); ok {
			attrs = append(attrs, slog.String("kind", string(kind)))
		}
		l.DebugContext(r.Context(), "access token rejected", attrs...)
		return nil, nil
	}
	return nil, err
}

// ContextWithSession attaches s for SessionFromContext and tags the request
// logger with its user id.
func ContextWithSession(ctx context.Context, s *trust.Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey, s)
	return logger.WithUserID(ctx, s.UserID())
}

// SessionFromContext returns the session attached by the session middleware.
func SessionFromContext(ctx context.Context) (*trust.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*trust.Session)
	return s, ok && s != nil
}

// UserIDFromContext returns the id of the session owner, or "".
func UserIDFromContext(ctx context.Context) string {
	if s, ok := SessionFromContext(ctx); ok {
		return s.UserID()
	}
	return ""
}
