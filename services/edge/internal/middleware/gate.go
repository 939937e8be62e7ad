package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anvit-dd/pi-drive/pkg/authcookie"
	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
	pkgmiddleware "github.com/anvit-dd/pi-drive/pkg/middleware"
	"github.com/anvit-dd/pi-drive/pkg/token"
	"github.com/anvit-dd/pi-drive/pkg/trust"
	"github.com/anvit-dd/pi-drive/services/edge/internal/refresh"
)

// Page routes the gate redirects to.
const (
	HomePath  = "/home"
	LoginPath = "/login"
)

// SharePrefix marks public share links, which bypass the gate entirely.
const SharePrefix = "/s/"

// Refresher rotates a refresh token through the auth service.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*refresh.Result, error)
}

// GateConfig configures the session gate.
type GateConfig struct {
	Verifier trust.Restricted
	// Refresher enables silent refresh when set.
	Refresher Refresher
	// RefreshGrace is how long a successful refresh is shared with requests
	// still carrying the old refresh token. Zero means DefaultRefreshGrace.
	RefreshGrace      time.Duration
	Cookies           authcookie.Policy
	ProtectedPrefixes []string
	Logger            *slog.Logger
}

type gate struct {
	GateConfig
	flights *refreshFlights
}

// Gate resolves the restricted-tier session of every request, redirects page
// requests that are on the wrong side of the login wall, and attaches the
// session for the proxy. An expired access token is silently refreshed when
// the browser sent its refresh cookie with the request.
func Gate(cfg GateConfig) func(http.Handler) http.Handler {
	g := &gate{GateConfig: cfg, flights: newRefreshFlights(cfg.RefreshGrace)}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if strings.HasPrefix(path, SharePrefix) {
				next.ServeHTTP(w, r)
				return
			}

			session := g.session(w, r)

			if target := g.redirectTarget(path, session != nil); target != "" {
				gateRedirectsTotal.WithLabelValues(target).Inc()
				http.Redirect(w, r, target, http.StatusTemporaryRedirect)
				return
			}

			if session != nil {
				r = r.WithContext(pkgmiddleware.ContextWithSession(r.Context(), session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// redirectTarget returns where a page request must go, or "" to serve it.
func (g *gate) redirectTarget(path string, signedIn bool) string {
	switch {
	case path == "/":
		if signedIn {
			return HomePath
		}
		return LoginPath
	case !signedIn && g.isProtected(path):
		return LoginPath
	case signedIn && (strings.HasPrefix(path, LoginPath) || strings.HasPrefix(path, "/auth")):
		return HomePath
	}
	return ""
}

func (g *gate) isProtected(path string) bool {
	for _, prefix := range g.ProtectedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// session verifies the presented access token and falls back to a silent
// refresh. Any failure means no session.
func (g *gate) session(w http.ResponseWriter, r *http.Request) *trust.Session {
	ctx := r.Context()

	if raw := authcookie.AccessToken(r); raw != "" {
		s, err := g.Verifier.VerifyAccess(raw)
		if err == nil {
			return s
		}
		attrs := []any{slog.String("path", r.URL.Path)}
		if kind, ok := token.KindOf(err); ok {
			attrs = append(attrs, slog.String("kind", string(kind)))
		}
		g.Logger.DebugContext(ctx, "access token rejected", attrs...)
	}

	if g.Refresher == nil || !g.Cookies.CoversPath(r.URL.Path) {
		return nil
	}
	refreshToken := authcookie.RefreshToken(r)
	if refreshToken == "" {
		return nil
	}

	res, shared, err := g.flights.do(ctx, refreshToken, func(ctx context.Context) (*refresh.Result, error) {
		return g.Refresher.Refresh(ctx, refreshToken)
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrUnauthorized):
			// The refresh token is spent; stop the browser presenting it.
			silentRefreshTotal.WithLabelValues("rejected").Inc()
			g.Cookies.Clear(w)
		case errors.Is(err, refresh.ErrUnavailable):
			silentRefreshTotal.WithLabelValues("unavailable").Inc()
		default:
			silentRefreshTotal.WithLabelValues("failed").Inc()
		}
		g.Logger.WarnContext(ctx, "silent refresh failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil
	}

	for _, line := range res.SetCookies {
		w.Header().Add("Set-Cookie", line)
	}

	s, err := g.Verifier.VerifyAccess(res.AccessToken)
	if err != nil {
		silentRefreshTotal.WithLabelValues("failed").Inc()
		g.Logger.WarnContext(ctx, "refreshed access token rejected", slog.String("error", err.Error()))
		return nil
	}

	if shared {
		silentRefreshTotal.WithLabelValues("shared").Inc()
	} else {
		silentRefreshTotal.WithLabelValues("refreshed").Inc()
	}
	replaceAccessCookie(r, res.AccessToken)
	return s
}

// replaceAccessCookie points the forwarded request at the new access token.
func replaceAccessCookie(r *http.Request, accessToken string) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name == authcookie.AccessCookie || c.Name == authcookie.ClientAccessCookie {
			continue
		}
		r.AddCookie(c)
	}
	r.AddCookie(&http.Cookie{Name: authcookie.AccessCookie, Value: accessToken})
	if h := r.Header.Get("Authorization"); h != "" {
		r.Header.Set("Authorization", "Bearer "+accessToken)
	}
}
