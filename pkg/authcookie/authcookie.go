// Package authcookie owns the names and attributes of the session cookies
// shared by the auth service and the edge gate.
package authcookie

import (
	"net/http"
	"strings"
	"time"
)

const (
	// AccessCookie carries the access token for server-side reads.
	AccessCookie = "auth-token"
	// ClientAccessCookie carries the same access token readable by page scripts.
	ClientAccessCookie = "client-auth-token"
	// RefreshCookie carries the refresh token, scoped to RefreshPath.
	RefreshCookie = "refresh-token"

	DefaultRefreshPath = "/api"
)

// Policy decides the attributes of every cookie written.
type Policy struct {
	Secure      bool
	RefreshPath string
}

// NewPolicy returns the cookie policy for an environment. Cookies are only
// marked Secure in production.
func NewPolicy(environment, refreshPath string) Policy {
	if refreshPath == "" {
		refreshPath = DefaultRefreshPath
	}
	return Policy{
		Secure:      environment == "production",
		RefreshPath: refreshPath,
	}
}

// SetAccess writes both access cookies.
func (p Policy) SetAccess(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, p.cookie(AccessCookie, token, "/", true, expiresAt))
	http.SetCookie(w, p.cookie(ClientAccessCookie, token, "/", false, expiresAt))
}

// SetRefresh writes the refresh cookie.
func (p Policy) SetRefresh(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, p.cookie(RefreshCookie, token, p.refreshPath(), true, expiresAt))
}

// Clear expires every session cookie.
func (p Policy) Clear(w http.ResponseWriter) {
	for _, c := range []*http.Cookie{
		p.cookie(AccessCookie, "", "/", true, time.Time{}),
		p.cookie(ClientAccessCookie, "", "/", false, time.Time{}),
		p.cookie(RefreshCookie, "", p.refreshPath(), true, time.Time{}),
	} {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (p Policy) refreshPath() string {
	if p.RefreshPath == "" {
		return DefaultRefreshPath
	}
	return p.RefreshPath
}

// CoversPath reports whether the browser sends the refresh cookie with a
// request for path.
func (p Policy) CoversPath(path string) bool {
	prefix := p.refreshPath()
	if prefix == "/" || path == prefix {
		return true
	}
	return strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/")
}

func (p Policy) cookie(name, value, path string, httpOnly bool, expiresAt time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: httpOnly,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expiresAt.IsZero() {
		c.Expires = expiresAt
		if maxAge := int(time.Until(expiresAt).Seconds()); maxAge > 0 {
			c.MaxAge = maxAge
		}
	}
	return c
}

// AccessToken extracts the access token from the Authorization header, then
// the httpOnly cookie, then the script-readable cookie.
func AccessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	for _, name := range []string{AccessCookie, ClientAccessCookie} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// RefreshToken extracts the refresh token cookie.
func RefreshToken(r *http.Request) string {
	if c, err := r.Cookie(RefreshCookie); err == nil {
		return c.Value
	}
	return ""
}

// StripRefresh removes the refresh cookie from a request before it is
// forwarded to a backend that has no business seeing it.
func StripRefresh(r *http.Request) {
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if c.Name == RefreshCookie {
			continue
		}
		r.AddCookie(c)
	}
}
