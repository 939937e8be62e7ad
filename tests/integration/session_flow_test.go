//go:build integration

package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvit-dd/pi-drive/pkg/authcookie"
)

const password = "IntegrationPass123!"

// TestSessionLifecycle drives register, login, rotation, replay, explicit
// revocation and logout against a running auth service.
func TestSessionLifecycle(t *testing.T) {
	skipIfNotRunning(t, authPort)

	b := newBrowser(t, authPort)
	email := uniqueEmail("lifecycle")
	userID := b.register(email, password)

	// Register issues only access cookies.
	assert.NotEmpty(t, b.cookie("/", authcookie.AccessCookie))
	assert.Empty(t, b.cookie("/api", authcookie.RefreshCookie))

	b.login(email, password)
	firstRefresh := b.cookie("/api/auth/refresh", authcookie.RefreshCookie)
	require.NotEmpty(t, firstRefresh)
	assert.Empty(t, b.cookie("/home", authcookie.RefreshCookie), "refresh cookie must be scoped to /api")

	status, data, _ := b.do(http.MethodGet, "/api/auth/me", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, userID, extractString(t, data, "data.id"))

	// Rotate.
	status, _, _ = b.do(http.MethodPost, "/api/auth/refresh", nil)
	require.Equal(t, http.StatusOK, status)
	secondRefresh := b.cookie("/api/auth/refresh", authcookie.RefreshCookie)
	assert.NotEqual(t, firstRefresh, secondRefresh)

	// Replaying the spent token fails with the generic message.
	replay := newBrowser(t, authPort)
	status, data, _ = replay.do(http.MethodPost, "/api/auth/refresh", nil,
		&http.Cookie{Name: authcookie.RefreshCookie, Value: firstRefresh})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "authentication required", extractString(t, data, "error.message"))

	// The live token shows up in the listing and can be revoked.
	status, data, _ = b.do(http.MethodGet, "/api/auth/tokens", nil)
	require.Equal(t, http.StatusOK, status)
	tokens, ok := extractField(data, "data.tokens").([]any)
	require.True(t, ok)
	require.NotEmpty(t, tokens)
	tokenID := extractString(t, map[string]any{"t": tokens[0]}, "t.id")

	status, _, _ = b.do(http.MethodDelete, "/api/auth/tokens", map[string]any{"tokenId": tokenID})
	assert.Equal(t, http.StatusOK, status)
	status, _, _ = b.do(http.MethodDelete, "/api/auth/tokens", map[string]any{"tokenId": tokenID})
	assert.Equal(t, http.StatusNotFound, status)

	// Logout clears cookies.
	status, _, _ = b.do(http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, b.cookie("/", authcookie.AccessCookie))
	status, _, _ = b.do(http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

// TestLoginRejectsBadCredentials checks unknown emails and wrong passwords
// are indistinguishable.
func TestLoginRejectsBadCredentials(t *testing.T) {
	skipIfNotRunning(t, authPort)

	b := newBrowser(t, authPort)
	email := uniqueEmail("badcreds")
	b.register(email, password)

	_, wrongPassword, _ := b.do(http.MethodPost, "/api/auth/login", map[string]any{"email": email, "password": "nope"})
	status, unknown, _ := b.do(http.MethodPost, "/api/auth/login", map[string]any{"email": uniqueEmail("ghost"), "password": "nope"})

	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, extractField(wrongPassword, "error.message"), extractField(unknown, "error.message"))
}

// TestEdgeGate exercises the redirect rules and the auth proxy of the edge.
func TestEdgeGate(t *testing.T) {
	skipIfNotRunning(t, edgePort)
	skipIfNotRunning(t, authPort)

	b := newBrowser(t, edgePort)

	status, _, resp := b.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusTemporaryRedirect, status)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	status, _, resp = b.do(http.MethodGet, "/home", nil)
	require.Equal(t, http.StatusTemporaryRedirect, status)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	email := uniqueEmail("edge")
	b.register(email, password)

	status, _, resp = b.do(http.MethodGet, "/login", nil)
	require.Equal(t, http.StatusTemporaryRedirect, status)
	assert.Equal(t, "/home", resp.Header.Get("Location"))

	// Share links are never redirected.
	anon := newBrowser(t, edgePort)
	status, _, _ = anon.do(http.MethodGet, "/s/does-not-exist", nil)
	assert.NotEqual(t, http.StatusTemporaryRedirect, status)
}
