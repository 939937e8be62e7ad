//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	authPort = 8001
	edgePort = 8080
)

// baseURL returns the base URL for a service running on the given port.
// PIDRIVE_HOST overrides localhost.
func baseURL(port int) string {
	host := os.Getenv("PIDRIVE_HOST")
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// uniqueEmail generates a unique email address to avoid test collisions.
func uniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d-%d@test.example.com", prefix, time.Now().UnixNano(), rand.IntN(100000))
}

// skipIfNotRunning performs a quick health check against a service.
// If the service is unreachable, the test is skipped (not failed).
func skipIfNotRunning(t *testing.T, port int) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL(port) + "/health/live")
	if err != nil {
		t.Skipf("service on port %d not reachable (stack not running?): %v", port, err)
	}
	_ = resp.Body.Close()
}

// browser is a cookie-keeping client that does not follow redirects.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, port int) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: baseURL(port),
		client: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// do sends a request with an optional JSON body and returns the status,
// the decoded envelope and the response.
func (b *browser) do(method, path string, body any, cookies ...*http.Cookie) (int, map[string]any, *http.Response) {
	b.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(b.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, b.base+path, reader)
	require.NoError(b.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := b.client.Do(req)
	require.NoError(b.t, err, "%s %s", method, path)
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, decodeBody(b.t, resp.Body), resp
}

// cookie returns the value the jar would send for name on path.
func (b *browser) cookie(path, name string) string {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+path, nil)
	require.NoError(b.t, err)
	for _, c := range b.client.Jar.Cookies(req.URL) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// decodeBody reads the response body and attempts to decode it as JSON.
// If the body is empty or not JSON, it returns the raw text under "raw".
func decodeBody(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	if len(raw) == 0 {
		return map[string]any{}
	}
	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return result
}

// extractField extracts a value from a nested map using a dot-separated path.
// For example, extractField(data, "data.user.id") navigates data["data"]["user"]["id"].
func extractField(data map[string]any, path string) any {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		if current, ok = m[part]; !ok {
			return nil
		}
	}
	return current
}

// extractString is a convenience wrapper around extractField that returns a string.
func extractString(t *testing.T, data map[string]any, path string) string {
	t.Helper()
	s, ok := extractField(data, path).(string)
	require.True(t, ok, "expected string at path %q in %v", path, data)
	return s
}

// register creates an account and signs the browser in.
func (b *browser) register(email, password string) string {
	b.t.Helper()
	status, data, _ := b.do(http.MethodPost, "/api/auth/register", map[string]any{
		"email": email, "password": password,
	})
	require.Equal(b.t, http.StatusCreated, status, "register: %v", data)
	return extractString(b.t, data, "data.user.id")
}

func (b *browser) login(email, password string) {
	b.t.Helper()
	status, data, _ := b.do(http.MethodPost, "/api/auth/login", map[string]any{
		"email": email, "password": password,
	})
	require.Equal(b.t, http.StatusOK, status, "login: %v", data)
}
