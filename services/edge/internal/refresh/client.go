// Package refresh exchanges a refresh cookie for a new session on behalf of
// a browser whose access token has lapsed.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anvit-dd/pi-drive/pkg/authcookie"
	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
	"github.com/anvit-dd/pi-drive/pkg/httpclient"
)

// Path is the auth service endpoint that rotates a refresh token.
const Path = "/api/auth/refresh"

// ErrNoAccessCookie is returned when the auth service answers 2xx without
// issuing an access cookie.
var ErrNoAccessCookie = errors.New("refresh response carried no access cookie")

// ErrUnavailable is returned without calling the auth service while the
// circuit breaker is open.
var ErrUnavailable = fmt.Errorf("auth refresh unavailable: %w", apperrors.ErrServiceUnavail)

// Doer sends a request through the circuit breaker.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Result is a successful rotation.
type Result struct {
	// AccessToken is the newly issued access token.
	AccessToken string
	// SetCookies holds the raw Set-Cookie lines to forward to the browser.
	SetCookies []string
}

// Client calls the auth service's refresh endpoint.
type Client struct {
	http    Doer
	url     string
	service string
	logger  *slog.Logger
}

// NewClient creates a refresh client for the auth service at baseURL.
func NewClient(doer Doer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		url:     strings.TrimSuffix(baseURL, "/") + Path,
		service: "auth",
		logger:  logger,
	}
}

// NewBreakerClient builds the default transport for NewClient. While the
// breaker is open, calls fail fast with ErrUnavailable.
func NewBreakerClient(cfg httpclient.Config, cbCfg httpclient.CircuitBreakerConfig, logger *slog.Logger) *httpclient.CircuitBreakerClient {
	return httpclient.NewCircuitBreakerClient(httpclient.New(cfg), cbCfg, logger).
		WithFallback(func(context.Context, error) (*http.Response, error) {
			return nil, ErrUnavailable
		})
}

// Refresh presents refreshToken to the auth service. Non-2xx answers are
// returned as errors translated by httpclient.ParseResponseError.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create refresh request: %w", err)
	}
	req.AddCookie(&http.Cookie{Name: authcookie.RefreshCookie, Value: refreshToken})
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", c.service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, httpclient.ParseResponseError(resp, c.service)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	result := &Result{SetCookies: resp.Header.Values("Set-Cookie")}
	for _, ck := range resp.Cookies() {
		if ck.Name == authcookie.AccessCookie && ck.Value != "" {
			result.AccessToken = ck.Value
		}
	}
	if result.AccessToken == "" {
		return nil, ErrNoAccessCookie
	}
	return result, nil
}
