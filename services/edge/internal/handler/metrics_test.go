package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsIPAllowlist(t *testing.T) {
	private := []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "127.0.0.0/8"}

	tests := []struct {
		name   string
		cidrs  []string
		remote string
		want   int
	}{
		{name: "loopback", cidrs: private, remote: "127.0.0.1:12345", want: http.StatusOK},
		{name: "10/8", cidrs: private, remote: "10.20.30.40:12345", want: http.StatusOK},
		{name: "second cidr matches", cidrs: private, remote: "172.16.5.10:12345", want: http.StatusOK},
		{name: "public ip", cidrs: private, remote: "8.8.8.8:12345", want: http.StatusForbidden},
		{name: "invalid cidr skipped", cidrs: []string{"invalid-cidr", "10.0.0.0/8"}, remote: "10.0.0.1:12345", want: http.StatusOK},
		{name: "empty list blocks all", cidrs: nil, remote: "127.0.0.1:12345", want: http.StatusForbidden},
		{name: "ipv6 loopback", cidrs: []string{"::1/128"}, remote: "[::1]:12345", want: http.StatusOK},
		{name: "remote addr without port", cidrs: private, remote: "10.0.0.1", want: http.StatusOK},
		{name: "unparseable remote", cidrs: private, remote: "somewhere", want: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := metricsIPAllowlist(tt.cidrs, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tt.remote
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestMetricsIPAllowlist_ForbiddenBody(t *testing.T) {
	h := metricsIPAllowlist([]string{"10.0.0.0/8"}, testLogger())(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "203.0.113.50:12345"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	rr := httptest.NewRecorder()

	h.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "FORBIDDEN")
	assert.Contains(t, rr.Body.String(), "metrics endpoint is restricted")
}
