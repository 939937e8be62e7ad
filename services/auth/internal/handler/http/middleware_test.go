package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// --- ContentTypeJSON Middleware Tests ---

func TestContentTypeJSON(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		body        string
		contentType string
		wantCalled  bool
	}{
		{name: "json", method: http.MethodPost, body: `{"k":"v"}`, contentType: "application/json", wantCalled: true},
		{name: "json with charset", method: http.MethodPost, body: `{"k":"v"}`, contentType: "application/json; charset=utf-8", wantCalled: true},
		{name: "no content type", method: http.MethodPost, body: `{"k":"v"}`, wantCalled: true},
		{name: "empty post", method: http.MethodPost, contentType: "text/plain", wantCalled: true},
		{name: "delete with json", method: http.MethodDelete, body: `{"tokenId":"x"}`, contentType: "application/json", wantCalled: true},
		{name: "form body", method: http.MethodPost, body: "a=b", contentType: "application/x-www-form-urlencoded"},
		{name: "garbage media type", method: http.MethodPost, body: "{}", contentType: ";;;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/auth/login", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantCalled, called)
			if !tt.wantCalled {
				assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
				assert.Contains(t, rr.Body.String(), "UNSUPPORTED_MEDIA_TYPE")
			}
		})
	}
}
