package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/anvit-dd/pi-drive/pkg/httputil"
	"github.com/anvit-dd/pi-drive/pkg/middleware"
	"github.com/anvit-dd/pi-drive/pkg/validator"
	"github.com/anvit-dd/pi-drive/services/auth/internal/domain"
)

// TokenService lists and revokes a user's refresh tokens.
type TokenService interface {
	ListLive(ctx context.Context, userID string) ([]domain.RefreshToken, error)
	RevokeOwned(ctx context.Context, userID, tokenID string) error
}

// TokenHandler handles HTTP requests for a user's refresh tokens.
type TokenHandler struct {
	service TokenService
	logger  *slog.Logger
}

// NewTokenHandler creates a new token HTTP handler.
func NewTokenHandler(svc TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{service: svc, logger: logger}
}

// RevokeTokenRequest is the JSON request body for revoking one token.
type RevokeTokenRequest struct {
	TokenID string `json:"tokenId" validate:"required"`
}

// TokenInfo is the public view of a refresh token.
type TokenInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// TokenListResponse is returned by List.
type TokenListResponse struct {
	Tokens []TokenInfo `json:"tokens"`
	Count  int         `json:"count"`
}

// List handles GET /api/auth/tokens
func (h *TokenHandler) List(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.service.ListLive(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	infos := make([]TokenInfo, 0, len(tokens))
	for _, t := range tokens {
		infos = append(infos, TokenInfo{ID: t.ID, CreatedAt: t.CreatedAt, ExpiresAt: t.ExpiresAt})
	}

	httputil.WriteData(w, http.StatusOK, TokenListResponse{Tokens: infos, Count: len(infos)})
}

// Revoke handles DELETE /api/auth/tokens
func (h *TokenHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req RevokeTokenRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.service.RevokeOwned(r.Context(), middleware.UserIDFromContext(r.Context()), req.TokenID); err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, MessageResponse{Message: "Token revoked successfully"})
}
