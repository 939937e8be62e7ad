package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/anvit-dd/pi-drive/pkg/authcookie"
	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
	"github.com/anvit-dd/pi-drive/pkg/httputil"
	"github.com/anvit-dd/pi-drive/pkg/middleware"
	"github.com/anvit-dd/pi-drive/pkg/validator"
	"github.com/anvit-dd/pi-drive/services/auth/internal/domain"
	"github.com/anvit-dd/pi-drive/services/auth/internal/service"
)

// AuthService is the account half of the service layer.
type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput) (*service.Registration, error)
	Login(ctx context.Context, input service.LoginInput) (*domain.User, *domain.TokenPair, error)
	Logout(ctx context.Context, input service.LogoutInput) error
	Me(ctx context.Context, userID string) (*domain.User, error)
}

// Rotator exchanges a refresh token for a new pair.
type Rotator interface {
	Rotate(ctx context.Context, presented string) (*domain.TokenPair, error)
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service AuthService
	rotator Rotator
	cookies authcookie.Policy
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, rotator Rotator, cookies authcookie.Policy, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, rotator: rotator, cookies: cookies, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name" validate:"omitempty,max=100"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// --- Response types ---

// UserResponse is the public view of a user.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		Provider:  u.Provider,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// LoginResponse is returned by login.
type LoginResponse struct {
	Message   string       `json:"message"`
	User      UserResponse `json:"user"`
	ExpiresIn int64        `json:"expiresIn"`
}

// RefreshResponse is returned by refresh.
type RefreshResponse struct {
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expiresIn"`
}

// MessageResponse carries a confirmation message.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisteredUser is the account view returned by registration.
type RegisteredUser struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	CreatedAt    time.Time    `json:"created_at"`
	LastSignInAt time.Time    `json:"last_sign_in_at"`
	UserMetadata UserMetadata `json:"user_metadata"`
}

// UserMetadata holds the profile fields of a RegisteredUser.
type UserMetadata struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Role     string `json:"role"`
}

// RegisterResponse is returned by registration.
type RegisterResponse struct {
	Token string         `json:"token"`
	User  RegisteredUser `json:"user"`
}

// --- Handlers ---

// Register handles POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	reg, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	h.cookies.SetAccess(w, reg.AccessToken.Token, reg.AccessToken.ExpiresAt)

	httputil.WriteData(w, http.StatusCreated, RegisterResponse{
		Token: reg.AccessToken.Token,
		User: RegisteredUser{
			ID:           reg.User.ID,
			Email:        reg.User.Email,
			CreatedAt:    reg.User.CreatedAt,
			LastSignInAt: reg.AccessToken.IssuedAt,
			UserMetadata: UserMetadata{
				Name:     reg.User.Name,
				Provider: reg.User.Provider,
				Role:     reg.User.Role,
			},
		},
	})
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	user, pair, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	h.setPair(w, pair)

	httputil.WriteData(w, http.StatusOK, LoginResponse{
		Message:   "Login successful",
		User:      newUserResponse(user),
		ExpiresIn: pair.ExpiresIn,
	})
}

// Refresh handles POST /api/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	presented := authcookie.RefreshToken(r)
	if presented == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("no refresh token provided"), h.logger)
		return
	}

	pair, err := h.rotator.Rotate(r.Context(), presented)
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	h.setPair(w, pair)

	httputil.WriteData(w, http.StatusOK, RefreshResponse{
		Message:   "Tokens refreshed successfully",
		ExpiresIn: pair.ExpiresIn,
	})
}

// Logout handles POST /api/auth/logout. It succeeds without a session; the
// cookies are cleared either way.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var input service.LogoutInput
	if session, ok := middleware.SessionFromContext(r.Context()); ok {
		input = service.LogoutInput{
			UserID:          session.UserID(),
			AccessTokenID:   session.TokenID,
			AccessExpiresAt: session.ExpiresAt,
		}
	}

	if err := h.service.Logout(r.Context(), input); err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}

	h.cookies.Clear(w)
	httputil.WriteData(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

// Me handles GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, newUserResponse(user))
}

func (h *AuthHandler) setPair(w http.ResponseWriter, pair *domain.TokenPair) {
	h.cookies.SetAccess(w, pair.AccessToken, pair.AccessExpiresAt)
	h.cookies.SetRefresh(w, pair.RefreshToken, pair.RefreshExpiresAt)
}
