package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
	"github.com/anvit-dd/pi-drive/pkg/logger"
	"github.com/anvit-dd/pi-drive/pkg/token"
	"github.com/anvit-dd/pi-drive/services/auth/internal/domain"
	"github.com/anvit-dd/pi-drive/services/auth/internal/repository"
)

// invalidCredentials is shared by unknown emails and wrong passwords.
const invalidCredentials = "invalid email or password"

// AuthService implements registration, sign-in and sign-out.
type AuthService struct {
	users   repository.UserRepository
	issuer  *Issuer
	revoker *Revoker
	settings

	// dummyHash is compared against when the email is unknown so both
	// branches of Login cost one bcrypt comparison.
	dummyHash []byte
}

// NewAuthService creates a new auth service.
func NewAuthService(users repository.UserRepository, issuer *Issuer, revoker *Revoker, opts ...Option) *AuthService {
	s := &AuthService{
		users:    users,
		issuer:   issuer,
		revoker:  revoker,
		settings: newSettings(opts),
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.bcryptCost)
	return s
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// LogoutInput identifies the session being closed. UserID is empty when the
// request carried no valid access token.
type LogoutInput struct {
	UserID          string
	AccessTokenID   string
	AccessExpiresAt time.Time
}

// Registration is the result of Register. Only an access token is issued;
// the client obtains a refresh token by signing in.
type Registration struct {
	User        *domain.User
	AccessToken *token.Minted
}

// Register creates an account. The first account becomes the admin.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*Registration, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, apperrors.InvalidInput("email and password are required")
	}

	existing, err := s.users.Count(ctx)
	if err != nil {
		return nil, storeErr("count users", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = domain.DefaultName(email)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: string(hashed),
		Provider:     domain.ProviderLocal,
		Role:         domain.RoleForNewUser(existing),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil, apperrors.AlreadyExists("user", "email", email)
		}
		return nil, storeErr("create user", err)
	}

	access, err := s.issuer.IssueAccess(user)
	if err != nil {
		return nil, err
	}

	publish(ctx, s.logger, "user.registered", func() error {
		return s.events.PublishUserRegistered(ctx, user)
	})

	logger.WithContext(ctx, s.logger).InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)

	return &Registration{User: user, AccessToken: access}, nil
}

// Login checks the credentials and issues a full token pair.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, *domain.TokenPair, error) {
	email := normalizeEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, nil, apperrors.InvalidInput("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, storeErr("load user", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(input.Password))
		return nil, nil, apperrors.Unauthorized(invalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, nil, apperrors.Unauthorized(invalidCredentials)
	}

	pair, err := s.issuer.Issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	sessionsIssuedTotal.WithLabelValues("login").Inc()

	l := logger.WithContext(ctx, s.logger)
	if err := s.users.Touch(ctx, user.ID); err != nil {
		l.WarnContext(ctx, "failed to record sign-in time",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.UpdatedAt = s.now()
	}

	publish(ctx, s.logger, "session.issued", func() error {
		return s.events.PublishSessionIssued(ctx, user.ID, pair.RefreshTokenID)
	})

	l.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))

	return user, pair, nil
}

// Logout revokes every refresh token of the user and, when a denylist is
// configured, the access token presented with the request. An anonymous
// logout does nothing.
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	if input.UserID == "" {
		return nil
	}

	n, err := s.revoker.RevokeAllForUser(ctx, input.UserID, RevokeReasonLogout)
	if err != nil {
		return err
	}

	l := logger.WithContext(ctx, s.logger)
	if s.denylist != nil && input.AccessTokenID != "" {
		if err := s.denylist.Deny(ctx, input.AccessTokenID, input.AccessExpiresAt); err != nil {
			l.WarnContext(ctx, "failed to deny access token",
				slog.String("user_id", input.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	l.InfoContext(ctx, "user logged out",
		slog.String("user_id", input.UserID),
		slog.Int64("revoked", n),
	)
	return nil
}

// Me returns the stored user.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("user", userID)
		}
		return nil, storeErr("load user", err)
	}
	return user, nil
}

// LookupUser returns the live snapshot of a user for full-tier verification.
func (s *AuthService) LookupUser(ctx context.Context, id string) (*token.UserSnapshot, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot := user.Snapshot()
	return &snapshot, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
