package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anvit-dd/pi-drive/pkg/errors"
	"github.com/anvit-dd/pi-drive/pkg/token"
	"github.com/anvit-dd/pi-drive/services/auth/internal/domain"
)

const (
	testAccessSecret  = "access-secret-for-service-tests-0123456789"
	testRefreshSecret = "refresh-secret-for-service-tests-0123456789"
)

var errStoreDown = errors.New("connection refused")

// --- In-memory store ---

// memStore implements both repositories. Consume is atomic under mu, which
// mirrors the single conditional UPDATE of the postgres repository.
type memStore struct {
	mu     sync.Mutex
	users  map[string]domain.User
	tokens map[string]domain.RefreshToken

	// failTokens makes every token operation fail.
	failTokens bool
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[string]domain.User),
		tokens: make(map[string]domain.RefreshToken),
	}
}

func (s *memStore) Create(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return apperrors.ErrAlreadyExists
		}
	}
	s.users[u.ID] = *u
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &u, nil
}

func (s *memStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *memStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.UpdatedAt = time.Now().UTC()
	s.users[id] = u
	return nil
}

func (s *memStore) Count(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users), nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(s.users, id)
	for tid, t := range s.tokens {
		if t.UserID == id {
			delete(s.tokens, tid)
		}
	}
	return nil
}

// tokenStore exposes the refresh token half of memStore. Its method set
// collides with the user half on Create, GetByID and Delete.
type tokenStore struct{ *memStore }

func (s tokenStore) Create(_ context.Context, t *domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTokens {
		return errStoreDown
	}
	s.tokens[t.ID] = *t
	return nil
}

func (s tokenStore) GetByID(_ context.Context, id string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTokens {
		return nil, errStoreDown
	}
	t, ok := s.tokens[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &t, nil
}

func (s tokenStore) Consume(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTokens {
		return false, errStoreDown
	}
	t, ok := s.tokens[id]
	if !ok || t.IsRevoked {
		return false, nil
	}
	t.IsRevoked = true
	s.tokens[id] = t
	return true, nil
}

func (s tokenStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTokens {
		return errStoreDown
	}
	if t, ok := s.tokens[id]; ok {
		t.IsRevoked = true
		s.tokens[id] = t
	}
	return nil
}

func (s tokenStore) RevokeOwned(_ context.Context, userID, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTokens {
		return false, errStoreDown
	}
	t, ok := s.tokens[id]
	if !ok || t.UserID != userID || !t.IsLive(now) {
		return false, nil
	}
	t.IsRevoked = true
	s.tokens[id] = t
	return true, nil
}

func (s tokenStore) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTokens {
		return 0, errStoreDown
	}
	var n int64
	for id, t := range s.tokens {
		if t.UserID == userID && !t.IsRevoked {
			t.IsRevoked = true
			s.tokens[id] = t
			n++
		}
	}
	return n, nil
}

func (s tokenStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTokens {
		return errStoreDown
	}
	delete(s.tokens, id)
	return nil
}

func (s tokenStore) ListLive(_ context.Context, userID string, now time.Time) ([]domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTokens {
		return nil, errStoreDown
	}
	out := []domain.RefreshToken{}
	for _, t := range s.tokens {
		if t.UserID == userID && t.IsLive(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s tokenStore) DeleteIneligible(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failTokens {
		return 0, errStoreDown
	}
	var n int64
	for id, t := range s.tokens {
		if t.ExpiresAt.Before(now) || t.IsRevoked {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}

func (s *memStore) row(id string) (domain.RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	return t, ok
}

func (s *memStore) put(t domain.RefreshToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.ID] = t
}

func (s *memStore) tokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// --- Mock event publisher ---

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockEvents) PublishSessionIssued(ctx context.Context, userID, tokenID string) error {
	args := m.Called(ctx, userID, tokenID)
	return args.Error(0)
}

func (m *mockEvents) PublishSessionRotated(ctx context.Context, userID, fromTokenID, toTokenID string) error {
	args := m.Called(ctx, userID, fromTokenID, toTokenID)
	return args.Error(0)
}

func (m *mockEvents) PublishSessionsRevoked(ctx context.Context, userID, reason string, count int64) error {
	args := m.Called(ctx, userID, reason, count)
	return args.Error(0)
}

func (m *mockEvents) PublishReuseDetected(ctx context.Context, userID, tokenID string, revoked int64) error {
	args := m.Called(ctx, userID, tokenID, revoked)
	return args.Error(0)
}

// --- Mock denylist ---

type mockDenylist struct {
	mock.Mock
}

func (m *mockDenylist) Deny(ctx context.Context, tokenID string, until time.Time) error {
	args := m.Called(ctx, tokenID, until)
	return args.Error(0)
}

// --- Test Helpers ---

// clock is a settable time source shared by the codec and the services.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	store   *memStore
	clock   *clock
	codec   *token.Codec
	issuer  *Issuer
	rotator *Rotator
	revoker *Revoker
	auth    *AuthService
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, policy Policy, opts ...Option) *harness {
	t.Helper()
	h := &harness{store: newMemStore(), clock: newClock()}

	codec, err := token.NewCodec(testAccessSecret, testRefreshSecret, token.WithClock(h.clock.Now))
	require.NoError(t, err)
	h.codec = codec

	opts = append([]Option{
		WithClock(h.clock.Now),
		WithLogger(newTestLogger()),
		WithBcryptCost(4),
	}, opts...)

	tokens := tokenStore{h.store}
	h.issuer = NewIssuer(codec, tokens, policy)
	h.rotator = NewRotator(codec, h.issuer, h.store, tokens, policy, opts...)
	h.revoker = NewRevoker(tokens, opts...)
	h.auth = NewAuthService(h.store, h.issuer, h.revoker, opts...)
	return h
}

// seedUser registers a user through the service and returns it.
func (h *harness) seedUser(t *testing.T, email, password string) *domain.User {
	t.Helper()
	reg, err := h.auth.Register(context.Background(), RegisterInput{Email: email, Password: password})
	require.NoError(t, err)
	return reg.User
}

// login signs in and returns the issued pair.
func (h *harness) login(t *testing.T, email, password string) *domain.TokenPair {
	t.Helper()
	_, pair, err := h.auth.Login(context.Background(), LoginInput{Email: email, Password: password})
	require.NoError(t, err)
	return pair
}

func requireRotationKind(t *testing.T, err error, want RotationKind) {
	t.Helper()
	require.Error(t, err)
	kind, ok := RotationKindOf(err)
	require.True(t, ok, "expected RotationError, got %T: %v", err, err)
	require.Equal(t, want, kind)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	require.False(t, IsStoreError(err))
}
