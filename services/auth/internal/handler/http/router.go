package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anvit-dd/pi-drive/pkg/authcookie"
	"github.com/anvit-dd/pi-drive/pkg/health"
	"github.com/anvit-dd/pi-drive/pkg/middleware"
	"github.com/anvit-dd/pi-drive/pkg/trust"
)

// ServiceName labels metrics and spans of the auth service.
const ServiceName = "auth"

// RouterConfig holds the dependencies of the auth router.
type RouterConfig struct {
	Auth    AuthService
	Rotator Rotator
	Tokens  TokenService
	// Verifier is the full trust tier; logout only needs its restricted half.
	Verifier trust.Full
	Cookies  authcookie.Policy
	Health   *health.Handler
	CORS     middleware.CORSConfig
	Logger   *slog.Logger
}

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	authHandler := NewAuthHandler(cfg.Auth, cfg.Rotator, cfg.Cookies, logger)
	tokenHandler := NewTokenHandler(cfg.Tokens, logger)

	strict := middleware.Strict(cfg.Verifier)
	restricted := middleware.Restricted(cfg.Verifier)

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)

		// A deleted user can still sign out.
		r.With(middleware.OptionalSession(restricted, logger)).Post("/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(strict, logger))
			r.Use(middleware.RequestLogger(logger))

			r.Get("/me", authHandler.Me)
			r.Get("/tokens", tokenHandler.List)
			r.Delete("/tokens", tokenHandler.Revoke)
		})
	})

	return r
}
