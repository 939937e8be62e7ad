package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anvit-dd/pi-drive/pkg/health"
	pkgmiddleware "github.com/anvit-dd/pi-drive/pkg/middleware"
	"github.com/anvit-dd/pi-drive/services/edge/internal/proxy"
)

// ServiceName labels metrics and spans of the edge gate.
const ServiceName = "edge"

// RouterConfig holds the dependencies of the edge router.
type RouterConfig struct {
	Proxy  *proxy.ServiceProxy
	Health *health.Handler
	// Gate resolves sessions and redirects page requests.
	Gate func(http.Handler) http.Handler
	// AuthRateLimit guards /api/auth.
	AuthRateLimit       func(http.Handler) http.Handler
	CORS                pkgmiddleware.CORSConfig
	MetricsAllowedCIDRs []string
	Logger              *slog.Logger
}

// NewRouter creates a chi router that sends /api/auth to the auth service
// and everything else through the session gate to the app backend.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware stack (applied in order).
	r.Use(pkgmiddleware.RequestLogging(logger))
	r.Use(pkgmiddleware.Tracing(ServiceName))
	r.Use(pkgmiddleware.RequestLogger(logger))
	r.Use(pkgmiddleware.Recovery(logger))
	r.Use(pkgmiddleware.PrometheusMetrics(ServiceName))
	r.Use(pkgmiddleware.CORS(cfg.CORS))
	r.Use(chimw.Timeout(60 * time.Second))

	// Health check endpoints (no session required).
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Handle("/metrics", metricsIPAllowlist(cfg.MetricsAllowedCIDRs, logger)(promhttp.Handler()))

	authProxy := cfg.AuthRateLimit(cfg.Proxy.Handler(proxy.Auth))
	r.Handle("/api/auth", authProxy)
	r.Handle("/api/auth/*", authProxy)

	r.Handle("/*", cfg.Gate(cfg.Proxy.Handler(proxy.App)))

	return r
}
