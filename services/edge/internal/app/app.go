package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/anvit-dd/pi-drive/pkg/authcookie"
	"github.com/anvit-dd/pi-drive/pkg/health"
	"github.com/anvit-dd/pi-drive/pkg/httpclient"
	pkgmiddleware "github.com/anvit-dd/pi-drive/pkg/middleware"
	"github.com/anvit-dd/pi-drive/pkg/token"
	"github.com/anvit-dd/pi-drive/pkg/tracing"
	"github.com/anvit-dd/pi-drive/pkg/trust"
	"github.com/anvit-dd/pi-drive/services/edge/internal/config"
	"github.com/anvit-dd/pi-drive/services/edge/internal/handler"
	"github.com/anvit-dd/pi-drive/services/edge/internal/middleware"
	"github.com/anvit-dd/pi-drive/services/edge/internal/proxy"
	"github.com/anvit-dd/pi-drive/services/edge/internal/refresh"
)

// App wires together all dependencies and runs the edge gate.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	stopLimiter    context.CancelFunc
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance. The edge has no database or
// Kafka dependencies; it verifies access tokens with the access secret only.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		Insecure:       cfg.OTELInsecure,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	codec, err := token.NewAccessCodec(cfg.JWTAccessSecret)
	if err != nil {
		return nil, fmt.Errorf("create access codec: %w", err)
	}

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.RefreshTimeout
	cbCfg := httpclient.DefaultCircuitBreakerConfig("auth-refresh")
	cbCfg.Timeout = cfg.RefreshBreakerOpen
	cbCfg.FailureRatio = cfg.RefreshBreakerRatio
	refresher := refresh.NewClient(refresh.NewBreakerClient(clientCfg, cbCfg, logger), cfg.AuthServiceURL, logger)

	// Health checks with downstream service reachability.
	healthHandler := health.NewHandler(2 * time.Second)
	healthHandler.RegisterOptional(proxy.Auth, dialCheck(cfg.AuthServiceURL))
	healthHandler.RegisterOptional(proxy.App, dialCheck(cfg.AppServiceURL))

	limiterCtx, stopLimiter := context.WithCancel(context.Background())

	router := handler.NewRouter(handler.RouterConfig{
		Proxy:  proxy.NewServiceProxy(cfg, logger),
		Health: healthHandler,
		Gate: middleware.Gate(middleware.GateConfig{
			Verifier:          trust.NewRestricted(codec),
			Refresher:         refresher,
			RefreshGrace:      cfg.RefreshGrace,
			Cookies:           authcookie.NewPolicy(cfg.Environment, cfg.RefreshCookiePath),
			ProtectedPrefixes: cfg.ProtectedPrefixes,
			Logger:            logger,
		}),
		AuthRateLimit: middleware.RateLimit(limiterCtx, cfg.RateLimitRPS, cfg.RateLimitBurst, logger),
		CORS: pkgmiddleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		MetricsAllowedCIDRs: cfg.MetricsAllowedCIDRs,
		Logger:              logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		httpServer:     httpServer,
		stopLimiter:    stopLimiter,
		tracerShutdown: tracerShutdown,
	}, nil
}

// dialCheck reports whether the host of rawURL accepts TCP connections.
func dialCheck(rawURL string) health.Checker {
	return func(ctx context.Context) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("parse service URL: %w", err)
		}
		host := u.Host
		if u.Port() == "" {
			port := "80"
			if u.Scheme == "https" {
				port = "443"
			}
			host = net.JoinHostPort(u.Hostname(), port)
		}
		d := net.Dialer{Timeout: 2 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", host)
		if err != nil {
			return fmt.Errorf("downstream unreachable: %w", err)
		}
		_ = conn.Close()
		return nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the HTTP server in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	a.stopLimiter()

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
