package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/anvit-dd/pi-drive/pkg/authcookie"
	"github.com/anvit-dd/pi-drive/pkg/database"
	"github.com/anvit-dd/pi-drive/pkg/health"
	pkgkafka "github.com/anvit-dd/pi-drive/pkg/kafka"
	"github.com/anvit-dd/pi-drive/pkg/middleware"
	"github.com/anvit-dd/pi-drive/pkg/token"
	"github.com/anvit-dd/pi-drive/pkg/tracing"
	"github.com/anvit-dd/pi-drive/pkg/trust"
	"github.com/anvit-dd/pi-drive/services/auth/internal/config"
	"github.com/anvit-dd/pi-drive/services/auth/internal/event"
	handler "github.com/anvit-dd/pi-drive/services/auth/internal/handler/http"
	"github.com/anvit-dd/pi-drive/services/auth/internal/repository/postgres"
	"github.com/anvit-dd/pi-drive/services/auth/internal/repository/redis"
	"github.com/anvit-dd/pi-drive/services/auth/internal/service"
	"github.com/anvit-dd/pi-drive/services/auth/internal/sweeper"
	"github.com/anvit-dd/pi-drive/services/auth/migrations"
)

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	consumer       *pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
	sweeper        *sweeper.Sweeper
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "auth",
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
	a.tracerShutdown = tracerShutdown

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, handler.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		a.release()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Build the dependency graph.
	codec, err := token.NewCodec(cfg.JWTAccessSecret, cfg.JWTRefreshSecret)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("create token codec: %w", err)
	}

	userRepo := postgres.NewUserRepository(pool)
	tokenRepo := postgres.NewRefreshTokenRepository(pool)
	policy := service.Policy{
		AccessTTL:        cfg.AccessTokenTTL,
		RefreshTTL:       cfg.RefreshTokenTTL,
		RevokeAllOnReuse: cfg.RevokeAllOnReuse,
	}
	opts := []service.Option{
		service.WithLogger(logger),
		service.WithBcryptCost(cfg.BcryptCost),
	}
	var trustOpts []trust.FullOption

	healthHandler := health.NewHandler(2 * time.Second)
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	// Redis denylist is optional; without it logout only revokes refresh tokens.
	if cfg.RedisEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
		if err != nil {
			a.release()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		denylist := redis.NewDenylist(client)
		opts = append(opts, service.WithDenylist(denylist))
		trustOpts = append(trustOpts, trust.WithDenylist(denylist))
		healthHandler.RegisterOptional("redis", denylist.Ping)
		logger.Info("access token denylist enabled", slog.String("addr", cfg.Redis().Addr()))
	}

	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.ProducerConfig{Brokers: cfg.KafkaBrokers}, logger)
		opts = append(opts, service.WithEvents(event.NewProducer(a.producer, logger)))
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	issuer := service.NewIssuer(codec, tokenRepo, policy)
	rotator := service.NewRotator(codec, issuer, userRepo, tokenRepo, policy, opts...)
	revoker := service.NewRevoker(tokenRepo, opts...)
	authService := service.NewAuthService(userRepo, issuer, revoker, opts...)
	verifier := trust.NewFull(codec, authService, trustOpts...)

	if cfg.KafkaEnabled {
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers)
		revokeRequests := event.NewConsumer(revoker, service.RevokeReasonAdmin, logger)
		a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   event.TopicRevokeRequested,
		}, revokeRequests.HandleRevokeRequested, a.dlq, logger)
	}

	a.sweeper = sweeper.New(revoker, cfg.SweepInterval, logger)

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		Auth:     authService,
		Rotator:  rotator,
		Tokens:   revoker,
		Verifier: verifier,
		Cookies:  authcookie.NewPolicy(cfg.Environment, cfg.RefreshCookiePath),
		Health:   healthHandler,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		Logger: logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and background workers and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.sweeper.Run(workerCtx)
	}()

	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("revoke request consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	stopWorkers()
	wg.Wait()

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka clients, Redis and the PostgreSQL pool
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

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// release closes the stores and brokers opened so far.
func (a *App) release() error {
	var errs []error
	closeErr := func(name string, err error) {
		if err != nil {
			a.logger.Error(name+" close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.consumer != nil {
		closeErr("kafka consumer", a.consumer.Close())
	}
	if a.dlq != nil {
		closeErr("kafka dlq", a.dlq.Close())
	}
	if a.producer != nil {
		closeErr("kafka producer", a.producer.Close())
	}
	if a.redis != nil {
		closeErr("redis", a.redis.Close())
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.tracerShutdown(ctx)
	}
	return errors.Join(errs...)
}
