package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/InboxGo/internal/auth"
	"github.com/utafrali/InboxGo/internal/config"
	"github.com/utafrali/InboxGo/internal/credential"
	"github.com/utafrali/InboxGo/internal/event"
	handler "github.com/utafrali/InboxGo/internal/handler/http"
	"github.com/utafrali/InboxGo/internal/mail"
	"github.com/utafrali/InboxGo/internal/oauth"
	"github.com/utafrali/InboxGo/internal/repository/file"
	"github.com/utafrali/InboxGo/internal/repository/postgres"
	"github.com/utafrali/InboxGo/internal/service"
	"github.com/utafrali/InboxGo/internal/throttle"
	"github.com/utafrali/InboxGo/migrations"
	"github.com/utafrali/InboxGo/pkg/database"
	"github.com/utafrali/InboxGo/pkg/health"
	"github.com/utafrali/InboxGo/pkg/httpclient"
	pkgkafka "github.com/utafrali/InboxGo/pkg/kafka"
	"github.com/utafrali/InboxGo/pkg/middleware"
	"github.com/utafrali/InboxGo/pkg/observability"
	"github.com/utafrali/InboxGo/pkg/tracing"
)

// ServiceName identifies the service in traces and metrics.
const ServiceName = "inbox"

// App wires together all dependencies and runs the inbox service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.closeResources()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	// Error reporting and tracing.
	if err := observability.InitSentry(cfg.Sentry()); err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(ServiceName))
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// PostgreSQL holds users and, by default, the delegated credential.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")
	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	// Login attempt store.
	var attempts throttle.Store
	switch cfg.ThrottleStore {
	case config.ThrottleStoreRedis:
		client, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		a.redis = client
		attempts = throttle.NewRedisStore(client, cfg.AttemptWindow)
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.Info("login attempts stored in redis", slog.String("addr", cfg.Redis().Addr()))
	default:
		attempts = throttle.NewMemoryStore(cfg.AttemptWindow)
	}
	loginThrottle := throttle.New(attempts, throttle.Config{
		MaxAttempts:      cfg.MaxAttempts,
		LockoutDuration:  cfg.LockoutPeriod,
		InactivityWindow: cfg.AttemptWindow,
	})

	// Domain events. Without brokers publishing is disabled; Publisher must
	// stay an untyped nil in that case.
	var publisher event.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Warn("no kafka brokers configured, domain events are disabled")
	}
	events := event.NewProducer(publisher, logger)

	// Delegated credential.
	var credStore credential.Store
	switch cfg.CredentialStore {
	case config.CredentialStoreFile:
		credStore = file.NewCredentialStore(cfg.CredentialFile)
		logger.Info("delegated credential stored on disk", slog.String("path", cfg.CredentialFile))
	default:
		credStore = postgres.NewCredentialRepository(pool)
	}

	httpCfg := httpclient.DefaultConfig()
	tokenEndpoint := oauth.NewTokenEndpointClient(httpCfg, logger)
	mailAPI := httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg),
		httpclient.DefaultCircuitBreakerConfig("mail-api"), logger)

	provider := oauth.NewBreakerProvider(oauth.Config{
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		RedirectURL:  cfg.OAuthRedirectURL,
		Scopes:       cfg.OAuthScopes,
		AuthURL:      cfg.OAuthAuthURL,
		TokenURL:     cfg.OAuthTokenURL,
	}, tokenEndpoint)

	credManager := credential.NewManager(credStore, provider, credential.Config{
		SafetyMargin:   cfg.SafetyMargin,
		RefreshTimeout: cfg.RefreshTimeout,
		RetryBackoff:   cfg.RefreshBackoff,
	}, logger, credential.WithNotifier(events))
	mailClient := mail.NewClient(mailAPI, credManager, cfg.MailAPIBaseURL, logger)

	// Authentication facade.
	authService := service.NewAuthService(
		postgres.NewUserRepository(pool),
		auth.NewPasswordHasher(cfg.BcryptCost),
		auth.NewTokenIssuer(cfg.JWTSecret, auth.WithIssuer(cfg.JWTIssuer), auth.WithLeeway(cfg.JWTLeeway)),
		loginThrottle,
		events,
		cfg.JWTAccessTTL,
		logger,
	)

	router := handler.NewRouter(handler.RouterConfig{
		Auth:           authService,
		Mail:           mailClient,
		Consent:        provider,
		Credentials:    credManager,
		Health:         healthHandler,
		Logger:         logger,
		CORS:           middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins, AllowCredentials: true},
		HSTS:           !cfg.IsDevelopment(),
		TrustForwarded: cfg.TrustForwarded,
		SecureCookies:  !cfg.IsDevelopment(),
		PprofCIDRs:     cfg.PprofAllowCIDRs,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer, Redis and PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	observability.FlushSentry()

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeResources() error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}
