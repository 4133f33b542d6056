// Package app wires together all dependencies and runs the checkout service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/harborline/checkout/internal/config"
	"github.com/harborline/checkout/internal/event"
	handler "github.com/harborline/checkout/internal/handler/http"
	"github.com/harborline/checkout/internal/provider/httpapi"
	"github.com/harborline/checkout/internal/repository/postgres"
	redisrepo "github.com/harborline/checkout/internal/repository/redis"
	"github.com/harborline/checkout/internal/service"
	"github.com/harborline/checkout/migrations"
	"github.com/harborline/checkout/pkg/database"
	apperrors "github.com/harborline/checkout/pkg/errors"
	"github.com/harborline/checkout/pkg/health"
	"github.com/harborline/checkout/pkg/httpclient"
	pkgkafka "github.com/harborline/checkout/pkg/kafka"
	"github.com/harborline/checkout/pkg/middleware"
	"github.com/harborline/checkout/pkg/tracing"
)

// circuitOpenFallback is installed on every collaborator circuit breaker.
// When a circuit is open the saga gets a structured retry hint instead of
// the raw gobreaker error.
func circuitOpenFallback(_ context.Context, _ error) (*http.Response, error) {
	return nil, apperrors.ServiceUnavailable("downstream service is temporarily unavailable, please retry after 30 seconds")
}

// App wires together all dependencies and runs the checkout service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redisClient    *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "checkout",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := cfg.PostgresConfig()
	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, "checkout")

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	// Initialize Redis for the cart mirror.
	redisClient, err := database.NewRedisClient(ctx, cfg.RedisConfig())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.RedisConfig().Addr()))

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	orderRepo := postgres.NewOrderRepository(pool)
	cartRepo := redisrepo.NewCartRepository(redisClient, cfg.CartTTL())
	eventProducer := event.NewProducer(producer, logger)

	// One circuit breaker per collaborator, so an inventory brownout
	// cannot trip the payment path. Writes with side effects get zero
	// transport retries: a charge and a stock decrement are each issued
	// exactly once, and replays happen only through the orchestrator under
	// the attempt's idempotency key.
	inventoryQueryDoer := newCollaboratorClient("inventory", 3, cfg, logger)
	inventoryCommitDoer := newCollaboratorClient("inventory-commit", 0, cfg, logger)
	paymentDoer := newCollaboratorClient("payment", 0, cfg, logger)
	registryDoer := newCollaboratorClient("discount-registry", 3, cfg, logger)

	inventoryClient := httpapi.NewInventoryClient(cfg.InventoryServiceURL, inventoryQueryDoer, inventoryCommitDoer)
	paymentClient := httpapi.NewPaymentClient(cfg.PaymentGatewayURL, paymentDoer)
	registryClient := httpapi.NewRegistryClient(cfg.DiscountRegistryURL, registryDoer)

	cartStore := service.NewCartStore(cartRepo, eventProducer, logger)
	discountEngine := service.NewDiscountEngine(registryClient, cartStore, logger)
	orchestrator := service.NewOrchestrator(
		cartStore,
		inventoryClient,
		paymentClient,
		orderRepo,
		eventProducer,
		logger,
		service.SagaTimeouts{
			InventoryTimeout: time.Duration(cfg.SagaInventoryTimeout) * time.Second,
			PaymentTimeout:   time.Duration(cfg.SagaPaymentTimeout) * time.Second,
			StockTimeout:     time.Duration(cfg.SagaStockTimeout) * time.Second,
		},
		cfg.Currency,
	)

	// Health checks. Kafka is non-critical: events are best effort and
	// a broker outage must not drain traffic away from checkout.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	router := handler.NewRouter(cartStore, discountEngine, orchestrator, orderRepo, healthHandler, handler.RouterConfig{
		CORS:       corsCfg,
		PprofCIDRs: cfg.PprofAllowedCIDRs,
	}, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redisClient:    redisClient,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newCollaboratorClient builds the HTTP client wrapped in a named circuit
// breaker for one downstream collaborator.
func newCollaboratorClient(name string, maxRetries int, cfg *config.Config, logger *slog.Logger) *httpclient.CircuitBreakerClient {
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         10 * time.Second,
		MaxRetries:      maxRetries,
		RetryWaitMin:    500 * time.Millisecond,
		RetryWaitMax:    5 * time.Second,
		MaxConnsPerHost: 100,
	})
	cbCfg := httpclient.CircuitBreakerConfig{
		Name:         "checkout-" + name,
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBInterval) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}
	return httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger).
		WithFallback(circuitOpenFallback)
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
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
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
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis client.
	if err := a.redisClient.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
