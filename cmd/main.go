/**
 * @description
 * This is the main entry point for the ledger-service. It loads configuration,
 * opens the ledger store, connects the message broker and rate limiter, starts
 * the audit scheduler and serves the HTTP API until it receives a signal.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and pool.
 * - github.com/redis/go-redis/v9: Shared rate limiter state.
 * - github.com/joho/godotenv: Loads a local .env file for development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/campusrewards/ledger-service/internal/api"
	"github.com/campusrewards/ledger-service/internal/app"
	"github.com/campusrewards/ledger-service/internal/config"
	"github.com/campusrewards/ledger-service/internal/domain"
	"github.com/campusrewards/ledger-service/internal/store"
	rmrabbit "github.com/campusrewards/ledger-service/pkg/rabbitmq"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found; using process environment", "component", "bootstrap")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "component", "bootstrap", "error", err)
		os.Exit(1)
	}
	if cfg.JWTSigningKey == "" {
		logger.Error("jwt signing key must be configured", "component", "bootstrap", "env", "JWT_SIGNING_KEY")
		os.Exit(1)
	}
	logger.Info("starting ledger-service", "component", "bootstrap", "port", cfg.ServerPort)

	ctx := context.Background()

	shutdownTracing, err := setupTracing(ctx, cfg.OTELExporterOTLPEndpoint, cfg.ServiceName, logger)
	if err != nil {
		logger.Error("failed to set up tracing", "component", "bootstrap", "error", err)
		os.Exit(1)
	}

	ledgerStore, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	var publisher rmrabbit.Publisher = &rmrabbit.EventProducerFallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq producer unavailable; using fallback", "component", "bootstrap", "error", err)
		} else {
			defer producer.Close()
			publisher = producer
			logger.Info("rabbitmq producer connected", "component", "bootstrap")
		}
	} else {
		logger.Warn("rabbitmq url missing; ledger events will not be published", "component", "bootstrap", "env", "RABBITMQ_URL")
	}

	ledgerService := app.NewService(ledgerStore, publisher, logger, app.WithEventsExchange(cfg.LedgerEventsExchange))
	ledgerService.SetRateLimiter(newRateLimiter(ctx, cfg, logger), app.RateLimits{
		RedemptionsPerMinute: cfg.RedemptionRateLimitPerMinute,
		TransfersPerMinute:   cfg.TransferRateLimitPerMinute,
	})

	if cfg.RabbitMQURL != "" {
		consumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq consumer unavailable; flag commands disabled", "component", "bootstrap", "error", err)
		} else {
			defer consumer.Close()
			flagConsumer := app.NewFlagCommandConsumer(ledgerService, logger)
			bindings := map[string]func([]byte) bool{
				domain.RoutingFlagCommand: flagConsumer.HandleMessage,
			}
			if err := consumer.ConsumeWithBindings(cfg.LedgerCommandsExchange, cfg.LedgerCommandQueue, bindings); err != nil {
				logger.Error("flag command consumer start failed", "component", "bootstrap", "error", err)
				os.Exit(1)
			}
		}
	}

	scheduler := app.NewScheduler(ledgerService, logger, cfg.LedgerAuditSchedule)
	if err := scheduler.Start(); err != nil {
		logger.Error("failed to start scheduler", "component", "bootstrap", "error", err)
		os.Exit(1)
	}

	handlers := api.NewLedgerHandlers(ledgerService, logger)
	router := api.NewRouter(handlers, api.RouterConfig{
		SigningKey:     []byte(cfg.JWTSigningKey),
		AllowedOrigins: cfg.AllowedOrigins(),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "component", "http", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", "component", "http", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started", "component", "http")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "component", "http", "error", err)
	}
	<-scheduler.Stop().Done()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", "component", "bootstrap", "error", err)
	}

	logger.Info("shutdown complete", "component", "http")
}

// openStore connects to Postgres and applies the schema. Without DATABASE_URL the
// ledger runs on an in-memory store.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn("database url missing; using in-memory ledger store", "component", "bootstrap", "env", "DATABASE_URL")
		return store.NewMemoryStore(time.Now), func() {}
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "component", "bootstrap", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = cfg.DBMaxConns
	poolConfig.MinConns = cfg.DBMinConns
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "component", "bootstrap", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established", "component", "bootstrap")

	pg := store.NewPostgresStore(dbpool)
	if err := pg.Migrate(ctx); err != nil {
		dbpool.Close()
		logger.Error("failed to apply ledger schema", "component", "bootstrap", "error", err)
		os.Exit(1)
	}
	return pg, dbpool.Close
}

// newRateLimiter prefers Redis so limits hold across instances, falling back to
// an in-process token bucket.
func newRateLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) app.RateLimiter {
	if cfg.RedemptionRateLimitPerMinute == 0 && cfg.TransferRateLimitPerMinute == 0 {
		logger.Info("rate limiting disabled", "component", "bootstrap")
		return nil
	}
	if cfg.RedisURL == "" {
		logger.Warn("redis url missing; using in-process rate limiter", "component", "bootstrap", "env", "REDIS_URL")
		return app.NewTokenBucketLimiter(time.Now)
	}

	redisOptions, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("redis url parse failed; using in-process rate limiter", "component", "bootstrap", "error", err)
		return app.NewTokenBucketLimiter(time.Now)
	}
	redisClient := redis.NewClient(redisOptions)
	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis ping failed; using in-process rate limiter", "component", "bootstrap", "error", err)
		redisClient.Close()
		return app.NewTokenBucketLimiter(time.Now)
	}
	logger.Info("redis connected", "component", "bootstrap")
	return app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
}
