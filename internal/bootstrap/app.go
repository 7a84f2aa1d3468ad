package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/storepay/internal/infrastructure/config"
	"github.com/cassiomorais/storepay/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/storepay/internal/infrastructure/redis"
	"github.com/cassiomorais/storepay/internal/providers"
	"github.com/cassiomorais/storepay/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Metrics  *observability.Metrics
	Registry *providers.Registry
	Repos    *Repositories
}

// Repositories are the Postgres-backed stores shared by the api and worker.
type Repositories struct {
	Stores       *postgres.StoreRepository
	Configs      *postgres.ProviderConfigRepository
	Pending      *postgres.PendingPaymentRepository
	Ledger       *postgres.TransactionRepository
	Orders       *postgres.OrderRepository
	Outbox       *postgres.OutboxRepository
	CallbackLogs *postgres.CallbackLogRepository
	Idempotency  *postgres.IdempotencyRepository
	TxManager    *postgres.TxManager
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Str("environment", cfg.Environment).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	metrics := observability.NewMetrics(metricsNamespace, nil)

	registry := providers.NewRegistry(providers.WithStateChangeHook(func(provider string, from, to gobreaker.State) {
		metrics.CircuitBreakerState.WithLabelValues(provider).Set(observability.BreakerStateValue(to.String()))
		logger.Warn().
			Str("provider", provider).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")
	}))

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Redis:    redisClient,
		Metrics:  metrics,
		Registry: registry,
		Repos: &Repositories{
			Stores:       postgres.NewStoreRepository(pool),
			Configs:      postgres.NewProviderConfigRepository(pool),
			Pending:      postgres.NewPendingPaymentRepository(pool),
			Ledger:       postgres.NewTransactionRepository(pool),
			Orders:       postgres.NewOrderRepository(pool),
			Outbox:       postgres.NewOutboxRepository(pool),
			CallbackLogs: postgres.NewCallbackLogRepository(pool),
			Idempotency:  postgres.NewIdempotencyRepository(pool),
			TxManager:    postgres.NewTxManager(pool),
		},
	}, nil
}

// Locker returns the Redis-backed lock used by reconciliation and refunds.
func (a *App) Locker() *infraRedis.Locker {
	return infraRedis.NewLocker(a.Redis)
}

func (a *App) Close() {
	a.Redis.Close()
	a.Pool.Close()
}
