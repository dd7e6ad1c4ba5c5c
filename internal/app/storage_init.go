package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

// runtimeDependencies — хранилища, выбранные по конфигурации.
type runtimeDependencies struct {
	store           domain.Store
	repo            domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository
	checkers        map[string]healthcheck.Checker
	closers         []func() error
}

func (d *runtimeDependencies) close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}

	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		deps.store = store
		deps.idempotencyRepo = memory.NewIdempotencyRepository()
		logger.Info("using in-memory storage")
	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, errors.New("postgres dsn is required for storage driver postgres")
		}
		pool := postgres.DefaultPool()
		pool.MaxConns = cfg.PostgresMaxConns
		store, err := postgres.OpenWithPool(ctx, dsn, pool)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = deps.close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
		}

		deps.store = store
		deps.idempotencyRepo = postgres.NewIdempotencyRepository(store)
		deps.checkers["postgres"] = healthcheck.NewPingChecker("postgres", store.Ping)
		registerDBStats(store.DB(), logger)
		logger.WithFields(log.Fields{
			"auto_migrate": cfg.PostgresAutoMigrate,
			"max_conns":    pool.MaxConns,
		}).Info("using postgres storage")
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		client, err := redisstore.Open(ctx, addr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = deps.close()
			return nil, fmt.Errorf("open redis: %w", err)
		}
		deps.closers = append(deps.closers, client.Close)
		deps.idempotencyRepo = redisstore.NewIdempotencyRepository(client)
		deps.checkers["redis"] = healthcheck.NewPingChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.WithField("addr", addr).Info("using redis for idempotency keys")
	}

	deps.repo = deps.store.Orders()
	deps.outboxRepo = deps.store.Outbox()
	deps.timelineRepo = deps.store.Timeline()
	return deps, nil
}

// registerDBStats публикует статистику пула database/sql. Повторная
// регистрация (несколько запусков в одном процессе) не считается ошибкой.
func registerDBStats(db *sql.DB, logger *log.Entry) {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, "storefront"))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		logger.WithError(err).Warn("register postgres pool metrics")
	}
}
