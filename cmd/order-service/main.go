package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/app"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const (
	envLogLevel                    = "STORE_LOG_LEVEL"
	envHTTPAddr                    = "STORE_HTTP_ADDR"
	envGRPCAddr                    = "STORE_GRPC_ADDR"
	envMetricsAddr                 = "STORE_METRICS_ADDR"
	envStorageDriver               = "STORE_STORAGE_DRIVER"
	envPostgresDSN                 = "STORE_POSTGRES_DSN"
	envPostgresAutoMigrate         = "STORE_POSTGRES_AUTO_MIGRATE"
	envPostgresMaxConns            = "STORE_POSTGRES_MAX_CONNS"
	envRedisAddr                   = "STORE_REDIS_ADDR"
	envRedisPassword               = "STORE_REDIS_PASSWORD"
	envRedisDB                     = "STORE_REDIS_DB"
	envKafkaBrokers                = "STORE_KAFKA_BROKERS"
	envKafkaTopic                  = "STORE_KAFKA_TOPIC"
	envKafkaDLQTopic               = "STORE_KAFKA_DLQ_TOPIC"
	envOutboxPollInterval          = "STORE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "STORE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "STORE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "STORE_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "STORE_OUTBOX_MAX_PENDING"
	envIdempotencyTTL              = "STORE_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "STORE_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "STORE_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envTraceSampleRatio            = "STORE_TRACE_SAMPLE_RATIO"
	envShutdownTimeout             = "STORE_SHUTDOWN_TIMEOUT"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		level, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warnf("invalid %s, using info", envLogLevel)
			return
		}
		log.SetLevel(level)
	}
}

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не применяются и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v, using default", key, err))
	}

	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envGRPCAddr, &cfg.GRPCAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setString(envRedisAddr, &cfg.RedisAddr)
	setString(envRedisPassword, &cfg.RedisPassword)
	setString(envKafkaBrokers, &cfg.KafkaBrokers)
	setString(envKafkaTopic, &cfg.KafkaTopic)
	setString(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}

	if v, ok := lookup(envPostgresAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	setInt := func(key string, dst *int, valid func(int) bool, rule string) {
		if v, ok := lookup(key); ok {
			if parsed, err := parseInt(v, valid, rule); err != nil {
				warn(key, err)
			} else {
				*dst = parsed
			}
		}
	}
	setInt(envPostgresMaxConns, &cfg.PostgresMaxConns, positive, "must be > 0")
	setInt(envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0")
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	setInt(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")
	setInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positive, "must be > 0")

	positiveDur := func(v time.Duration) bool { return v > 0 }
	nonNegativeDur := func(v time.Duration) bool { return v >= 0 }
	setDuration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		if v, ok := lookup(key); ok {
			if parsed, err := parseDuration(v, valid, rule); err != nil {
				warn(key, err)
			} else {
				*dst = parsed
			}
		}
	}
	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDur, "must be > 0")
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDur, "must be >= 0")
	setDuration(envIdempotencyTTL, &cfg.IdempotencyTTL, positiveDur, "must be > 0")
	setDuration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDur, "must be > 0")
	setDuration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDur, "must be > 0")

	if v, ok := lookup(envTraceSampleRatio); ok {
		ratio, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		switch {
		case err != nil:
			warn(envTraceSampleRatio, err)
		case ratio < 0 || ratio > 1:
			warn(envTraceSampleRatio, errors.New("must be within [0, 1]"))
		default:
			cfg.TraceSampleRatio = ratio
		}
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if !valid(v) {
		return 0, fmt.Errorf("value %d %s", v, rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if !valid(v) {
		return 0, fmt.Errorf("value %s %s", v, rule)
	}
	return v, nil
}

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(version.Current().Fields()).WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
	}).Info("запускаем storefront order service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("storefront order service остановлен")
}
