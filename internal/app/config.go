package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	ServiceName string
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int

	// RedisAddr включает Redis как хранилище idempotency-ключей.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Брокеры через запятую; пустое значение отключает outbox relay.
	KafkaBrokers  string
	KafkaClientID string
	KafkaTopic    string
	KafkaDLQTopic string

	OutboxPollInterval  time.Duration
	OutboxBatchSize     int
	OutboxMaxAttempts   int
	OutboxRetryDelay    time.Duration
	OutboxMaxPending    int
	OutboxMaxPendingAge time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	TraceSampleRatio float64
	ShutdownTimeout  time.Duration
}

// DefaultConfig возвращает конфигурацию для локального запуска в памяти.
func DefaultConfig() Config {
	return Config{
		ServiceName: "storefront",
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		PostgresMaxConns:    25,

		KafkaClientID: "storefront",
		KafkaTopic:    kafka.TopicOrderEvents,
		KafkaDLQTopic: kafka.TopicDeadLetterQueue,

		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    200 * time.Millisecond,
		OutboxMaxPending:    1000,
		OutboxMaxPendingAge: 5 * time.Minute,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		TraceSampleRatio: 1,
		ShutdownTimeout:  5 * time.Second,
	}
}

// Brokers возвращает список Kafka-брокеров без пустых элементов.
func (c Config) Brokers() []string {
	return kafka.SplitBrokers(c.KafkaBrokers)
}

// Validate отклоняет конфигурацию, с которой сервис не сможет стартовать.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres storage requires a DSN"))
		}
		if c.PostgresMaxConns < 0 {
			errs = append(errs, fmt.Errorf("postgres max conns %d must be >= 0", c.PostgresMaxConns))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.HTTPAddr == "" || c.GRPCAddr == "" || c.MetricsAddr == "" {
		errs = append(errs, errors.New("http, grpc and metrics addresses are required"))
	}
	if len(c.Brokers()) > 0 && c.KafkaTopic == c.KafkaDLQTopic {
		errs = append(errs, fmt.Errorf("kafka topic and dlq topic must differ, both are %q", c.KafkaTopic))
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("trace sample ratio %v is outside [0, 1]", c.TraceSampleRatio))
	}
	if c.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("redis db %d must be >= 0", c.RedisDB))
	}
	return errors.Join(errs...)
}
