// Command dlq-reprocess возвращает события заказов из DLQ в основной топик.
// Без -execute работает как dry-run и только логирует кандидатов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const clientID = "storefront-dlq-reprocess"

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	eventType   string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func (c config) mode() string {
	if c.execute {
		return "execute"
	}
	return "dry-run"
}

func (c config) validate() error {
	var errs []error
	if len(c.brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required (-brokers or STORE_KAFKA_BROKERS)"))
	}
	if c.sourceTopic == "" || c.targetTopic == "" {
		errs = append(errs, errors.New("source-topic and target-topic are required"))
	} else if c.sourceTopic == c.targetTopic {
		errs = append(errs, fmt.Errorf("source-topic and target-topic must differ, both are %q", c.sourceTopic))
	}
	if c.limit <= 0 {
		errs = append(errs, fmt.Errorf("limit must be > 0, got %d", c.limit))
	}
	if c.idleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("idle-timeout must be > 0, got %s", c.idleTimeout))
	}
	switch c.eventType {
	case "", domain.OutboxEventOrderPlaced, domain.OutboxEventStatusChanged:
	default:
		errs = append(errs, fmt.Errorf("unsupported event-type %q", c.eventType))
	}
	return errors.Join(errs...)
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)

	var (
		cfg     config
		brokers string
	)
	fs.StringVar(&brokers, "brokers", "", "comma-separated Kafka brokers (default $STORE_KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to read")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "topic to replay into")
	fs.StringVar(&cfg.eventType, "event-type", "", "replay only this event type")
	fs.IntVar(&cfg.limit, "limit", 100, "max messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish candidates instead of logging them")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the newest limit messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", 2*time.Second, "stop reading a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokers) == "" {
		brokers = getenv("STORE_KAFKA_BROKERS")
	}
	cfg.brokers = kafka.SplitBrokers(brokers)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)
	cfg.eventType = strings.TrimSpace(cfg.eventType)

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// replayDeps собирает Kafka-клиентов; producer нужен только в режиме execute.
type replayDeps struct {
	offsets  offsetClient
	consumer partitionConsumerSource
	producer *kafka.Producer
}

func (d replayDeps) close() {
	if d.producer != nil {
		_ = d.producer.Close()
	}
	if d.consumer != nil {
		_ = d.consumer.Close()
	}
	if d.offsets != nil {
		_ = d.offsets.Close()
	}
}

type saramaConsumer struct{ sarama.Consumer }

func (c saramaConsumer) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return c.Consumer.ConsumePartition(topic, partition, offset)
}

var dialKafka = func(cfg config) (replayDeps, error) {
	sc := sarama.NewConfig()
	sc.ClientID = clientID
	sc.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, sc)
	if err != nil {
		return replayDeps{}, fmt.Errorf("connect to kafka: %w", err)
	}
	deps := replayDeps{offsets: client}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		deps.close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps.consumer = saramaConsumer{consumer}

	if cfg.execute {
		deps.producer, err = kafka.NewProducer(cfg.brokers, clientID, log.WithField("component", "dlq-replay-producer"))
		if err != nil {
			deps.close()
			return replayDeps{}, err
		}
	}
	return deps, nil
}

func run(ctx context.Context, cfg config) (replayStats, error) {
	deps, err := dialKafka(cfg)
	if err != nil {
		return replayStats{}, err
	}
	defer deps.close()

	r := &replayer{
		cfg:      cfg,
		offsets:  deps.offsets,
		consumer: deps.consumer,
		logger:   log.WithField("component", "dlq-replay"),
	}
	if deps.producer != nil {
		r.publisher = deps.producer.Topic(cfg.targetTopic)
	}
	return r.Run(ctx)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"event_type":   cfg.eventType,
		"mode":         cfg.mode(),
	})
	logger.Info("dlq replay started")

	stats, err := run(ctx, cfg)
	logger = logger.WithFields(stats.fields())
	if err != nil {
		logger.WithError(err).Fatal("dlq replay failed")
	}
	logger.Info("dlq replay finished")
}
