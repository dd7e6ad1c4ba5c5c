package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var sentMessages = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "storefront_kafka_messages_total",
	Help: "Messages handed to Kafka by topic and result",
}, []string{"topic", "result"})

// Record одно сообщение для отправки; Value сериализуется в JSON.
type Record struct {
	Topic   string
	Key     string
	Value   any
	Headers map[string]string
}

func (r Record) message(now time.Time) (*sarama.ProducerMessage, error) {
	body, err := json.Marshal(r.Value)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", r.Topic, err)
	}
	msg := &sarama.ProducerMessage{
		Topic:     r.Topic,
		Key:       sarama.StringEncoder(r.Key),
		Value:     sarama.ByteEncoder(body),
		Timestamp: now,
	}
	for _, k := range slices.Sorted(maps.Keys(r.Headers)) {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(r.Headers[k])})
	}
	return msg, nil
}

// Producer синхронно пишет в Kafka и ждёт подтверждения от всех ISR.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

// ProducerConfig настройки идемпотентного producer: acks=all, одна
// in-flight заявка на соединение, snappy.
func ProducerConfig(clientID string) *sarama.Config {
	c := sarama.NewConfig()
	if clientID != "" {
		c.ClientID = clientID
	}
	c.Producer.Idempotent = true
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Return.Successes = true
	c.Producer.Retry.Max = 5
	c.Producer.Compression = sarama.CompressionSnappy
	c.Net.MaxOpenRequests = 1
	return c
}

func NewProducer(brokers []string, clientID string, logger *log.Entry) (*Producer, error) {
	sync, err := sarama.NewSyncProducer(brokers, ProducerConfig(clientID))
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %v: %w", brokers, err)
	}
	return NewProducerFromSync(sync, logger), nil
}

// NewProducerFromSync оборачивает готовый SyncProducer (в тестах из sarama/mocks).
func NewProducerFromSync(sync sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{sync: sync, logger: logger}
}

// Send отправляет запись. SyncProducer не умеет отмену, поэтому ctx
// проверяется только перед отправкой.
func (p *Producer) Send(ctx context.Context, rec Record) error {
	if p == nil || p.sync == nil {
		return errors.New("kafka producer is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := rec.message(time.Now())
	if err != nil {
		return err
	}

	entry := p.logger.WithFields(log.Fields{"topic": rec.Topic, "key": rec.Key})
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		sentMessages.WithLabelValues(rec.Topic, "error").Inc()
		entry.WithError(err).Warn("kafka send failed")
		return fmt.Errorf("send to %s: %w", rec.Topic, err)
	}
	sentMessages.WithLabelValues(rec.Topic, "ok").Inc()
	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message sent")
	return nil
}

// Topic возвращает publisher outbox-сообщений в указанный топик.
func (p *Producer) Topic(name string) *TopicPublisher {
	if name == "" {
		name = TopicOrderEvents
	}
	return &TopicPublisher{producer: p, topic: name, now: func() time.Time { return time.Now().UTC() }}
}

func (p *Producer) Close() error {
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// SplitBrokers разбирает список брокеров через запятую, пробелы допустимы.
func SplitBrokers(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}
