package app

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// connectKafka поднимает producer для outbox relay. Без брокеров relay
// выключен: producer равен nil, release ничего не делает.
func connectKafka(cfg Config, logger *log.Entry) (producer *kafka.Producer, release func(), err error) {
	release = func() {}

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		logger.Info("kafka brokers are not configured, outbox relay disabled")
		return nil, release, nil
	}

	producer, err = kafka.NewProducer(brokers, cfg.KafkaClientID, logger.WithField("component", "kafka-producer"))
	if err != nil {
		return nil, release, fmt.Errorf("connect kafka %s: %w", strings.Join(brokers, ","), err)
	}
	logger.WithFields(log.Fields{
		"brokers":   brokers,
		"topic":     cfg.KafkaTopic,
		"dlq_topic": cfg.KafkaDLQTopic,
	}).Info("kafka producer ready")

	release = func() {
		if err := producer.Close(); err != nil {
			logger.WithError(err).Warn("close kafka producer")
			return
		}
		logger.Info("kafka producer closed")
	}
	return producer, release, nil
}
