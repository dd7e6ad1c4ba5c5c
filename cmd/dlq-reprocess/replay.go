package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

var errNotDeadLetter = errors.New("message is not an outbox dead letter")

type offsetClient interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s replayStats) fields() log.Fields {
	return log.Fields{"scanned": s.scanned, "replayed": s.replayed, "skipped": s.skipped}
}

// replayer читает партиции DLQ по очереди, пока не просмотрит cfg.limit
// сообщений, и переигрывает подходящие письма через publisher.
type replayer struct {
	cfg       config
	offsets   offsetClient
	consumer  partitionConsumerSource
	publisher domain.OutboxPublisher
	logger    *log.Entry
}

func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var stats replayStats
	if r.offsets == nil || r.consumer == nil {
		return stats, errors.New("kafka client and consumer are required")
	}
	if r.cfg.execute && r.publisher == nil {
		return stats, errors.New("publisher is required in execute mode")
	}

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return stats, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	slices.Sort(partitions)

	for _, p := range partitions {
		if stats.scanned >= r.cfg.limit {
			break
		}
		if err := r.replayPartition(ctx, p, &stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// window возвращает диапазон [from, to) офсетов, который стоит прочитать.
func (r *replayer) window(partition int32, budget int) (from, to int64, err error) {
	oldest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if r.cfg.fromNewest {
		oldest = max(oldest, newest-int64(budget))
	}
	return oldest, newest, nil
}

func (r *replayer) replayPartition(ctx context.Context, partition int32, stats *replayStats) error {
	budget := r.cfg.limit - stats.scanned
	from, to, err := r.window(partition, budget)
	if err != nil || from >= to {
		return err
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, from)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for seen := 0; seen < budget; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
			return nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= to {
				return nil
			}
			idle.Reset(r.cfg.idleTimeout)
			seen++
			stats.scanned++
			if err := r.handle(ctx, msg, stats); err != nil {
				return err
			}
			if msg.Offset+1 >= to {
				return nil
			}
		}
	}
	return nil
}

func (r *replayer) handle(ctx context.Context, msg *sarama.ConsumerMessage, stats *replayStats) error {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	event, err := decodeDeadLetter(msg.Value)
	if err != nil {
		stats.skipped++
		entry.WithError(err).Warn("skipping message that cannot be replayed")
		return nil
	}
	if r.cfg.eventType != "" && event.EventType != r.cfg.eventType {
		stats.skipped++
		return nil
	}

	entry = entry.WithFields(log.Fields{
		"outbox_id":  event.ID,
		"event_type": event.EventType,
		"order_id":   event.AggregateID,
	})
	if !r.cfg.execute {
		stats.replayed++
		entry.Info("replay candidate")
		return nil
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("replay outbox message %s: %w", event.ID, err)
	}
	stats.replayed++
	entry.Info("dead letter replayed")
	return nil
}

// decodeDeadLetter разворачивает kafka.Envelope с outbox.DeadLetter внутри.
// Пустые поля письма добираются из метаданных конверта.
func decodeDeadLetter(value []byte) (domain.OutboxMessage, error) {
	env, err := kafka.ParseEnvelope(value)
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return domain.OutboxMessage{}, errNotDeadLetter
	}

	var letter outbox.DeadLetter
	if err := json.Unmarshal(env.Payload, &letter); err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("%w: %w", errNotDeadLetter, err)
	}
	letter.OutboxID = cmp.Or(letter.OutboxID, env.ID)
	letter.AggregateType = cmp.Or(letter.AggregateType, env.AggregateType)
	letter.AggregateID = cmp.Or(letter.AggregateID, env.AggregateID)
	letter.EventType = cmp.Or(letter.EventType, env.EventType)

	event, ok := letter.Original()
	if !ok {
		return domain.OutboxMessage{}, fmt.Errorf("%w: original event is incomplete", errNotDeadLetter)
	}
	return event, nil
}
