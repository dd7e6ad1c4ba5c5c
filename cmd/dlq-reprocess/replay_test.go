package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

func TestDecodeDeadLetter(t *testing.T) {
	event, err := decodeDeadLetter(deadLetterValue(t, "outbox-1", "order-1", domain.OutboxEventOrderPlaced))
	require.NoError(t, err)
	require.Equal(t, "outbox-1", event.ID)
	require.Equal(t, "order-1", event.AggregateID)
	require.Equal(t, domain.OutboxAggregateOrder, event.AggregateType)

	var placed domain.OrderPlacedPayload
	require.NoError(t, json.Unmarshal(event.Payload, &placed), "replayed payload is the original event body")
	require.Equal(t, "order-1", placed.OrderID)
}

func TestDecodeDeadLetter_EnvelopeFillsGaps(t *testing.T) {
	event, err := decodeDeadLetter([]byte(`{
		"id": "outbox-7",
		"aggregate_type": "order",
		"aggregate_id": "order-7",
		"event_type": "order.status_changed",
		"payload": {"payload": {"to": "shipped"}, "publish_error": "timeout"}
	}`))
	require.NoError(t, err)
	require.Equal(t, "outbox-7", event.ID)
	require.Equal(t, "order-7", event.AggregateID)
	require.Equal(t, domain.OutboxEventStatusChanged, event.EventType)
}

func TestDecodeDeadLetter_Rejects(t *testing.T) {
	for name, value := range map[string]string{
		"not json":           `not-json`,
		"empty payload":      `{"id":"x","event_type":"order.placed"}`,
		"payload not object": `{"id":"x","payload":"text"}`,
		"no original body":   `{"id":"x","event_type":"order.placed","payload":{"outbox_id":"x"}}`,
		"no event type":      `{"id":"x","payload":{"outbox_id":"x","payload":{"a":1}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeDeadLetter([]byte(value))
			require.Error(t, err)
		})
	}
}

func newReplayer(cfg config, offsets offsetClient, consumer partitionConsumerSource, pub domain.OutboxPublisher) *replayer {
	cfg.sourceTopic = kafka.TopicDeadLetterQueue
	cfg.targetTopic = kafka.TopicOrderEvents
	if cfg.idleTimeout == 0 {
		cfg.idleTimeout = 20 * time.Millisecond
	}
	if cfg.limit == 0 {
		cfg.limit = 10
	}
	return &replayer{cfg: cfg, offsets: offsets, consumer: consumer, publisher: pub, logger: log.WithField("test", "replay")}
}

func TestReplayer_DryRunAndExecute(t *testing.T) {
	for _, execute := range []bool{false, true} {
		t.Run(fmt.Sprintf("execute=%v", execute), func(t *testing.T) {
			offsets := &stubOffsets{partitions: []int32{0}, ranges: map[int32][2]int64{0: {0, 2}}}
			consumer := &stubConsumer{partitions: map[int32]partitionConsumer{
				0: drained(deadLetterMessage(t, 0, 0, "outbox-1", "order-1", domain.OutboxEventOrderPlaced)),
			}}
			pub := &stubPublisher{}

			stats, err := newReplayer(config{execute: execute}, offsets, consumer, pub).Run(context.Background())
			require.NoError(t, err)
			require.Equal(t, replayStats{scanned: 1, replayed: 1}, stats)
			require.Equal(t, []consumeCall{{partition: 0, offset: 0}}, consumer.calls)
			if execute {
				require.Len(t, pub.events, 1)
				require.Equal(t, "outbox-1", pub.events[0].ID)
			} else {
				require.Empty(t, pub.events, "dry run publishes nothing")
			}
		})
	}
}

func TestReplayer_EventTypeFilter(t *testing.T) {
	offsets := &stubOffsets{partitions: []int32{0}, ranges: map[int32][2]int64{0: {0, 3}}}
	consumer := &stubConsumer{partitions: map[int32]partitionConsumer{
		0: drained(
			deadLetterMessage(t, 0, 0, "outbox-1", "order-1", domain.OutboxEventOrderPlaced),
			deadLetterMessage(t, 0, 1, "outbox-2", "order-1", domain.OutboxEventStatusChanged),
			deadLetterMessage(t, 0, 2, "outbox-3", "order-2", domain.OutboxEventOrderPlaced),
		),
	}}
	pub := &stubPublisher{}

	stats, err := newReplayer(config{execute: true, eventType: domain.OutboxEventStatusChanged}, offsets, consumer, pub).
		Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, replayStats{scanned: 3, replayed: 1, skipped: 2}, stats)
	require.Len(t, pub.events, 1)
	require.Equal(t, "outbox-2", pub.events[0].ID)
}

func TestReplayer_LimitSpansPartitionsInOrder(t *testing.T) {
	offsets := &stubOffsets{
		partitions: []int32{2, 0},
		ranges:     map[int32][2]int64{0: {0, 1}, 2: {0, 1}},
	}
	consumer := &stubConsumer{partitions: map[int32]partitionConsumer{
		0: drained(deadLetterMessage(t, 0, 0, "outbox-1", "order-1", domain.OutboxEventOrderPlaced)),
		2: drained(deadLetterMessage(t, 2, 0, "outbox-2", "order-2", domain.OutboxEventOrderPlaced)),
	}}

	stats, err := newReplayer(config{limit: 1}, offsets, consumer, nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.scanned)
	require.Equal(t, []consumeCall{{partition: 0, offset: 0}}, consumer.calls, "lowest partition first, then stop at limit")
}

func TestReplayer_FromNewestWindow(t *testing.T) {
	offsets := &stubOffsets{partitions: []int32{0}, ranges: map[int32][2]int64{0: {3, 10}}}
	consumer := &stubConsumer{partitions: map[int32]partitionConsumer{0: drained()}}

	_, err := newReplayer(config{fromNewest: true, limit: 2}, offsets, consumer, nil).Run(context.Background())
	require.NoError(t, err)
	_, err = newReplayer(config{fromNewest: true, limit: 100}, offsets, consumer, nil).Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []consumeCall{{0, 8}, {0, 3}}, consumer.calls, "window never starts before the oldest offset")
}

func TestReplayer_SkipsEmptyPartition(t *testing.T) {
	offsets := &stubOffsets{partitions: []int32{0}, ranges: map[int32][2]int64{0: {5, 5}}}
	consumer := &stubConsumer{}

	stats, err := newReplayer(config{}, offsets, consumer, nil).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats)
	require.Empty(t, consumer.calls)
}

func TestReplayer_Errors(t *testing.T) {
	healthy := func() *stubOffsets {
		return &stubOffsets{partitions: []int32{0}, ranges: map[int32][2]int64{0: {0, 2}}}
	}
	letter := func() partitionConsumer {
		return drained(deadLetterMessage(t, 0, 0, "outbox-1", "order-1", domain.OutboxEventOrderPlaced))
	}
	broken := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	broken.errors <- &sarama.ConsumerError{Err: errors.New("leader moved")}

	tests := []struct {
		name     string
		cfg      config
		offsets  offsetClient
		consumer partitionConsumerSource
		pub      domain.OutboxPublisher
		wantErr  string
	}{
		{name: "no client", wantErr: "kafka client and consumer are required"},
		{name: "execute without publisher", cfg: config{execute: true}, offsets: healthy(), consumer: &stubConsumer{}, wantErr: "publisher is required"},
		{name: "partitions", offsets: &stubOffsets{partitionsErr: errors.New("metadata")}, consumer: &stubConsumer{}, wantErr: "list partitions"},
		{name: "offsets", offsets: &stubOffsets{partitions: []int32{0}, offsetErr: errors.New("offset")}, consumer: &stubConsumer{}, wantErr: "oldest offset of partition 0"},
		{name: "consume", offsets: healthy(), consumer: &stubConsumer{err: errors.New("consume")}, wantErr: "consume partition 0"},
		{name: "consumer error", offsets: healthy(), consumer: &stubConsumer{partitions: map[int32]partitionConsumer{0: broken}}, wantErr: "leader moved"},
		{
			name:     "publish",
			cfg:      config{execute: true},
			offsets:  healthy(),
			consumer: &stubConsumer{partitions: map[int32]partitionConsumer{0: letter()}},
			pub:      &stubPublisher{err: errors.New("send fail")},
			wantErr:  "replay outbox message outbox-1: send fail",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newReplayer(tt.cfg, tt.offsets, tt.consumer, tt.pub).Run(context.Background())
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestReplayer_IdleTimeoutAndCancel(t *testing.T) {
	silent := func() *stubPartitionConsumer {
		return &stubPartitionConsumer{
			messages: make(chan *sarama.ConsumerMessage),
			errors:   make(chan *sarama.ConsumerError),
		}
	}
	offsets := &stubOffsets{partitions: []int32{0}, ranges: map[int32][2]int64{0: {0, 2}}}

	consumer := &stubConsumer{partitions: map[int32]partitionConsumer{0: silent()}}
	stats, err := newReplayer(config{idleTimeout: 10 * time.Millisecond}, offsets, consumer, nil).Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.scanned)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	consumer = &stubConsumer{partitions: map[int32]partitionConsumer{0: silent()}}
	_, err = newReplayer(config{idleTimeout: time.Minute}, offsets, consumer, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// deadLetterValue собирает сообщение DLQ так, как его пишет outbox relay.
func deadLetterValue(t *testing.T, outboxID, orderID, eventType string) []byte {
	t.Helper()

	body, err := json.Marshal(domain.OrderPlacedPayload{OrderID: orderID})
	require.NoError(t, err)
	letter, err := outbox.NewDeadLetter(domain.OutboxMessage{
		ID:            outboxID,
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       body,
	}, errors.New("kafka: broker not available"), 3, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)).Message()
	require.NoError(t, err)

	raw, err := json.Marshal(kafka.NewEnvelope(letter, time.Now().UTC()))
	require.NoError(t, err)
	return raw
}

func deadLetterMessage(t *testing.T, partition int32, offset int64, outboxID, orderID, eventType string) *sarama.ConsumerMessage {
	t.Helper()
	return &sarama.ConsumerMessage{
		Partition: partition,
		Offset:    offset,
		Value:     deadLetterValue(t, outboxID, orderID, eventType),
	}
}

type stubOffsets struct {
	partitions    []int32
	partitionsErr error
	ranges        map[int32][2]int64
	offsetErr     error
	closed        bool
}

func (s *stubOffsets) Partitions(string) ([]int32, error) {
	return append([]int32(nil), s.partitions...), s.partitionsErr
}

func (s *stubOffsets) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if s.offsetErr != nil {
		return 0, s.offsetErr
	}
	if marker == sarama.OffsetOldest {
		return s.ranges[partition][0], nil
	}
	return s.ranges[partition][1], nil
}

func (s *stubOffsets) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubConsumer struct {
	partitions map[int32]partitionConsumer
	err        error
	calls      []consumeCall
	closed     bool
}

func (s *stubConsumer) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition, offset})
	if s.err != nil {
		return nil, s.err
	}
	pc, ok := s.partitions[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubConsumer) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error                             { return nil }

// drained отдаёт сообщения из буфера, после чего каналы закрыты.
func drained(msgs ...*sarama.ConsumerMessage) *stubPartitionConsumer {
	pc := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(msgs)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for _, m := range msgs {
		pc.messages <- m
	}
	close(pc.messages)
	close(pc.errors)
	return pc
}

type stubPublisher struct {
	err    error
	events []domain.OutboxMessage
}

func (s *stubPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}
