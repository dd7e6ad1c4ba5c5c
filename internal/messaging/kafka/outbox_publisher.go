package kafka

import (
	"cmp"
	"context"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// TopicPublisher отправляет outbox-сообщения в один топик. Ключ партиции
// ID заказа, так что события заказа читаются в порядке записи.
type TopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// Publish оборачивает сообщение в Envelope. Повторная отправка безопасна
// для потребителей, которые дедуплицируют по x-message-id.
func (p *TopicPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	return p.producer.Send(ctx, Record{
		Topic: p.topic,
		Key:   cmp.Or(msg.AggregateID, msg.ID),
		Value: NewEnvelope(msg, p.now()),
		Headers: map[string]string{
			HeaderMessageID:     msg.ID,
			HeaderEventType:     msg.EventType,
			HeaderAggregateType: msg.AggregateType,
		},
	})
}

var _ domain.OutboxPublisher = (*TopicPublisher)(nil)
