package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicDeadLetterQueue = "storefront.order.events.dlq"
)

// Заголовки сообщений; по ним потребители фильтруют события, не разбирая тело.
const (
	HeaderMessageID     = "x-message-id"
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
)

// Envelope — формат сообщения в topic: метаданные outbox плюс исходный payload.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt,
	}
}

// ParseEnvelope разбирает сообщение из topic.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return env, nil
}

// DecodeOrderPlaced достаёт payload события order.placed.
func (e Envelope) DecodeOrderPlaced() (domain.OrderPlacedPayload, error) {
	var payload domain.OrderPlacedPayload
	if e.EventType != domain.OutboxEventOrderPlaced {
		return payload, fmt.Errorf("unexpected event type %q", e.EventType)
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal order.placed payload: %w", err)
	}
	return payload, nil
}

// DecodeStatusChanged достаёт payload события order.status_changed.
func (e Envelope) DecodeStatusChanged() (domain.OrderStatusChangedPayload, error) {
	var payload domain.OrderStatusChangedPayload
	if e.EventType != domain.OutboxEventStatusChanged {
		return payload, fmt.Errorf("unexpected event type %q", e.EventType)
	}
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal order.status_changed payload: %w", err)
	}
	return payload, nil
}
