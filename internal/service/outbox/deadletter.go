package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DeadLetter лежит в payload сообщения DLQ. Из него dlq-reprocess
// восстанавливает исходное событие.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
}

// NewDeadLetter описывает сообщение, которое не удалось опубликовать.
func NewDeadLetter(msg domain.OutboxMessage, cause error, attempts int, failedAt time.Time) DeadLetter {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage("null")
	}
	letter := DeadLetter{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		Attempts:      attempts,
		FailedAt:      failedAt,
	}
	if cause != nil {
		letter.PublishError = cause.Error()
	}
	return letter
}

// Message упаковывает письмо в outbox-сообщение с метаданными исходного события.
func (d DeadLetter) Message() (domain.OutboxMessage, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal dead letter %s: %w", d.OutboxID, err)
	}
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       body,
	}, nil
}

func (w *Worker) publishDeadLetter(ctx context.Context, msg domain.OutboxMessage, cause error) error {
	if w.dlq == nil {
		return nil
	}
	dlqMsg, err := NewDeadLetter(msg, cause, w.maxAttempts, w.now()).Message()
	if err != nil {
		return err
	}
	if err := w.dlq.Publish(ctx, dlqMsg); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

// Original восстанавливает исходное outbox-событие. ok=false, если в письме
// нет тела или типа события и переиграть его нельзя.
func (d DeadLetter) Original() (msg domain.OutboxMessage, ok bool) {
	if len(d.Payload) == 0 || string(d.Payload) == "null" || d.EventType == "" {
		return domain.OutboxMessage{}, false
	}
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}, true
}
