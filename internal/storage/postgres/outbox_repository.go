package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// outboxRepository работает через queryer транзакции заказа: событие
// фиксируется или откатывается вместе с изменением заказа.
type outboxRepository struct {
	q queryer
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload, status, attempt_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $7)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
		string(domain.OutboxStatusPending), time.Now().UTC())
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue %s for %s: %w", msg.EventType, msg.AggregateID, err)
	}
	return msg, nil
}

// PullPending читает самые старые pending-сообщения в порядке записи.
func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = domain.DefaultOutboxBatch
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return queryAll(ctx, r.q, "pending outbox messages", scanOutboxMessage, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2
	`, string(domain.OutboxStatusPending), limit)
}

func scanOutboxMessage(row rowScanner) (domain.OutboxMessage, error) {
	var m domain.OutboxMessage
	err := row.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload)
	return m, err
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = $1`,
		string(domain.OutboxStatusPending),
	).Scan(&stats.PendingCount, &oldest)
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox backlog stats: %w", err)
	}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.OutboxStatusSent)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.setStatus(ctx, id, domain.OutboxStatusFailed)
}

// setStatus закрывает сообщение и увеличивает счётчик попыток relay.
func (r *outboxRepository) setStatus(ctx context.Context, id string, status domain.OutboxStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, attempt_count = attempt_count + 1, updated_at = $3
		WHERE id = $1
	`, id, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox message %s as %s: %w", id, status, err)
	}
	updated, err := affectedRows(res)
	if err != nil {
		return err
	}
	if updated == 0 {
		return domain.NewNotFound("outbox message", "id", id)
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
