package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// timelineRepository хранит историю заказа в timeline_events; порядок
// внутри одного момента времени задаёт BIGSERIAL id.
type timelineRepository struct {
	q queryer
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	occurred := event.Occurred
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO timeline_events (order_id, type, reason, occurred) VALUES ($1, $2, $3, $4)`,
		event.OrderID, event.Type, event.Reason, occurred,
	)
	if err != nil {
		return fmt.Errorf("append %s to order %s timeline: %w", event.Type, event.OrderID, err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	scan := func(row rowScanner) (domain.TimelineEvent, error) {
		ev := domain.TimelineEvent{OrderID: orderID}
		err := row.Scan(&ev.Type, &ev.Reason, &ev.Occurred)
		return ev, err
	}
	return queryAll(ctx, r.q, "order "+orderID+" timeline", scan,
		`SELECT type, reason, occurred FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id`,
		orderID,
	)
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
