package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// outboxRecord хранит сообщение вместе со статусом доставки.
type outboxRecord struct {
	msg       domain.OutboxMessage
	status    domain.OutboxStatus
	createdAt time.Time
}

func (a outboxRecord) olderThan(b outboxRecord) int {
	if c := a.createdAt.Compare(b.createdAt); c != 0 {
		return c
	}
	return cmp.Compare(a.msg.ID, b.msg.ID)
}

// outboxRepository пишет сообщения в тот же state, что и заказы, поэтому
// событие появляется только вместе с закоммиченной транзакцией.
type outboxRepository struct {
	acc accessor
}

func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	rec := outboxRecord{msg: msg, status: domain.OutboxStatusPending, createdAt: time.Now().UTC()}
	err := r.acc.write(func(st *state) error {
		st.outbox[msg.ID] = rec
		return nil
	})
	return msg, err
}

// PullPending отдаёт до limit ожидающих сообщений, старые первыми.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = domain.DefaultOutboxBatch
	}

	var batch []domain.OutboxMessage
	err := r.acc.read(func(st *state) error {
		pending := r.pending(st)
		slices.SortFunc(pending, outboxRecord.olderThan)
		batch = make([]domain.OutboxMessage, 0, min(limit, len(pending)))
		for _, rec := range pending[:min(limit, len(pending))] {
			batch = append(batch, rec.msg)
		}
		return nil
	})
	return batch, err
}

func (r *outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := r.acc.read(func(st *state) error {
		pending := r.pending(st)
		stats.PendingCount = len(pending)
		if len(pending) > 0 {
			stats.OldestPendingAt = slices.MinFunc(pending, outboxRecord.olderThan).createdAt
		}
		return nil
	})
	return stats, err
}

func (r *outboxRepository) pending(st *state) []outboxRecord {
	out := make([]outboxRecord, 0, len(st.outbox))
	for _, rec := range st.outbox {
		if rec.status == domain.OutboxStatusPending {
			out = append(out, rec)
		}
	}
	return out
}

func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.setStatus(id, domain.OutboxStatusSent)
}

func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.setStatus(id, domain.OutboxStatusFailed)
}

func (r *outboxRepository) setStatus(id string, status domain.OutboxStatus) error {
	return r.acc.write(func(st *state) error {
		rec, ok := st.outbox[id]
		if !ok {
			return domain.NewNotFound("outbox message", "id", id)
		}
		rec.status = status
		st.outbox[id] = rec
		return nil
	})
}

type timelineRepository struct {
	acc accessor
}

func (r *timelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	return r.acc.write(func(st *state) error {
		st.timeline[event.OrderID] = append(st.timeline[event.OrderID], event)
		return nil
	})
}

func (r *timelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var events []domain.TimelineEvent
	err := r.acc.read(func(st *state) error {
		events = append(make([]domain.TimelineEvent, 0, len(st.timeline[orderID])), st.timeline[orderID]...)
		return nil
	})
	return events, err
}

var (
	_ domain.OutboxRepository   = (*outboxRepository)(nil)
	_ domain.TimelineRepository = (*timelineRepository)(nil)
)
