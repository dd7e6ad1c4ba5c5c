// Package idempotency делает оформление заказа повторяемым по Idempotency-Key
// и убирает просроченные ключи.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
)

var (
	cleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_idempotency_cleanup_runs_total",
		Help: "Idempotency cleanup runs by result.",
	}, []string{"result"})
	cleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_idempotency_cleanup_deleted_total",
		Help: "Expired idempotency keys removed by the cleanup worker.",
	})
	cleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_idempotency_cleanup_last_deleted",
		Help: "Keys removed during the last cleanup run.",
	})
)

// CleanupWorker периодически удаляет просроченные idempotency-ключи.
// Для Redis DeleteExpired ничего не удаляет: ключи истекают по TTL.
type CleanupWorker struct {
	repo      domain.IdempotencyRepository
	logger    *log.Entry
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithInterval задаёт паузу между проходами; неположительное значение игнорируется.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт размер одной порции удаления.
func WithBatchSize(batchSize int) CleanupOption {
	return func(w *CleanupWorker) {
		if batchSize > 0 {
			w.batchSize = batchSize
		}
	}
}

func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:      repo,
		logger:    log.WithField("component", "idempotency-cleanup-worker"),
		interval:  defaultCleanupInterval,
		batchSize: defaultCleanupBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run делает проход сразу и затем каждые interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup is disabled: no repository")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) runOnce(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.now())
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	case err != nil:
		cleanupRuns.WithLabelValues("error").Inc()
		w.logger.WithError(err).WithField("deleted", deleted).Warn("idempotency cleanup failed")
		return
	}

	cleanupRuns.WithLabelValues("ok").Inc()
	cleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
	}
}

// DeleteExpired удаляет ключи с TTL не позже before, порциями, пока порция заполняется целиком.
// Возвращает число удалённых ключей, в том числе при ошибке на середине.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := w.repo.DeleteExpired(ctx, before, w.batchSize)
		if err != nil {
			return total, err
		}
		total += n
		cleanupDeleted.Add(float64(n))

		if n < w.batchSize {
			return total, nil
		}
	}
}
