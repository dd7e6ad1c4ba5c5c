// Package outbox переносит события заказов из transactional outbox в брокер.
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = time.Minute
)

// Значения label result в storefront_outbox_publish_attempts_total.
const (
	resultSent       = "sent"
	resultRetry      = "retry_error"
	resultFailed     = "failed"
	resultDLQFailed  = "dlq_failed"
	resultMarkFailed = "mark_failed"
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_publish_attempts_total",
		Help: "Outbox publish attempts by event type and result.",
	}, []string{"event_type", "result"})
	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_pending_records",
		Help: "Pending records in the order outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest pending outbox record in seconds.",
	})
)

// Option настраивает Worker. Неположительные значения игнорируются.
type Option func(*Worker)

func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher включает отправку в DLQ сообщений, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.retryBaseDelay = max(delay, 0) }
}

// Worker публикует pending-сообщения outbox в брокер. Сообщение помечается
// sent только после подтверждения брокера: доставка at-least-once.
type Worker struct {
	repo           domain.OutboxRepository
	publisher      domain.OutboxPublisher
	dlq            domain.OutboxPublisher
	logger         *log.Entry
	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "outbox-worker"),
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		now:            func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run опрашивает outbox сразу и затем каждые pollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox relay is disabled: no repository or publisher")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну порцию pending-сообщений и возвращает число отправленных.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("pull pending outbox messages")
		return 0
	}

	sent := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		if w.relay(ctx, msg) {
			sent++
		}
	}
	return sent
}

// relay доводит одно сообщение до sent или failed. При отмене ctx сообщение
// остаётся pending и будет отправлено следующим запуском.
func (w *Worker) relay(ctx context.Context, msg domain.OutboxMessage) bool {
	logger := w.logger.WithFields(log.Fields{
		"outbox_id":  msg.ID,
		"event_type": msg.EventType,
		"order_id":   msg.AggregateID,
	})

	publishErr := w.publishWithRetry(ctx, msg)
	if publishErr == nil {
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			publishAttempts.WithLabelValues(msg.EventType, resultMarkFailed).Inc()
			logger.WithError(err).Warn("mark outbox message as sent")
			return false
		}
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	publishAttempts.WithLabelValues(msg.EventType, resultFailed).Inc()
	logger.WithError(publishErr).Error("outbox message is not published")

	if err := w.publishDeadLetter(ctx, msg, publishErr); err != nil {
		publishAttempts.WithLabelValues(msg.EventType, resultDLQFailed).Inc()
		logger.WithError(err).Warn("dead letter is not published")
	}
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		publishAttempts.WithLabelValues(msg.EventType, resultMarkFailed).Inc()
		logger.WithError(err).Warn("mark outbox message as failed")
	}
	return false
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = w.publisher.Publish(ctx, msg); err == nil {
			publishAttempts.WithLabelValues(msg.EventType, resultSent).Inc()
			return nil
		}
		publishAttempts.WithLabelValues(msg.EventType, resultRetry).Inc()

		if attempt == w.maxAttempts {
			break
		}
		if delay := w.retryBackoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", domain.ErrOutboxPublish, w.maxAttempts, err)
}

// retryBackoff удваивает паузу с каждой попыткой, не превышая maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 || attempt < 1 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("collect outbox backlog stats")
		return
	}

	pendingRecords.Set(float64(stats.PendingCount))
	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0)
	}
	oldestPendingAge.Set(age)
}
