package health

import (
	"context"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// PingFunc проверяет доступность зависимости; ошибка означает unhealthy.
type PingFunc func(ctx context.Context) error

type pingChecker struct {
	name string
	ping PingFunc
}

// NewPingChecker оборачивает ping хранилища или кеша в Checker.
func NewPingChecker(name string, ping PingFunc) Checker {
	return pingChecker{name: name, ping: ping}
}

func (c pingChecker) Check(ctx context.Context) Check {
	start := time.Now()
	check := Check{Name: c.name, Status: StatusHealthy}
	if err := c.ping(ctx); err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	}
	check.DurationMs = time.Since(start).Milliseconds()
	return check
}

// OutboxChecker переводит сервис в degraded, когда relay не успевает
// разбирать outbox или не запущен вовсе. Ошибка чтения статистики делает его unhealthy.
type OutboxChecker struct {
	repo       domain.OutboxRepository
	maxPending int
	maxAge     time.Duration
	now        func() time.Time
}

// NewOutboxChecker создаёт проверку backlog; нулевые пороги отключают соответствующее условие.
func NewOutboxChecker(repo domain.OutboxRepository, maxPending int, maxAge time.Duration) *OutboxChecker {
	return &OutboxChecker{repo: repo, maxPending: maxPending, maxAge: maxAge, now: time.Now}
}

func (c *OutboxChecker) Check(ctx context.Context) (check Check) {
	start := time.Now()
	check = Check{Name: "outbox", Status: StatusHealthy}
	defer func() { check.DurationMs = time.Since(start).Milliseconds() }()

	stats, err := c.repo.Stats(ctx)
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = err.Error()
		return check
	}

	if c.maxPending > 0 && stats.PendingCount > c.maxPending {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d pending messages, limit %d", stats.PendingCount, c.maxPending)
		return check
	}
	if c.maxAge <= 0 || stats.OldestPendingAt.IsZero() {
		return check
	}
	if age := c.now().Sub(stats.OldestPendingAt); age > c.maxAge {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("oldest pending message is %s old", age.Round(time.Second))
	}
	return check
}
