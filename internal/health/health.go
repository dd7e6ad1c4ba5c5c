// Package health отдаёт liveness/readiness пробы и сводный /healthz.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const defaultCheckTimeout = 2 * time.Second

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) severity() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// Check результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report тело ответа /healthz.
type Report struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

type Checker interface {
	Check(ctx context.Context) Check
}

// Handler собирает проверки зависимостей сервиса: хранилища, Redis, outbox.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	version  string
	started  time.Time
	timeout  time.Duration
	now      func() time.Time
}

func NewHandler(version string) *Handler {
	return &Handler{
		checkers: make(map[string]Checker),
		version:  version,
		started:  time.Now(),
		timeout:  defaultCheckTimeout,
		now:      time.Now,
	}
}

// Register добавляет проверку; повторное имя заменяет прежнюю.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// Evaluate запускает все проверки параллельно под общим таймаутом.
// Итоговый статус равен худшему из статусов проверок.
func (h *Handler) Evaluate(ctx context.Context) Report {
	h.mu.RLock()
	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		checkers[name] = checker
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		report = Report{
			Status:        StatusHealthy,
			Checks:        make(map[string]Check, len(checkers)),
			Version:       h.version,
			UptimeSeconds: int64(time.Since(h.started).Seconds()),
		}
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			check := checker.Check(ctx)

			mu.Lock()
			defer mu.Unlock()
			report.Checks[name] = check
			if check.Status.severity() > report.Status.severity() {
				report.Status = check.Status
			}
		}()
	}
	wg.Wait()

	report.Timestamp = h.now()
	return report
}

// ServeHTTP отдаёт Report; 503 только для unhealthy.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Evaluate(r.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// Ready снимает сервис с балансировки, пока есть unhealthy-проверка.
// Degraded-сервис продолжает принимать заказы.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Evaluate(r.Context()).Status == StatusUnhealthy {
		writeText(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeText(w, http.StatusOK, "ready")
}

// Live отвечает 200, пока процесс обслуживает HTTP.
func Live(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
