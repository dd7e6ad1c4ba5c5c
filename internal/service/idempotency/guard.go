package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultTTL — сколько хранится ответ по ключу.
const DefaultTTL = 24 * time.Hour

// Response — сохранённый ответ на запрос.
type Response struct {
	Status int
	Body   []byte
}

// Guard выполняет запрос не больше одного раза на ключ и воспроизводит
// сохранённый ответ при повторе.
type Guard struct {
	repo   domain.IdempotencyRepository
	logger *log.Entry
	ttl    time.Duration
	now    func() time.Time
}

// NewGuard создаёт Guard. ttl <= 0 заменяется на DefaultTTL.
func NewGuard(repo domain.IdempotencyRepository, logger *log.Entry, ttl time.Duration) *Guard {
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		repo:   repo,
		logger: logger,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RequestHash строит отпечаток запроса по методу, маршруту, субъекту и телу.
func RequestHash(method, route, subject string, body []byte) string {
	h := sha256.New()
	for _, part := range []string{method, route, subject} {
		h.Write([]byte(part))
		h.Write([]byte{':'})
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Execute вызывает fn, если ключ видится впервые, и сохраняет её ответ.
// Для известного ключа возвращает сохранённый ответ и replayed=true.
// Ответы 4xx сохраняются как failed и тоже воспроизводятся. После 5xx ключ
// освобождается: повтор с тем же ключом выполнит запрос заново.
func (g *Guard) Execute(ctx context.Context, key, requestHash string, fn func(ctx context.Context) Response) (resp Response, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Response{}, false, domain.ErrIdempotencyKeyRequired
	}

	record, err := g.repo.CreateProcessing(ctx, key, requestHash, g.now().Add(g.ttl))
	if err != nil {
		return g.replay(key, record, err)
	}

	resp = fn(ctx)

	// Ответ сохраняется даже если клиент уже отключился.
	storeCtx := context.WithoutCancel(ctx)
	switch {
	case resp.Status >= http.StatusInternalServerError:
		err = g.repo.Release(storeCtx, key)
	case resp.Status >= http.StatusBadRequest:
		err = g.repo.MarkFailed(storeCtx, key, resp.Body, resp.Status)
	default:
		err = g.repo.MarkDone(storeCtx, key, resp.Body, resp.Status)
	}
	if err != nil {
		g.logger.WithError(err).WithFields(log.Fields{
			"idempotency_key": key,
			"status":          resp.Status,
		}).Warn("failed to store idempotent response")
	}

	return resp, false, nil
}

func (g *Guard) replay(key string, record domain.IdempotencyRecord, createErr error) (Response, bool, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, false, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			status := record.HTTPStatus
			if status == 0 {
				status = http.StatusOK
			}
			g.logger.WithFields(log.Fields{
				"idempotency_key": key,
				"status":          status,
			}).Debug("replaying stored response")
			return Response{Status: status, Body: record.ResponseBody}, true, nil
		case domain.IdempotencyStatusProcessing:
			return Response{}, false, domain.ErrIdempotencyInProgress
		default:
			return Response{}, false, fmt.Errorf("unknown idempotency record status %q", record.Status)
		}
	default:
		return Response{}, false, fmt.Errorf("create idempotency record: %w", createErr)
	}
}
