package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// idempotencyRepository держит ключи в памяти процесса и не зависит от Store:
// ключи живут дольше транзакции оформления заказа.
type idempotencyRepository struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
	now     func() time.Time
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &idempotencyRepository{
		records: make(map[string]domain.IdempotencyRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *idempotencyRepository) CreateProcessing(_ context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	record, err := domain.NewProcessingRecord(key, requestHash, ttlAt, r.now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[record.Key]; ok {
		return copyRecord(existing), existing.ConflictWith(record.RequestHash)
	}
	r.records[record.Key] = record
	return copyRecord(record), nil
}

func (r *idempotencyRepository) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

func (r *idempotencyRepository) MarkDone(_ context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(_ context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *idempotencyRepository) Release(_ context.Context, key string) error {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.records, key)
	r.mu.Unlock()
	return nil
}

// DeleteExpired удаляет ключи с TTL не позже before, самые старые первыми.
func (r *idempotencyRepository) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []domain.IdempotencyRecord
	for _, record := range r.records {
		if !record.TTLAt.After(before) {
			expired = append(expired, record)
		}
	}
	slices.SortFunc(expired, func(a, b domain.IdempotencyRecord) int { return a.TTLAt.Compare(b.TTLAt) })
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	for _, record := range expired {
		delete(r.records, record.Key)
	}
	return len(expired), nil
}

func (r *idempotencyRepository) finish(key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.ResponseBody = slices.Clone(responseBody)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = r.now()
	r.records[key] = record
	return nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	src.ResponseBody = slices.Clone(src.ResponseBody)
	return src
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
