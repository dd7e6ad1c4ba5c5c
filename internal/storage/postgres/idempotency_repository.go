package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const idempotencyColumns = `key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at`

type idempotencyRepository struct {
	q   queryer
	now func() time.Time
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
// Ключи пишутся мимо транзакции оформления: ответ фиксируется уже после commit.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{q: store.DB(), now: func() time.Time { return time.Now().UTC() }}
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	record, err := domain.NewProcessingRecord(key, requestHash, ttlAt, r.now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO idempotency_keys (`+idempotencyColumns+`)
		VALUES ($1, $2, NULL, NULL, $3, $4, $5, $5)
		ON CONFLICT (key) DO NOTHING
	`, record.Key, record.RequestHash, string(record.Status), record.TTLAt, record.CreatedAt)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}
	inserted, err := affectedRows(res)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if inserted > 0 {
		return record, nil
	}

	existing, err := r.Get(ctx, record.Key)
	if err != nil {
		// ключ успели удалить между INSERT и SELECT; клиенту безопаснее повторить запрос
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	return existing, existing.ConflictWith(record.RequestHash)
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	row := r.q.QueryRowContext(ctx, `SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1`, key)
	record, err := scanIdempotencyRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record %s: %w", key, err)
	}
	return record, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *idempotencyRepository) Release(ctx context.Context, key string) error {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key = $1`, key); err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	return nil
}

// DeleteExpired удаляет не больше limit ключей с ttl_at <= before; limit <= 0 снимает ограничение.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args := `DELETE FROM idempotency_keys WHERE ttl_at <= $1`, []any{before}
	if limit > 0 {
		query = `
			DELETE FROM idempotency_keys
			WHERE key IN (
				SELECT key FROM idempotency_keys
				WHERE ttl_at <= $1
				ORDER BY ttl_at
				LIMIT $2
			)`
		args = append(args, limit)
	}

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	deleted, err := affectedRows(res)
	return int(deleted), err
}

func (r *idempotencyRepository) finish(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE idempotency_keys
		SET status = $2, response_body = $3, http_status = $4, updated_at = $5
		WHERE key = $1
	`, key, string(status), responseBody, httpStatus, r.now())
	if err != nil {
		return fmt.Errorf("mark idempotency key %s as %s: %w", key, status, err)
	}
	updated, err := affectedRows(res)
	if err != nil {
		return err
	}
	if updated == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

func scanIdempotencyRecord(row *sql.Row) (domain.IdempotencyRecord, error) {
	var (
		record     domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	err := row.Scan(
		&record.Key, &record.RequestHash, &record.ResponseBody, &httpStatus,
		&status, &record.TTLAt, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("unknown idempotency status %q", status)
	}
	record.HTTPStatus = int(httpStatus.Int64)
	return record, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
