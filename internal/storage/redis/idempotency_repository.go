// Package redis хранит ключи идемпотентности в Redis. Срок жизни ключа
// задаётся TTL самого Redis, поэтому отдельная очистка не требуется.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	keyPrefix          = "storefront:idempotency:"
	minTTL             = time.Second
	defaultDialTimeout = 5 * time.Second
)

// Open подключается к Redis и проверяет соединение.
func Open(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

type idempotencyRepository struct {
	rdb goredis.UniversalClient
	now func() time.Time
}

// NewIdempotencyRepository создаёт Redis-реализацию IdempotencyRepository.
func NewIdempotencyRepository(rdb goredis.UniversalClient) domain.IdempotencyRepository {
	return &idempotencyRepository{rdb: rdb, now: func() time.Time { return time.Now().UTC() }}
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	now := r.now()
	record, err := domain.NewProcessingRecord(key, requestHash, ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("marshal idempotency record: %w", err)
	}

	created, err := r.rdb.SetNX(ctx, storageKey(record.Key), data, ttlUntil(now, record.TTLAt)).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}
	if created {
		return record, nil
	}

	existing, err := r.Get(ctx, record.Key)
	if err != nil {
		// ключ истёк между SETNX и GET
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	return existing, existing.ConflictWith(record.RequestHash)
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	raw, err := r.rdb.Get(ctx, storageKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("get idempotency record: %w", err)
	}
	return decodeRecord(key, raw)
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *idempotencyRepository) Release(ctx context.Context, key string) error {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return err
	}
	if err := r.rdb.Del(ctx, storageKey(key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key %s: %w", key, err)
	}
	return nil
}

// DeleteExpired ничего не делает: просроченные ключи удаляет сам Redis.
func (r *idempotencyRepository) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

// markStatus обновляет запись под WATCH, сохраняя оставшийся TTL ключа.
func (r *idempotencyRepository) markStatus(ctx context.Context, key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key, err := domain.NormalizeIdempotencyKey(key)
	if err != nil {
		return err
	}
	k := storageKey(key)

	err = r.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, k).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return domain.ErrIdempotencyKeyNotFound
			}
			return fmt.Errorf("get idempotency record: %w", err)
		}

		record, err := decodeRecord(key, raw)
		if err != nil {
			return err
		}
		record.Status = status
		record.ResponseBody = append([]byte(nil), responseBody...)
		record.HTTPStatus = httpStatus
		record.UpdatedAt = r.now()

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal idempotency record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SetArgs(ctx, k, data, goredis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}, k)
	if err != nil {
		if errors.Is(err, goredis.TxFailedErr) {
			return fmt.Errorf("mark idempotency key status: concurrent update: %w", err)
		}
		return err
	}

	return nil
}

func decodeRecord(key string, raw []byte) (domain.IdempotencyRecord, error) {
	var record domain.IdempotencyRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("decode idempotency record %s: %w", key, err)
	}
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", record.Status, key)
	}
	return record, nil
}

func storageKey(key string) string {
	return keyPrefix + key
}

// ttlUntil переводит момент истечения в TTL Redis; не меньше секунды.
func ttlUntil(now, ttlAt time.Time) time.Duration {
	ttl := ttlAt.Sub(now)
	if ttl < minTTL {
		return minTTL
	}
	return ttl
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
