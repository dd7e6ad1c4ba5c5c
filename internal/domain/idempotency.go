package domain

import (
	"errors"
	"strings"
	"time"
)

// DefaultIdempotencyTTL применяется, когда срок жизни ключа не задан.
const DefaultIdempotencyTTL = 24 * time.Hour

var (
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	// Ключ уже зарегистрирован с тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// Ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// Запрос с тем же ключом ещё выполняется.
	ErrIdempotencyInProgress = errors.New("request with the same idempotency key is already processing")
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что запрос завершён успешно и ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что обработка завершилась ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит состояние обработки запроса с idempotency-key.
type IdempotencyRecord struct {
	Key          string            `json:"key"`
	RequestHash  string            `json:"request_hash"`
	ResponseBody []byte            `json:"response_body,omitempty"`
	HTTPStatus   int               `json:"http_status"`
	Status       IdempotencyStatus `json:"status"`
	TTLAt        time.Time         `json:"ttl_at"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IsIdempotencyConflict сообщает, что ключ уже занят тем же или другим запросом.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) ||
		errors.Is(err, ErrIdempotencyHashMismatch) ||
		errors.Is(err, ErrIdempotencyInProgress)
}

// NormalizeIdempotencyKey обрезает пробелы и отклоняет пустой ключ.
func NormalizeIdempotencyKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrIdempotencyKeyRequired
	}
	return key, nil
}

// NewProcessingRecord собирает запись в статусе processing.
// Нулевой ttlAt заменяется на now + DefaultIdempotencyTTL.
func NewProcessingRecord(key, requestHash string, ttlAt, now time.Time) (IdempotencyRecord, error) {
	key, err := NormalizeIdempotencyKey(key)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return IdempotencyRecord{}, ErrIdempotencyRequestHashRequired
	}
	if ttlAt.IsZero() {
		ttlAt = now.Add(DefaultIdempotencyTTL)
	}
	return IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ConflictWith возвращает ошибку повторной регистрации уже существующего ключа.
func (r IdempotencyRecord) ConflictWith(requestHash string) error {
	if r.RequestHash != strings.TrimSpace(requestHash) {
		return ErrIdempotencyHashMismatch
	}
	return ErrIdempotencyKeyAlreadyExists
}
