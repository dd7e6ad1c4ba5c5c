package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возвращается для любой отсутствующей сущности (корзина, адрес, заказ, товар).
	ErrNotFound = errors.New("resource not found")
	// Ошибка нарушенного предусловия операции; проверяется до начала записи.
	ErrInvalidState = errors.New("invalid state")
	// Ошибка фиксации многошаговой записи; транзакция откатывается целиком.
	ErrTransaction = errors.New("transaction failed")

	// ErrCartEmpty возвращается при попытке оформить заказ из пустой корзины.
	ErrCartEmpty = InvalidState("cart is empty")
	// Ошибка, если остаток товара ушёл бы в минус.
	ErrInsufficientStock = InvalidState("insufficient stock")
	// Ошибка неизвестного статуса заказа.
	ErrStatusUnknown = InvalidState("unknown order status")
	// Ошибка запрещённого перехода статуса.
	ErrStatusTransition = InvalidState("order status transition is not allowed")
	// Ошибка некорректных параметров пагинации.
	ErrPageInvalid = InvalidState("invalid page request")
	// Ошибка неподдерживаемого поля сортировки.
	ErrSortFieldUnknown = InvalidState("unknown sort field")

	ErrEmailRequired         = InvalidState("email is required")
	ErrAddressIDRequired     = InvalidState("address id is required")
	ErrPaymentMethodRequired = InvalidState("payment method is required")
	ErrSellerIDRequired      = InvalidState("seller id is required")
	ErrAddressFieldRequired  = InvalidState("address field is required")
	ErrItemQtyInvalid        = InvalidState("item quantity must be greater than zero")

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// NotFoundError описывает отсутствующую сущность: вид, ключ и значение ключа.
type NotFoundError struct {
	Entity string
	Field  string
	Value  any
}

// NewNotFound создаёт ошибку отсутствующей сущности.
func NewNotFound(entity, field string, value any) error {
	return &NotFoundError{Entity: entity, Field: field, Value: value}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found with %s: %v", e.Entity, e.Field, e.Value)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// InvalidState оборачивает ErrInvalidState причиной.
func InvalidState(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, reason)
}

// TransactionError — сбой внутри транзакции или при её фиксации.
type TransactionError struct {
	Op  string
	Err error
}

// NewTransactionError оборачивает err; nil остаётся nil.
func NewTransactionError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransactionError{Op: op, Err: err}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() []error { return []error{ErrTransaction, e.Err} }

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsClientError сообщает, может ли вызывающая сторона исправить ошибку сама.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState)
}
