package domain

import (
	"context"
	"time"
)

// CartRepository — доступ к корзинам. Корзинами управляет внешний слой,
// ядро только читает корзину и удаляет из неё оформленные позиции.
type CartRepository interface {
	// FindByEmail возвращает корзину пользователя с пересчитанной суммой
	// или NotFoundError(Cart, email). Внутри транзакции строка корзины блокируется.
	FindByEmail(ctx context.Context, email string) (Cart, error)
	// RemoveItem удаляет из корзины позицию с товаром productID.
	RemoveItem(ctx context.Context, cartID, productID string) error
}

// AddressRepository — чтение адресов доставки.
type AddressRepository interface {
	Get(ctx context.Context, id string) (Address, error)
}

// ProductRepository — чтение и обновление остатков товаров.
type ProductRepository interface {
	// Get возвращает товар; внутри транзакции строка блокируется до коммита.
	Get(ctx context.Context, id string) (Product, error)
	// UpdateQuantity сохраняет новый остаток товара.
	UpdateQuantity(ctx context.Context, id string, quantity int32) error
}

// PaymentRepository — реестр платежей.
type PaymentRepository interface {
	Create(ctx context.Context, payment Payment) error
	Get(ctx context.Context, id string) (Payment, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет заказ без позиций; PaymentID должен ссылаться на существующий платёж.
	Create(ctx context.Context, order Order) error
	// CreateItems сохраняет позиции заказа одной пачкой.
	CreateItems(ctx context.Context, orderID string, items []OrderItem) error
	// Get возвращает заказ с позициями и платежом или NotFoundError(Order).
	Get(ctx context.Context, id string) (Order, error)
	// UpdateStatus меняет только статус с учётом optimistic locking.
	UpdateStatus(ctx context.Context, id string, status OrderStatus, version int64, updatedAt time.Time) error
	// List возвращает страницу всех заказов.
	List(ctx context.Context, req PageRequest) (Page[Order], error)
	// ListBySeller возвращает страницу заказов, где есть хотя бы один товар продавца.
	ListBySeller(ctx context.Context, req PageRequest, sellerID string) (Page[Order], error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// Tx — набор репозиториев, работающих в одной транзакции.
type Tx interface {
	Carts() CartRepository
	Addresses() AddressRepository
	Products() ProductRepository
	Payments() PaymentRepository
	Orders() OrderRepository
	Outbox() OutboxRepository
	Timeline() TimelineRepository
}

// UnitOfWork — граница атомарной записи. Если fn вернула ошибку или ctx отменён,
// все записи внутри fn откатываются; иначе фиксируются разом.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store — хранилище целиком: транзакционная граница плюс чтение вне транзакции.
type Store interface {
	UnitOfWork
	Orders() OrderRepository
	Outbox() OutboxRepository
	Timeline() TimelineRepository
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// Release удаляет ключ, чтобы повтор запроса выполнился заново.
	// Отсутствующий ключ не ошибка.
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// Типы событий outbox.
const (
	OutboxAggregateOrder     = "order"
	OutboxEventOrderPlaced   = "order.placed"
	OutboxEventStatusChanged = "order.status_changed"
)

// OutboxStatus состояние сообщения outbox: pending до подтверждения брокера,
// затем sent или failed.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "pending"
	OutboxStatusSent    OutboxStatus = "sent"
	OutboxStatusFailed  OutboxStatus = "failed"
)

// DefaultOutboxBatch ограничивает PullPending, когда limit не задан.
const DefaultOutboxBatch = 100

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
