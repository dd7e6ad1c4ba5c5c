package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

var errForeignKey = errors.New("foreign key violation")

// state — всё содержимое хранилища. Транзакция работает с копией state,
// коммит подменяет текущее состояние копией целиком.
type state struct {
	carts     map[string]domain.Cart // ключ — email владельца
	addresses map[string]domain.Address
	products  map[string]domain.Product
	payments  map[string]domain.Payment
	orders    map[string]domain.Order
	outbox    map[string]outboxRecord
	timeline  map[string][]domain.TimelineEvent
}

func newState() *state {
	return &state{
		carts:     make(map[string]domain.Cart),
		addresses: make(map[string]domain.Address),
		products:  make(map[string]domain.Product),
		payments:  make(map[string]domain.Payment),
		orders:    make(map[string]domain.Order),
		outbox:    make(map[string]outboxRecord),
		timeline:  make(map[string][]domain.TimelineEvent),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.carts {
		c.carts[k] = v.Clone()
	}
	for k, v := range s.addresses {
		c.addresses[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v.Clone()
	}
	for k, v := range s.outbox {
		v.msg.Payload = append([]byte(nil), v.msg.Payload...)
		c.outbox[k] = v
	}
	for k, v := range s.timeline {
		c.timeline[k] = append([]domain.TimelineEvent(nil), v...)
	}
	return c
}

// accessor даёт репозиториям доступ к state: под блокировкой стора
// или напрямую внутри транзакции, которая уже держит блокировку.
type accessor interface {
	read(fn func(st *state) error) error
	write(fn func(st *state) error) error
}

// Store — in-memory хранилище для локальной разработки и тестов.
// Транзакции сериализуются одной блокировкой записи.
type Store struct {
	mu sync.RWMutex
	st *state
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) read(fn func(st *state) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// WithinTx выполняет fn над копией состояния и фиксирует её, только если fn
// завершилась без ошибки и ctx не отменён.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, newTx(txAccessor{st: work})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.NewTransactionError("commit aborted", err)
	}

	s.st = work
	return nil
}

// Orders возвращает репозиторий заказов вне транзакции.
func (s *Store) Orders() domain.OrderRepository { return &orderRepository{acc: s} }

// Outbox возвращает outbox-репозиторий вне транзакции.
func (s *Store) Outbox() domain.OutboxRepository { return &outboxRepository{acc: s} }

// Timeline возвращает репозиторий истории заказов вне транзакции.
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepository{acc: s} }

// PutCart добавляет или заменяет корзину (её ведёт внешний слой корзин).
func (s *Store) PutCart(cart domain.Cart) error {
	if errs := cart.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}
	cart = cart.Clone()
	cart.Recalculate()
	return s.write(func(st *state) error {
		st.carts[cart.Email] = cart
		return nil
	})
}

// PutAddress добавляет или заменяет адрес.
func (s *Store) PutAddress(addr domain.Address) error {
	if errs := addr.Validate(); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return s.write(func(st *state) error {
		st.addresses[addr.ID] = addr
		return nil
	})
}

// PutProduct добавляет или заменяет товар каталога.
func (s *Store) PutProduct(product domain.Product) error {
	if product.ID == "" {
		return fmt.Errorf("product id is required")
	}
	return s.write(func(st *state) error {
		st.products[product.ID] = product
		return nil
	})
}

// Product возвращает товар каталога (используется в тестах и отладке).
func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.products[id]
	return p, ok
}

// Cart возвращает копию корзины по email.
func (s *Store) Cart(email string) (domain.Cart, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.carts[email]
	return c.Clone(), ok
}

// OrderCount возвращает количество сохранённых заказов.
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.orders)
}

// PaymentCount возвращает количество сохранённых платежей.
func (s *Store) PaymentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.payments)
}

type txAccessor struct {
	st *state
}

func (a txAccessor) read(fn func(st *state) error) error { return fn(a.st) }
func (a txAccessor) write(fn func(st *state) error) error { return fn(a.st) }

type tx struct {
	carts     *cartRepository
	addresses *addressRepository
	products  *productRepository
	payments  *paymentRepository
	orders    *orderRepository
	outbox    *outboxRepository
	timeline  *timelineRepository
}

func newTx(acc accessor) *tx {
	return &tx{
		carts:     &cartRepository{acc: acc},
		addresses: &addressRepository{acc: acc},
		products:  &productRepository{acc: acc},
		payments:  &paymentRepository{acc: acc},
		orders:    &orderRepository{acc: acc},
		outbox:    &outboxRepository{acc: acc},
		timeline:  &timelineRepository{acc: acc},
	}
}

func (t *tx) Carts() domain.CartRepository { return t.carts }
func (t *tx) Addresses() domain.AddressRepository { return t.addresses }
func (t *tx) Products() domain.ProductRepository { return t.products }
func (t *tx) Payments() domain.PaymentRepository { return t.payments }
func (t *tx) Orders() domain.OrderRepository { return t.orders }
func (t *tx) Outbox() domain.OutboxRepository { return t.outbox }
func (t *tx) Timeline() domain.TimelineRepository { return t.timeline }

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*tx)(nil)
)
