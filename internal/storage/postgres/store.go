package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	pingTimeout = 5 * time.Second
	opTimeout   = 5 * time.Second
)

// queryer покрывает *sql.DB и *sql.Tx, так что репозитории одинаково
// работают и на пуле, и внутри транзакции.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Pool параметры пула database/sql.
type Pool struct {
	MaxConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func DefaultPool() Pool {
	return Pool{MaxConns: 25, ConnMaxLifetime: 30 * time.Minute, ConnMaxIdleTime: 5 * time.Minute}
}

func (p Pool) apply(db *sql.DB) {
	def := DefaultPool()
	maxConns := cmp.Or(max(p.MaxConns, 0), def.MaxConns)
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(cmp.Or(p.ConnMaxLifetime, def.ConnMaxLifetime))
	db.SetConnMaxIdleTime(cmp.Or(p.ConnMaxIdleTime, def.ConnMaxIdleTime))
}

// Store хранилище заказов поверх pgx/stdlib.
type Store struct {
	db *sql.DB
}

// Open подключается к PostgreSQL и дожидается ответа на ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	return OpenWithPool(ctx, dsn, DefaultPool())
}

func OpenWithPool(ctx context.Context, dsn string, pool Pool) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	pool.apply(db)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// New оборачивает готовый *sql.DB; в тестах это sqlmock.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// WithinTx выполняет fn в транзакции READ COMMITTED. Ошибка fn или отмена
// ctx до commit откатывают всё, что fn успела записать.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return errStoreClosed
	}

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return domain.NewTransactionError("begin tx", err)
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, newTx(sqlTx)); err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return domain.NewTransactionError("commit aborted", err)
	}
	if err = sqlTx.Commit(); err != nil {
		op := "commit tx"
		if isSerializationFailure(err) {
			op = "commit tx: concurrent update"
		}
		return domain.NewTransactionError(op, err)
	}
	return nil
}

// Репозитории вне транзакции, для чтения и outbox relay.
func (s *Store) Orders() domain.OrderRepository { return &orderRepository{q: s.db} }
func (s *Store) Outbox() domain.OutboxRepository { return &outboxRepository{q: s.db} }
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepository{q: s.db} }

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreClosed
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// EnsureSchema доводит схему до последней встроенной миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type tx struct {
	q queryer
}

func newTx(q queryer) *tx { return &tx{q: q} }

func (t *tx) Carts() domain.CartRepository { return &cartRepository{q: t.q} }
func (t *tx) Addresses() domain.AddressRepository { return &addressRepository{q: t.q} }
func (t *tx) Products() domain.ProductRepository { return &productRepository{q: t.q} }
func (t *tx) Payments() domain.PaymentRepository { return &paymentRepository{q: t.q} }
func (t *tx) Orders() domain.OrderRepository { return &orderRepository{q: t.q} }
func (t *tx) Outbox() domain.OutboxRepository { return &outboxRepository{q: t.q} }
func (t *tx) Timeline() domain.TimelineRepository { return &timelineRepository{q: t.q} }

// SQLSTATE коды, на которые реагируют репозитории.
const (
	sqlstateUniqueViolation      = "23505"
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

var errStoreClosed = errors.New("postgres store is not initialized")

func isUniqueViolation(err error) bool {
	return pgErrorCode(err) == sqlstateUniqueViolation
}

func isSerializationFailure(err error) bool {
	switch pgErrorCode(err) {
	case sqlstateSerializationFailure, sqlstateDeadlockDetected:
		return true
	}
	return false
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

var (
	_ domain.Store = (*Store)(nil)
	_ domain.Tx    = (*tx)(nil)
)
