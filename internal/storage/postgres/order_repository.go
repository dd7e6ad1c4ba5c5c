package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderSortColumns — белый список колонок для ORDER BY.
var orderSortColumns = map[domain.OrderSortField]string{
	domain.SortByOrderID:     "o.id",
	domain.SortByEmail:       "o.email",
	domain.SortByOrderDate:   "o.order_date",
	domain.SortByTotalAmount: "o.total_amount_minor",
	domain.SortByOrderStatus: "o.status",
}

const (
	orderColumns = `
		o.id, o.email, o.order_date, o.total_amount_minor, o.status, o.address_id,
		o.version, o.created_at, o.updated_at,
		p.id, p.method, p.pg_name, p.pg_payment_id, p.pg_status, p.pg_response_message, p.created_at`
	orderFrom = `
		FROM orders o
		JOIN payments p ON p.id = o.payment_id`
	sellerFilter = `
		WHERE EXISTS (
			SELECT 1
			FROM order_items oi
			JOIN products pr ON pr.id = oi.product_id
			WHERE oi.order_id = o.id
			  AND pr.seller_id = $1
		)`
)

type paymentRepository struct {
	q queryer
}

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (
			id, method, pg_name, pg_payment_id, pg_status, pg_response_message, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		payment.ID, payment.Method, payment.GatewayName, payment.GatewayPaymentID,
		payment.GatewayStatus, payment.GatewayResponseMessage, payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var p domain.Payment
	err := r.q.QueryRowContext(ctx, `
		SELECT id, method, pg_name, pg_payment_id, pg_status, pg_response_message, created_at
		FROM payments
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Method, &p.GatewayName, &p.GatewayPaymentID, &p.GatewayStatus, &p.GatewayResponseMessage, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.NewNotFound("Payment", "paymentId", id)
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}

	return p, nil
}

type orderRepository struct {
	q queryer
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (
			id, email, order_date, total_amount_minor, status, address_id, payment_id,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		order.ID, order.Email, order.OrderDate, order.AmountMinor, string(order.Status),
		order.AddressID, order.PaymentID, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

// CreateItems вставляет все позиции одним INSERT.
func (r *orderRepository) CreateItems(ctx context.Context, orderID string, items []domain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	const cols = 7
	var sb strings.Builder
	sb.WriteString(`INSERT INTO order_items (
			id, order_id, product_id, quantity, discount_minor, ordered_price_minor, created_at
		) VALUES `)
	args := make([]any, 0, len(items)*cols)
	for i, item := range items {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * cols
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args, item.ID, orderID, item.ProductID, item.Quantity, item.DiscountMinor, item.OrderedPriceMinor, item.CreatedAt)
	}

	if _, err := r.q.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, `SELECT `+orderColumns+orderFrom+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.NewNotFound("Order", "orderId", id)
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items

	return order, nil
}

// UpdateStatus меняет только статус, проверяя версию (optimistic locking).
func (r *orderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, version int64, updatedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3
		  AND version = $4
	`, string(status), updatedAt, id, version)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return domain.NewNotFound("Order", "orderId", id)
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r *orderRepository) List(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Order], error) {
	return r.page(ctx, req, "")
}

// ListBySeller фильтрует заказы по продавцу в SQL, поэтому пагинация и
// итоговые счётчики учитывают только подходящие заказы.
func (r *orderRepository) ListBySeller(ctx context.Context, req domain.PageRequest, sellerID string) (domain.Page[domain.Order], error) {
	return r.page(ctx, req, sellerID)
}

func (r *orderRepository) page(ctx context.Context, req domain.PageRequest, sellerID string) (domain.Page[domain.Order], error) {
	if err := req.Validate(); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	column, ok := orderSortColumns[req.SortField]
	if !ok {
		return domain.Page[domain.Order]{}, domain.ErrSortFieldUnknown
	}
	direction := "DESC"
	if req.Direction == domain.SortAsc {
		direction = "ASC"
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		where string
		args  []any
	)
	if sellerID != "" {
		where = sellerFilter
		args = append(args, sellerID)
	}

	var total int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders o`+where, args...).Scan(&total); err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("count orders: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s%s%s
		ORDER BY %s %s, o.id %s
		LIMIT $%d OFFSET $%d`,
		orderColumns, orderFrom, where, column, direction, direction, n+1, n+2)
	args = append(args, req.Size, req.Offset())

	orders, err := queryAll(ctx, r.q, "orders page", scanOrder, query, args...)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	for i := range orders {
		items, err := r.loadItems(ctx, orders[i].ID)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		orders[i].Items = items
	}

	return domain.NewPage(orders, req, total), nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order   domain.Order
		payment domain.Payment
		status  string
	)
	if err := row.Scan(
		&order.ID, &order.Email, &order.OrderDate, &order.AmountMinor, &status, &order.AddressID,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
		&payment.ID, &payment.Method, &payment.GatewayName, &payment.GatewayPaymentID,
		&payment.GatewayStatus, &payment.GatewayResponseMessage, &payment.CreatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentID = payment.ID
	order.Payment = &payment
	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	return queryAll(ctx, r.q, "order "+orderID+" items", scanOrderItem, `
		SELECT id, order_id, product_id, quantity, discount_minor, ordered_price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
}

func scanOrderItem(row rowScanner) (domain.OrderItem, error) {
	var item domain.OrderItem
	err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity,
		&item.DiscountMinor, &item.OrderedPriceMinor, &item.CreatedAt)
	return item, err
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

var (
	_ domain.PaymentRepository = (*paymentRepository)(nil)
	_ domain.OrderRepository   = (*orderRepository)(nil)
)
