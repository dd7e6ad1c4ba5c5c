package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type paymentRepository struct {
	acc accessor
}

func (r *paymentRepository) Create(_ context.Context, payment domain.Payment) error {
	return r.acc.write(func(st *state) error {
		if _, exists := st.payments[payment.ID]; exists {
			return fmt.Errorf("payment %s already exists", payment.ID)
		}
		st.payments[payment.ID] = payment
		return nil
	})
}

func (r *paymentRepository) Get(_ context.Context, id string) (domain.Payment, error) {
	var payment domain.Payment
	err := r.acc.read(func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return domain.NewNotFound("Payment", "paymentId", id)
		}
		payment = p
		return nil
	})
	return payment, err
}

// orderRepository — in-memory реестр заказов; позиции хранятся внутри заказа.
type orderRepository struct {
	acc accessor
}

// Create сохраняет заказ; ссылка на платёж обязана разрешаться.
func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	return r.acc.write(func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return domain.ErrOrderVersionConflict
		}
		if _, ok := st.payments[order.PaymentID]; !ok {
			return fmt.Errorf("%w: order %s references missing payment %q", errForeignKey, order.ID, order.PaymentID)
		}
		if _, ok := st.addresses[order.AddressID]; !ok {
			return fmt.Errorf("%w: order %s references missing address %q", errForeignKey, order.ID, order.AddressID)
		}
		order = order.Clone()
		order.Items = nil
		order.Payment = nil
		st.orders[order.ID] = order
		return nil
	})
}

func (r *orderRepository) CreateItems(_ context.Context, orderID string, items []domain.OrderItem) error {
	return r.acc.write(func(st *state) error {
		order, ok := st.orders[orderID]
		if !ok {
			return fmt.Errorf("%w: items reference missing order %q", errForeignKey, orderID)
		}
		order = order.Clone()
		for _, item := range items {
			if _, ok := st.products[item.ProductID]; !ok {
				return fmt.Errorf("%w: order item references missing product %q", errForeignKey, item.ProductID)
			}
			item.OrderID = orderID
			order.Items = append(order.Items, item)
		}
		st.orders[orderID] = order
		return nil
	})
}

// Get возвращает заказ или NotFoundError, если его нет.
func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := r.acc.read(func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return domain.NewNotFound("Order", "orderId", id)
		}
		order = st.view(o)
		return nil
	})
	return order, err
}

// UpdateStatus меняет статус, проверяя версию (optimistic locking).
func (r *orderRepository) UpdateStatus(_ context.Context, id string, status domain.OrderStatus, version int64, updatedAt time.Time) error {
	return r.acc.write(func(st *state) error {
		order, ok := st.orders[id]
		if !ok {
			return domain.NewNotFound("Order", "orderId", id)
		}
		if order.Version != version {
			return domain.ErrOrderVersionConflict
		}
		order = order.Clone()
		order.Status = status
		order.UpdatedAt = updatedAt
		order.Version++
		st.orders[id] = order
		return nil
	})
}

func (r *orderRepository) List(_ context.Context, req domain.PageRequest) (domain.Page[domain.Order], error) {
	return r.page(req, nil)
}

// ListBySeller фильтрует заказы по владельцу товаров до пагинации.
func (r *orderRepository) ListBySeller(_ context.Context, req domain.PageRequest, sellerID string) (domain.Page[domain.Order], error) {
	return r.page(req, func(st *state, o domain.Order) bool {
		return o.HasSellerItem(sellerID, func(productID string) string {
			return st.products[productID].SellerID
		})
	})
}

func (r *orderRepository) page(req domain.PageRequest, keep func(st *state, o domain.Order) bool) (domain.Page[domain.Order], error) {
	if err := req.Validate(); err != nil {
		return domain.Page[domain.Order]{}, err
	}

	var page domain.Page[domain.Order]
	err := r.acc.read(func(st *state) error {
		matched := make([]domain.Order, 0, len(st.orders))
		for _, o := range st.orders {
			if keep != nil && !keep(st, o) {
				continue
			}
			matched = append(matched, o)
		}
		sortOrders(matched, req.SortField, req.Direction)

		total := int64(len(matched))
		from := min(req.Offset(), len(matched))
		to := min(from+req.Size, len(matched))

		content := make([]domain.Order, 0, to-from)
		for _, o := range matched[from:to] {
			content = append(content, st.view(o))
		}
		page = domain.NewPage(content, req, total)
		return nil
	})
	return page, err
}

// view собирает представление заказа с платежом и независимыми копиями позиций.
func (st *state) view(o domain.Order) domain.Order {
	o = o.Clone()
	if p, ok := st.payments[o.PaymentID]; ok {
		o.Payment = &p
	}
	return o
}

func sortOrders(orders []domain.Order, field domain.OrderSortField, dir domain.SortDirection) {
	compare := func(a, b domain.Order) int {
		switch field {
		case domain.SortByEmail:
			return strings.Compare(a.Email, b.Email)
		case domain.SortByOrderDate:
			return a.OrderDate.Compare(b.OrderDate)
		case domain.SortByTotalAmount:
			return compareInt64(a.AmountMinor, b.AmountMinor)
		case domain.SortByOrderStatus:
			return strings.Compare(string(a.Status), string(b.Status))
		default:
			return 0
		}
	}

	sort.SliceStable(orders, func(i, j int) bool {
		c := compare(orders[i], orders[j])
		if c == 0 {
			c = strings.Compare(orders[i].ID, orders[j].ID)
		}
		if dir == domain.SortAsc {
			return c < 0
		}
		return c > 0
	})
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

var (
	_ domain.PaymentRepository = (*paymentRepository)(nil)
	_ domain.OrderRepository   = (*orderRepository)(nil)
)
