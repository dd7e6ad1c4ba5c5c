package domain

import (
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа. Список закрыт.
type OrderStatus string

const (
	// заказ оформлен из корзины
	OrderStatusAccepted OrderStatus = "accepted"
	// передан в доставку
	OrderStatusShipped OrderStatus = "shipped"
	// вручён покупателю
	OrderStatusDelivered OrderStatus = "delivered"
	// отменён продавцом или администратором
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusAccepted:  "Order Accepted !",
	OrderStatusShipped:   "Order Shipped",
	OrderStatusDelivered: "Order Delivered",
	OrderStatusCancelled: "Order Cancelled",
}

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusAccepted: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:  {OrderStatusDelivered, OrderStatusCancelled},
}

// ParseOrderStatus принимает код статуса или его человекочитаемую метку.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	raw = strings.TrimSpace(raw)
	for status, label := range orderStatusLabels {
		if strings.EqualFold(raw, string(status)) || strings.EqualFold(raw, label) {
			return status, nil
		}
	}
	return "", ErrStatusUnknown
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatusLabels[s]
	return ok
}

// Label возвращает метку статуса для клиентов API.
func (s OrderStatus) Label() string {
	return orderStatusLabels[s]
}

// CanTransitionTo сообщает, разрешён ли переход s → next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal сообщает, что из статуса нет переходов.
func (s OrderStatus) Terminal() bool {
	return len(orderStatusTransitions[s]) == 0
}

// OrderItem — снимок позиции корзины в момент оформления.
// OrderedPriceMinor никогда не пересчитывается из текущей цены товара.
type OrderItem struct {
	ID                string
	OrderID           string
	ProductID         string
	Quantity          int32
	DiscountMinor     int64
	OrderedPriceMinor int64
	CreatedAt         time.Time
}

// Order — оформленный заказ вместе с платежом и позициями.
type Order struct {
	ID          string
	Email       string
	OrderDate   time.Time
	AmountMinor int64
	Status      OrderStatus
	AddressID   string
	PaymentID   string
	Payment     *Payment
	Items       []OrderItem
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasSellerItem проверяет, есть ли в заказе товар продавца sellerID.
// owner сопоставляет ID товара с ID продавца.
func (o *Order) HasSellerItem(sellerID string, owner func(productID string) string) bool {
	for _, item := range o.Items {
		if owner(item.ProductID) == sellerID {
			return true
		}
	}
	return false
}

// Clone возвращает копию заказа с независимыми позициями и платежом.
func (o Order) Clone() Order {
	o.Items = append([]OrderItem(nil), o.Items...)
	if o.Payment != nil {
		p := *o.Payment
		o.Payment = &p
	}
	return o
}
