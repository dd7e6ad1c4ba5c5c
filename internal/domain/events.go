package domain

import "time"

// OrderPlacedPayload — тело outbox-события order.placed.
type OrderPlacedPayload struct {
	OrderID     string            `json:"order_id"`
	Email       string            `json:"email"`
	AmountMinor int64             `json:"amount_minor"`
	Status      OrderStatus       `json:"status"`
	PaymentID   string            `json:"payment_id"`
	AddressID   string            `json:"address_id"`
	Items       []OrderPlacedItem `json:"items"`
	PlacedAt    time.Time         `json:"placed_at"`
}

// OrderPlacedItem описывает позицию в событии order.placed.
type OrderPlacedItem struct {
	ProductID         string `json:"product_id"`
	Quantity          int32  `json:"quantity"`
	OrderedPriceMinor int64  `json:"ordered_price_minor"`
	DiscountMinor     int64  `json:"discount_minor"`
}

// OrderStatusChangedPayload — тело outbox-события order.status_changed.
type OrderStatusChangedPayload struct {
	OrderID   string      `json:"order_id"`
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	Version   int64       `json:"version"`
	ChangedAt time.Time   `json:"changed_at"`
}
