package domain

import (
	"fmt"
	"time"
)

// Типы событий истории заказа.
const (
	TimelineOrderPlaced        = "OrderPlaced"
	TimelineOrderStatusChanged = "OrderStatusChanged"
)

// TimelineEvent запись в истории заказа. История только дополняется.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

// OrderPlacedEvent фиксирует оформление заказа из корзины.
func OrderPlacedEvent(orderID, cartID string, at time.Time) TimelineEvent {
	return TimelineEvent{
		OrderID:  orderID,
		Type:     TimelineOrderPlaced,
		Reason:   "placed from cart " + cartID,
		Occurred: at,
	}
}

// StatusChangedEvent фиксирует переход from -> to.
func StatusChangedEvent(orderID string, from, to OrderStatus, at time.Time) TimelineEvent {
	return TimelineEvent{
		OrderID:  orderID,
		Type:     TimelineOrderStatusChanged,
		Reason:   fmt.Sprintf("%s -> %s", from, to),
		Occurred: at,
	}
}
