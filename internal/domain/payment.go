package domain

import (
	"strings"
	"time"
)

// Payment связан с заказом 1:1. Поля шлюза приходят уже разрешёнными
// строками и хранятся как есть.
type Payment struct {
	ID                     string
	Method                 string
	GatewayName            string
	GatewayPaymentID       string
	GatewayStatus          string
	GatewayResponseMessage string
	CreatedAt              time.Time
}

// GatewayResult ответ платёжного шлюза, полученный до оформления заказа.
type GatewayResult struct {
	Name      string
	PaymentID string
	Status    string
	Message   string
}

// NewPayment собирает платёж для заказа. Метод оплаты обязателен,
// ответ шлюза может быть пустым (например, оплата при получении).
func NewPayment(id, method string, gw GatewayResult, at time.Time) (Payment, error) {
	p := Payment{
		ID:                     id,
		Method:                 strings.TrimSpace(method),
		GatewayName:            gw.Name,
		GatewayPaymentID:       gw.PaymentID,
		GatewayStatus:          gw.Status,
		GatewayResponseMessage: gw.Message,
		CreatedAt:              at,
	}
	if err := p.Validate(); err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (p Payment) Validate() error {
	if strings.TrimSpace(p.Method) == "" {
		return ErrPaymentMethodRequired
	}
	return nil
}

// Gateway возвращает ответ шлюза, сохранённый в платеже.
func (p Payment) Gateway() GatewayResult {
	return GatewayResult{
		Name:      p.GatewayName,
		PaymentID: p.GatewayPaymentID,
		Status:    p.GatewayStatus,
		Message:   p.GatewayResponseMessage,
	}
}
