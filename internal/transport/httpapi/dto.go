package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// placeOrderRequest — тело POST /api/order/users/payments/:paymentMethod.
type placeOrderRequest struct {
	AddressID         string `json:"addressId"`
	PGName            string `json:"pgName"`
	PGPaymentID       string `json:"pgPaymentId"`
	PGStatus          string `json:"pgStatus"`
	PGResponseMessage string `json:"pgResponseMessage"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type paymentDTO struct {
	PaymentID         string `json:"paymentId"`
	PaymentMethod     string `json:"paymentMethod"`
	PGName            string `json:"pgName"`
	PGPaymentID       string `json:"pgPaymentId"`
	PGStatus          string `json:"pgStatus"`
	PGResponseMessage string `json:"pgResponseMessage"`
}

type orderItemDTO struct {
	OrderItemID       string `json:"orderItemId"`
	ProductID         string `json:"productId"`
	Quantity          int32  `json:"quantity"`
	DiscountMinor     int64  `json:"discountMinor"`
	OrderedPriceMinor int64  `json:"orderedPriceMinor"`
}

type orderDTO struct {
	OrderID          string         `json:"orderId"`
	Email            string         `json:"email"`
	OrderItems       []orderItemDTO `json:"orderItems"`
	OrderDate        time.Time      `json:"orderDate"`
	Payment          *paymentDTO    `json:"payment,omitempty"`
	TotalAmountMinor int64          `json:"totalAmountMinor"`
	OrderStatus      string         `json:"orderStatus"`
	StatusLabel      string         `json:"statusLabel"`
	AddressID        string         `json:"addressId"`
	Version          int64          `json:"version"`
}

type orderPageDTO struct {
	Content       []orderDTO `json:"content"`
	PageNumber    int        `json:"pageNumber"`
	PageSize      int        `json:"pageSize"`
	TotalElements int64      `json:"totalElements"`
	TotalPages    int        `json:"totalPages"`
	LastPage      bool       `json:"lastPage"`
}

type timelineEventDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason"`
	Occurred time.Time `json:"occurred"`
}

type errorDTO struct {
	Message string `json:"message"`
	Status  bool   `json:"status"`
}

func toOrderDTO(o domain.Order) orderDTO {
	items := make([]orderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDTO{
			OrderItemID:       it.ID,
			ProductID:         it.ProductID,
			Quantity:          it.Quantity,
			DiscountMinor:     it.DiscountMinor,
			OrderedPriceMinor: it.OrderedPriceMinor,
		})
	}

	dto := orderDTO{
		OrderID:          o.ID,
		Email:            o.Email,
		OrderItems:       items,
		OrderDate:        o.OrderDate,
		TotalAmountMinor: o.AmountMinor,
		OrderStatus:      string(o.Status),
		StatusLabel:      o.Status.Label(),
		AddressID:        o.AddressID,
		Version:          o.Version,
	}
	if o.Payment != nil {
		dto.Payment = &paymentDTO{
			PaymentID:         o.Payment.ID,
			PaymentMethod:     o.Payment.Method,
			PGName:            o.Payment.GatewayName,
			PGPaymentID:       o.Payment.GatewayPaymentID,
			PGStatus:          o.Payment.GatewayStatus,
			PGResponseMessage: o.Payment.GatewayResponseMessage,
		}
	}
	return dto
}

func toOrderPageDTO(p domain.Page[domain.Order]) orderPageDTO {
	content := make([]orderDTO, 0, len(p.Content))
	for _, o := range p.Content {
		content = append(content, toOrderDTO(o))
	}
	return orderPageDTO{
		Content:       content,
		PageNumber:    p.Number,
		PageSize:      p.Size,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
		LastPage:      p.Last,
	}
}

func toTimelineDTO(events []domain.TimelineEvent) []timelineEventDTO {
	out := make([]timelineEventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, timelineEventDTO{Type: ev.Type, Reason: ev.Reason, Occurred: ev.Occurred})
	}
	return out
}
