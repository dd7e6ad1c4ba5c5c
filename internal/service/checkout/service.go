// Package checkout оформляет заказ из корзины пользователя одной транзакцией.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const tracerName = "storefront/checkout"

// Request — входные данные оформления заказа. Поля шлюза уже разрешены
// платёжным слоем и сохраняются как есть.
type Request struct {
	Email                  string
	AddressID              string
	PaymentMethod          string
	GatewayName            string
	GatewayPaymentID       string
	GatewayStatus          string
	GatewayResponseMessage string
}

// Validate проверяет обязательные поля запроса.
func (r Request) Validate() error {
	switch {
	case strings.TrimSpace(r.Email) == "":
		return domain.ErrEmailRequired
	case strings.TrimSpace(r.AddressID) == "":
		return domain.ErrAddressIDRequired
	case strings.TrimSpace(r.PaymentMethod) == "":
		return domain.ErrPaymentMethodRequired
	}
	return nil
}

func (r Request) gateway() domain.GatewayResult {
	return domain.GatewayResult{
		Name:      r.GatewayName,
		PaymentID: r.GatewayPaymentID,
		Status:    r.GatewayStatus,
		Message:   r.GatewayResponseMessage,
	}
}

// Service реализует PlaceOrder.
type Service struct {
	uow     domain.UnitOfWork
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	tracer  trace.Tracer
	now     func() time.Time
	newID   func() string
}

// NewService создаёт сервис оформления. metrics может быть nil.
func NewService(uow domain.UnitOfWork, logger *log.Entry, m *metrics.OrderMetrics) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Service{
		uow:     uow,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// PlaceOrder превращает корзину пользователя в заказ: создаёт платёж, заказ и
// позиции, списывает остатки и очищает корзину. Все записи фиксируются вместе
// или не фиксируется ни одна.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.PlaceOrder", trace.WithAttributes(
		attribute.String("order.address_id", req.AddressID),
		attribute.String("payment.method", req.PaymentMethod),
	))
	defer span.End()

	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordPlacementStarted()
		defer func() { s.metrics.RecordPlacementFinished(time.Since(start)) }()
	}

	logger := s.logger.WithFields(log.Fields{
		"email":      req.Email,
		"address_id": req.AddressID,
	})

	if err := req.Validate(); err != nil {
		s.fail(span, logger, err)
		return domain.Order{}, err
	}

	var placed domain.Order
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := s.placeOrder(ctx, tx, req)
		if err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		err = classify(err)
		s.fail(span, logger, err)
		return domain.Order{}, err
	}

	span.SetAttributes(
		attribute.String("order.id", placed.ID),
		attribute.Int64("order.amount_minor", placed.AmountMinor),
		attribute.Int("order.items", len(placed.Items)),
	)
	if s.metrics != nil {
		s.metrics.RecordOrderPlaced(len(placed.Items))
		s.metrics.RecordOutboxEvent()
		s.metrics.RecordTimelineEvent()
	}
	logger.WithFields(log.Fields{
		"order_id":     placed.ID,
		"amount_minor": placed.AmountMinor,
		"items":        len(placed.Items),
	}).Info("order placed")

	return placed, nil
}

func (s *Service) placeOrder(ctx context.Context, tx domain.Tx, req Request) (domain.Order, error) {
	cart, err := tx.Carts().FindByEmail(ctx, req.Email)
	if err != nil {
		return domain.Order{}, err
	}
	address, err := tx.Addresses().Get(ctx, req.AddressID)
	if err != nil {
		return domain.Order{}, err
	}
	if len(cart.Items) == 0 {
		return domain.Order{}, domain.ErrCartEmpty
	}

	// Остатки списываются до вставки order_items: внешний ключ на products
	// берёт KEY SHARE, и блокировка товара после вставки давала бы deadlock
	// между двумя оформлениями одного товара. Порядок по ID для того же.
	lines := append([]domain.CartItem(nil), cart.Items...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	for _, line := range lines {
		if err := reserveStock(ctx, tx, line); err != nil {
			return domain.Order{}, err
		}
		if err := tx.Carts().RemoveItem(ctx, cart.ID, line.ProductID); err != nil {
			return domain.Order{}, fmt.Errorf("remove cart item %s: %w", line.ProductID, err)
		}
	}

	now := s.now()
	payment, err := domain.NewPayment(s.newID(), req.PaymentMethod, req.gateway(), now)
	if err != nil {
		return domain.Order{}, err
	}
	if err := tx.Payments().Create(ctx, payment); err != nil {
		return domain.Order{}, fmt.Errorf("create payment: %w", err)
	}

	order := domain.Order{
		ID:          s.newID(),
		Email:       req.Email,
		OrderDate:   now,
		AmountMinor: cart.TotalMinor,
		Status:      domain.OrderStatusAccepted,
		AddressID:   address.ID,
		PaymentID:   payment.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Orders().Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, cartItem := range cart.Items {
		items = append(items, domain.OrderItem{
			ID:                s.newID(),
			OrderID:           order.ID,
			ProductID:         cartItem.ProductID,
			Quantity:          cartItem.Quantity,
			DiscountMinor:     cartItem.DiscountMinor,
			OrderedPriceMinor: cartItem.PriceMinor,
			CreatedAt:         now,
		})
	}
	if err := tx.Orders().CreateItems(ctx, order.ID, items); err != nil {
		return domain.Order{}, fmt.Errorf("create order items: %w", err)
	}

	order.Items = items
	order.Payment = &payment

	if err := enqueuePlaced(ctx, tx, order); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Timeline().Append(ctx, domain.OrderPlacedEvent(order.ID, cart.ID, now)); err != nil {
		return domain.Order{}, fmt.Errorf("append timeline: %w", err)
	}

	return order, nil
}

func reserveStock(ctx context.Context, tx domain.Tx, line domain.CartItem) error {
	product, err := tx.Products().Get(ctx, line.ProductID)
	if err != nil {
		return err
	}
	remaining := product.Quantity - line.Quantity
	if remaining < 0 {
		return fmt.Errorf("%w: product %s has %d, requested %d",
			domain.ErrInsufficientStock, product.ID, product.Quantity, line.Quantity)
	}
	if err := tx.Products().UpdateQuantity(ctx, product.ID, remaining); err != nil {
		return fmt.Errorf("update product %s quantity: %w", product.ID, err)
	}
	return nil
}

func enqueuePlaced(ctx context.Context, tx domain.Tx, order domain.Order) error {
	payload := domain.OrderPlacedPayload{
		OrderID:     order.ID,
		Email:       order.Email,
		AmountMinor: order.AmountMinor,
		Status:      order.Status,
		PaymentID:   order.PaymentID,
		AddressID:   order.AddressID,
		Items:       make([]domain.OrderPlacedItem, 0, len(order.Items)),
		PlacedAt:    order.OrderDate,
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, domain.OrderPlacedItem{
			ProductID:         item.ProductID,
			Quantity:          item.Quantity,
			OrderedPriceMinor: item.OrderedPriceMinor,
			DiscountMinor:     item.DiscountMinor,
		})
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order.placed payload: %w", err)
	}

	if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.OutboxAggregateOrder,
		AggregateID:   order.ID,
		EventType:     domain.OutboxEventOrderPlaced,
		Payload:       data,
	}); err != nil {
		return fmt.Errorf("enqueue order.placed: %w", err)
	}
	return nil
}

// classify оставляет клиентские ошибки как есть, остальные оборачивает в TransactionError.
func classify(err error) error {
	if domain.IsClientError(err) || errors.Is(err, domain.ErrTransaction) {
		return err
	}
	return domain.NewTransactionError("place order", err)
}

func (s *Service) fail(span trace.Span, logger *log.Entry, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if s.metrics != nil {
		s.metrics.RecordPlacementFailed(failureReason(err))
	}
	if domain.IsClientError(err) {
		logger.WithError(err).Warn("order placement rejected")
		return
	}
	logger.WithError(err).Error("order placement failed")
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return metrics.ReasonNotFound
	case errors.Is(err, domain.ErrInvalidState):
		return metrics.ReasonInvalidState
	default:
		return metrics.ReasonTransaction
	}
}
