// Package orders реализует чтение заказов и смену их статуса.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const tracerName = "storefront/orders"

// ListParams — параметры страницы в том виде, в каком они пришли от клиента.
type ListParams struct {
	PageNumber    int
	PageSize      int
	SortBy        string
	SortDirection string
}

// Service обслуживает административные и продавцовые запросы к заказам.
type Service struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewService создаёт сервис запросов к заказам. metrics может быть nil.
func NewService(store domain.Store, logger *log.Entry, m *metrics.OrderMetrics) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "orders")
	}
	return &Service{
		store:   store,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ListOrders возвращает страницу всех заказов.
func (s *Service) ListOrders(ctx context.Context, params ListParams) (domain.Page[domain.Order], error) {
	ctx, span := s.startListSpan(ctx, "orders.ListOrders", params)
	defer span.End()

	req, err := domain.NewPageRequest(params.PageNumber, params.PageSize, params.SortBy, params.SortDirection)
	if err != nil {
		return domain.Page[domain.Order]{}, recordErr(span, err)
	}

	page, err := s.store.Orders().List(ctx, req)
	if err != nil {
		return domain.Page[domain.Order]{}, recordErr(span, fmt.Errorf("list orders: %w", err))
	}
	span.SetAttributes(attribute.Int64("page.total_elements", page.TotalElements))
	return page, nil
}

// ListSellerOrders возвращает страницу заказов, содержащих товары продавца.
// Фильтр по продавцу применяется до разбиения на страницы.
func (s *Service) ListSellerOrders(ctx context.Context, params ListParams, sellerID string) (domain.Page[domain.Order], error) {
	ctx, span := s.startListSpan(ctx, "orders.ListSellerOrders", params)
	defer span.End()
	span.SetAttributes(attribute.String("seller.id", sellerID))

	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return domain.Page[domain.Order]{}, recordErr(span, domain.ErrSellerIDRequired)
	}
	req, err := domain.NewPageRequest(params.PageNumber, params.PageSize, params.SortBy, params.SortDirection)
	if err != nil {
		return domain.Page[domain.Order]{}, recordErr(span, err)
	}

	page, err := s.store.Orders().ListBySeller(ctx, req, sellerID)
	if err != nil {
		return domain.Page[domain.Order]{}, recordErr(span, fmt.Errorf("list seller orders: %w", err))
	}
	span.SetAttributes(attribute.Int64("page.total_elements", page.TotalElements))
	return page, nil
}

// GetOrder возвращает заказ с позициями и платежом.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.GetOrder", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	order, err := s.store.Orders().Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, recordErr(span, err)
	}
	return order, nil
}

// Timeline возвращает историю заказа или NotFoundError для неизвестного заказа.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, span := s.tracer.Start(ctx, "orders.Timeline", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if _, err := s.store.Orders().Get(ctx, orderID); err != nil {
		return nil, recordErr(span, err)
	}
	events, err := s.store.Timeline().List(ctx, orderID)
	if err != nil {
		return nil, recordErr(span, fmt.Errorf("list timeline: %w", err))
	}
	span.SetAttributes(attribute.Int("timeline.events", len(events)))
	return events, nil
}

// UpdateOrderStatus переводит заказ в новый статус. Меняются только статус,
// время обновления и версия; событие уходит в outbox той же транзакцией.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID, rawStatus string) (domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.UpdateOrderStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", rawStatus),
	))
	defer span.End()

	logger := s.logger.WithField("order_id", orderID)

	status, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return domain.Order{}, recordErr(span, err)
	}

	var updated domain.Order
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrStatusTransition, order.Status, status)
		}

		now := s.now()
		if err := tx.Orders().UpdateStatus(ctx, order.ID, status, order.Version, now); err != nil {
			return err
		}

		payload, err := json.Marshal(domain.OrderStatusChangedPayload{
			OrderID:   order.ID,
			From:      order.Status,
			To:        status,
			Version:   order.Version + 1,
			ChangedAt: now,
		})
		if err != nil {
			return fmt.Errorf("marshal order.status_changed payload: %w", err)
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: domain.OutboxAggregateOrder,
			AggregateID:   order.ID,
			EventType:     domain.OutboxEventStatusChanged,
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("enqueue order.status_changed: %w", err)
		}
		if err := tx.Timeline().Append(ctx, domain.StatusChangedEvent(order.ID, order.Status, status, now)); err != nil {
			return fmt.Errorf("append timeline: %w", err)
		}

		order.Status = status
		order.Version++
		order.UpdatedAt = now
		updated = order
		return nil
	})
	if err != nil {
		if !domain.IsClientError(err) && !domain.IsVersionConflict(err) && !errors.Is(err, domain.ErrTransaction) {
			err = domain.NewTransactionError("update order status", err)
		}
		logger.WithError(err).Warn("order status update failed")
		return domain.Order{}, recordErr(span, err)
	}

	if s.metrics != nil {
		s.metrics.RecordStatusChange(string(updated.Status))
		s.metrics.RecordOutboxEvent()
		s.metrics.RecordTimelineEvent()
	}
	logger.WithField("status", updated.Status).Info("order status updated")
	return updated, nil
}

func (s *Service) startListSpan(ctx context.Context, name string, params ListParams) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int("page.number", params.PageNumber),
		attribute.Int("page.size", params.PageSize),
		attribute.String("page.sort_by", params.SortBy),
		attribute.String("page.sort_direction", params.SortDirection),
	))
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
