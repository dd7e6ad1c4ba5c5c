package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины отказа оформления заказа (значения label reason).
const (
	ReasonNotFound     = "not_found"
	ReasonInvalidState = "invalid_state"
	ReasonTransaction  = "transaction"
)

// OrderMetrics содержит метрики оформления и изменения заказов.
type OrderMetrics struct {
	ordersPlaced      prometheus.Counter
	placementFailed   *prometheus.CounterVec
	placementDuration prometheus.Histogram
	itemsPlaced       prometheus.Counter
	statusChanges     *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	checkoutsInFlight prometheus.Gauge
}

// NewOrderMetrics регистрирует метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном registerer;
// повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersPlaced: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Total number of orders placed from carts",
		})),
		placementFailed: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_placement_failed_total",
			Help: "Total number of rejected or failed order placements",
		}, []string{"reason"})),
		placementDuration: register(registerer, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_order_placement_duration_seconds",
			Help:    "Duration of the order placement transaction in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		})),
		itemsPlaced: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_order_items_placed_total",
			Help: "Total number of order items created by placements",
		})),
		statusChanges: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_order_status_changes_total",
			Help: "Total number of order status changes by target status",
		}, []string{"status"})),
		timelineEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		})),
		outboxEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_outbox_events_enqueued_total",
			Help: "Total number of outbox events enqueued",
		})),
		checkoutsInFlight: register(registerer, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_checkouts_in_flight",
			Help: "Number of order placements currently running",
		})),
	}
}

// register возвращает уже зарегистрированный коллектор того же типа, если он
// есть: сервис поднимается несколько раз в одном процессе в тестах.
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}
	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		panic(fmt.Sprintf("register collector: %v", err))
	}
	existing, ok := already.ExistingCollector.(C)
	if !ok {
		panic(fmt.Sprintf("collector already registered as %T", already.ExistingCollector))
	}
	return existing
}

// RecordPlacementStarted отмечает начало оформления заказа.
func (m *OrderMetrics) RecordPlacementStarted() {
	m.checkoutsInFlight.Inc()
}

// RecordPlacementFinished отмечает завершение оформления и его длительность.
func (m *OrderMetrics) RecordPlacementFinished(duration time.Duration) {
	m.checkoutsInFlight.Dec()
	m.placementDuration.Observe(duration.Seconds())
}

// RecordOrderPlaced учитывает успешно оформленный заказ и его позиции.
func (m *OrderMetrics) RecordOrderPlaced(items int) {
	m.ordersPlaced.Inc()
	m.itemsPlaced.Add(float64(items))
}

// RecordPlacementFailed учитывает отказ с указанной причиной.
func (m *OrderMetrics) RecordPlacementFailed(reason string) {
	m.placementFailed.WithLabelValues(reason).Inc()
}

// RecordStatusChange учитывает смену статуса заказа.
func (m *OrderMetrics) RecordStatusChange(status string) {
	m.statusChanges.WithLabelValues(status).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
