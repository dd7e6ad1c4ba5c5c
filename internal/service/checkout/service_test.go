package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const buyer = "buyer@example.com"

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seedCatalog(t *testing.T, items ...domain.CartItem) *memory.Store {
	t.Helper()

	store := memory.NewStore()
	require.NoError(t, store.PutAddress(domain.Address{
		ID: "addr-1", UserID: "u-1", Street: "Main st", City: "Pune",
		State: "MH", Country: "IN", Pincode: "411001",
	}))
	require.NoError(t, store.PutProduct(domain.Product{ID: "p-1", SellerID: "seller-a", PriceMinor: 1000, Quantity: 10}))
	require.NoError(t, store.PutProduct(domain.Product{ID: "p-2", SellerID: "seller-b", PriceMinor: 500, Quantity: 1}))
	require.NoError(t, store.PutCart(domain.Cart{ID: "cart-1", Email: buyer, Items: items}))
	return store
}

func newTestService(uow domain.UnitOfWork) *Service {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)

	svc := NewService(uow, logger.WithField("component", "checkout"),
		metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry()))
	svc.now = func() time.Time { return fixedNow }
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return svc
}

func placeRequest() Request {
	return Request{
		Email:                  buyer,
		AddressID:              "addr-1",
		PaymentMethod:          "card",
		GatewayName:            "stripe",
		GatewayPaymentID:       "pi_123",
		GatewayStatus:          "succeeded",
		GatewayResponseMessage: "ok",
	}
}

func TestPlaceOrder_SingleItem(t *testing.T) {
	store := seedCatalog(t, domain.CartItem{ID: "ci-1", ProductID: "p-1", Quantity: 2, PriceMinor: 1000})
	svc := newTestService(store)

	order, err := svc.PlaceOrder(context.Background(), placeRequest())
	require.NoError(t, err)

	require.Equal(t, int64(2000), order.AmountMinor)
	require.Equal(t, domain.OrderStatusAccepted, order.Status)
	require.Equal(t, "Order Accepted !", order.Status.Label())
	require.Equal(t, buyer, order.Email)
	require.Equal(t, "addr-1", order.AddressID)
	require.Equal(t, fixedNow, order.OrderDate)

	require.NotNil(t, order.Payment)
	require.Equal(t, order.PaymentID, order.Payment.ID)
	require.Equal(t, "card", order.Payment.Method)
	require.Equal(t, "stripe", order.Payment.GatewayName)
	require.Equal(t, "pi_123", order.Payment.GatewayPaymentID)

	require.Len(t, order.Items, 1)
	require.Equal(t, "p-1", order.Items[0].ProductID)
	require.Equal(t, int32(2), order.Items[0].Quantity)
	require.Equal(t, int64(1000), order.Items[0].OrderedPriceMinor)

	product, ok := store.Product("p-1")
	require.True(t, ok)
	require.Equal(t, int32(8), product.Quantity)

	cart, ok := store.Cart(buyer)
	require.True(t, ok)
	require.Empty(t, cart.Items)
	require.Zero(t, cart.TotalMinor)

	stored, err := store.Orders().Get(context.Background(), order.ID)
	require.NoError(t, err)
	require.Equal(t, order.AmountMinor, stored.AmountMinor)
	require.Len(t, stored.Items, 1)
	require.Equal(t, 1, store.PaymentCount())
}

func TestPlaceOrder_RecordsOutboxAndTimeline(t *testing.T) {
	store := seedCatalog(t,
		domain.CartItem{ID: "ci-1", ProductID: "p-1", Quantity: 1, PriceMinor: 1000},
		domain.CartItem{ID: "ci-2", ProductID: "p-2", Quantity: 1, PriceMinor: 500, DiscountMinor: 100},
	)
	svc := newTestService(store)
	ctx := context.Background()

	order, err := svc.PlaceOrder(ctx, placeRequest())
	require.NoError(t, err)
	require.Equal(t, int64(1400), order.AmountMinor)

	pending, err := store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, domain.OutboxEventOrderPlaced, pending[0].EventType)
	require.Equal(t, order.ID, pending[0].AggregateID)
	require.Contains(t, string(pending[0].Payload), `"amount_minor":1400`)

	events, err := store.Timeline().List(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.TimelineOrderPlaced, events[0].Type)
}

func TestPlaceOrder_InventoryConservedAndPriceSnapshotted(t *testing.T) {
	store := seedCatalog(t,
		domain.CartItem{ID: "ci-1", ProductID: "p-1", Quantity: 3, PriceMinor: 900},
		domain.CartItem{ID: "ci-2", ProductID: "p-2", Quantity: 1, PriceMinor: 500},
	)
	svc := newTestService(store)

	order, err := svc.PlaceOrder(context.Background(), placeRequest())
	require.NoError(t, err)

	before := map[string]int32{"p-1": 10, "p-2": 1}
	for _, item := range order.Items {
		product, ok := store.Product(item.ProductID)
		require.True(t, ok)
		require.Equal(t, before[item.ProductID], product.Quantity+item.Quantity)
	}

	// Изменение цены в каталоге не влияет на оформленный заказ.
	require.NoError(t, store.PutProduct(domain.Product{ID: "p-1", SellerID: "seller-a", PriceMinor: 5000, Quantity: 7}))
	stored, err := store.Orders().Get(context.Background(), order.ID)
	require.NoError(t, err)
	for _, item := range stored.Items {
		if item.ProductID == "p-1" {
			require.Equal(t, int64(900), item.OrderedPriceMinor)
		}
	}
}

func TestPlaceOrder_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *Request)
		cartItems []domain.CartItem
		wantErr   error
		entity    string
	}{
		{
			name:      "missing payment method",
			mutate:    func(r *Request) { r.PaymentMethod = " " },
			cartItems: []domain.CartItem{{ID: "ci-1", ProductID: "p-1", Quantity: 1, PriceMinor: 1000}},
			wantErr:   domain.ErrPaymentMethodRequired,
		},
		{
			name:      "missing email",
			mutate:    func(r *Request) { r.Email = "" },
			cartItems: []domain.CartItem{{ID: "ci-1", ProductID: "p-1", Quantity: 1, PriceMinor: 1000}},
			wantErr:   domain.ErrEmailRequired,
		},
		{
			name:      "unknown cart",
			mutate:    func(r *Request) { r.Email = "ghost@example.com" },
			cartItems: []domain.CartItem{{ID: "ci-1", ProductID: "p-1", Quantity: 1, PriceMinor: 1000}},
			wantErr:   domain.ErrNotFound,
			entity:    "Cart",
		},
		{
			name:      "unknown address",
			mutate:    func(r *Request) { r.AddressID = "addr-404" },
			cartItems: []domain.CartItem{{ID: "ci-1", ProductID: "p-1", Quantity: 1, PriceMinor: 1000}},
			wantErr:   domain.ErrNotFound,
			entity:    "Address",
		},
		{
			name:    "empty cart",
			mutate:  func(*Request) {},
			wantErr: domain.ErrCartEmpty,
		},
		{
			name:   "insufficient stock",
			mutate: func(*Request) {},
			cartItems: []domain.CartItem{
				{ID: "ci-1", ProductID: "p-1", Quantity: 1, PriceMinor: 1000},
				{ID: "ci-2", ProductID: "p-2", Quantity: 2, PriceMinor: 500},
			},
			wantErr: domain.ErrInsufficientStock,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seedCatalog(t, tt.cartItems...)
			svc := newTestService(store)

			req := placeRequest()
			tt.mutate(&req)

			_, err := svc.PlaceOrder(context.Background(), req)
			require.ErrorIs(t, err, tt.wantErr)
			require.True(t, domain.IsClientError(err))
			if tt.entity != "" {
				var nf *domain.NotFoundError
				require.ErrorAs(t, err, &nf)
				require.Equal(t, tt.entity, nf.Entity)
			}

			require.Zero(t, store.OrderCount())
			require.Zero(t, store.PaymentCount())
			product, _ := store.Product("p-1")
			require.Equal(t, int32(10), product.Quantity)
			cart, _ := store.Cart(buyer)
			require.Len(t, cart.Items, len(tt.cartItems))
		})
	}
}

// faultyUoW подменяет репозиторий истории, чтобы сломать последний шаг транзакции.
type faultyUoW struct {
	inner domain.UnitOfWork
	err   error
}

func (f faultyUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return f.inner.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return fn(ctx, faultyTx{Tx: tx, err: f.err})
	})
}

type faultyTx struct {
	domain.Tx
	err error
}

func (t faultyTx) Timeline() domain.TimelineRepository { return failingTimeline{err: t.err} }

type failingTimeline struct {
	domain.TimelineRepository
	err error
}

func (f failingTimeline) Append(context.Context, domain.TimelineEvent) error { return f.err }

func TestPlaceOrder_LateFailureRollsBackEverything(t *testing.T) {
	store := seedCatalog(t,
		domain.CartItem{ID: "ci-1", ProductID: "p-1", Quantity: 2, PriceMinor: 1000},
		domain.CartItem{ID: "ci-2", ProductID: "p-2", Quantity: 1, PriceMinor: 500},
	)
	cause := errors.New("disk full")
	svc := newTestService(faultyUoW{inner: store, err: cause})

	_, err := svc.PlaceOrder(context.Background(), placeRequest())
	require.ErrorIs(t, err, domain.ErrTransaction)
	require.ErrorIs(t, err, cause)
	require.False(t, domain.IsClientError(err))

	require.Zero(t, store.OrderCount())
	require.Zero(t, store.PaymentCount())
	p1, _ := store.Product("p-1")
	p2, _ := store.Product("p-2")
	require.Equal(t, int32(10), p1.Quantity)
	require.Equal(t, int32(1), p2.Quantity)
	cart, _ := store.Cart(buyer)
	require.Len(t, cart.Items, 2)
	require.Equal(t, int64(2500), cart.TotalMinor)

	stats, err := store.Outbox().Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestPlaceOrder_CancelledContext(t *testing.T) {
	store := seedCatalog(t, domain.CartItem{ID: "ci-1", ProductID: "p-1", Quantity: 1, PriceMinor: 1000})
	svc := newTestService(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.PlaceOrder(ctx, placeRequest())
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, domain.ErrTransaction)
	require.Zero(t, store.OrderCount())
}

func TestPlaceOrder_SecondPlacementSeesEmptyCart(t *testing.T) {
	store := seedCatalog(t, domain.CartItem{ID: "ci-1", ProductID: "p-1", Quantity: 1, PriceMinor: 1000})
	svc := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), placeRequest())
	require.NoError(t, err)

	_, err = svc.PlaceOrder(context.Background(), placeRequest())
	require.ErrorIs(t, err, domain.ErrCartEmpty)
	require.Equal(t, 1, store.OrderCount())
}
