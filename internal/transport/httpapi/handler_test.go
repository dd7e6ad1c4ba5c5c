package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const (
	buyer     = "buyer@example.com"
	placePath = "/api/order/users/payments/card"
	placeBody = `{"addressId":"addr-1","pgName":"stripe","pgPaymentId":"pi_1","pgStatus":"succeeded","pgResponseMessage":"ok"}`
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	store  *memory.Store
	router *gin.Engine
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	store := memory.NewStore()
	require.NoError(t, store.PutAddress(domain.Address{
		ID: "addr-1", UserID: "u-1", Street: "Main st", City: "Pune",
		State: "MH", Country: "IN", Pincode: "411001",
	}))
	require.NoError(t, store.PutProduct(domain.Product{ID: "p-a", SellerID: "seller-a", PriceMinor: 1000, Quantity: 10}))
	require.NoError(t, store.PutProduct(domain.Product{ID: "p-b", SellerID: "seller-b", PriceMinor: 250, Quantity: 10}))

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := logger.WithField("component", "http-test")
	m := metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	handler := NewHandler(
		checkout.NewService(store, entry, m),
		orders.NewService(store, entry, m),
		idempotency.NewGuard(memory.NewIdempotencyRepository(), entry, 0),
		entry,
	)
	return testEnv{store: store, router: NewRouter(handler, "storefront-test")}
}

func (e testEnv) putCart(t *testing.T, email string, items ...domain.CartItem) {
	t.Helper()
	require.NoError(t, e.store.PutCart(domain.Cart{ID: "cart-" + email, Email: email, Items: items}))
}

func (e testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPlaceOrder_OK(t *testing.T) {
	env := newTestEnv(t)
	env.putCart(t, buyer, domain.CartItem{ID: "ci-1", ProductID: "p-a", Quantity: 2, PriceMinor: 1000})

	rec := env.do(http.MethodPost, placePath, placeBody, map[string]string{HeaderUserEmail: buyer})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	order := decode[orderDTO](t, rec)
	require.Equal(t, buyer, order.Email)
	require.Equal(t, int64(2000), order.TotalAmountMinor)
	require.Equal(t, "accepted", order.OrderStatus)
	require.Equal(t, "Order Accepted !", order.StatusLabel)
	require.Equal(t, "addr-1", order.AddressID)
	require.Len(t, order.OrderItems, 1)
	require.NotNil(t, order.Payment)
	require.Equal(t, "card", order.Payment.PaymentMethod)
	require.Equal(t, "pi_1", order.Payment.PGPaymentID)

	product, ok := env.store.Product("p-a")
	require.True(t, ok)
	require.Equal(t, int32(8), product.Quantity)
}

func TestPlaceOrder_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		body    string
		setup   func(t *testing.T, env testEnv)
		status  int
		message string
	}{
		{
			name:    "cart not found",
			email:   "nobody@example.com",
			body:    placeBody,
			status:  http.StatusNotFound,
			message: "Cart not found with email: nobody@example.com",
		},
		{
			name:  "address not found",
			email: buyer,
			body:  `{"addressId":"addr-404"}`,
			setup: func(t *testing.T, env testEnv) {
				env.putCart(t, buyer, domain.CartItem{ID: "ci-1", ProductID: "p-a", Quantity: 1, PriceMinor: 1000})
			},
			status:  http.StatusNotFound,
			message: "Address not found with addressId: addr-404",
		},
		{
			name:  "empty cart",
			email: buyer,
			body:  placeBody,
			setup: func(t *testing.T, env testEnv) {
				env.putCart(t, buyer)
			},
			status:  http.StatusBadRequest,
			message: "cart is empty",
		},
		{
			name:   "missing email header",
			body:   placeBody,
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed body",
			email:  buyer,
			body:   "{",
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(t, env)
			}

			rec := env.do(http.MethodPost, placePath, tt.body, map[string]string{HeaderUserEmail: tt.email})
			require.Equal(t, tt.status, rec.Code, rec.Body.String())

			body := decode[errorDTO](t, rec)
			require.False(t, body.Status)
			if tt.message != "" {
				require.Contains(t, body.Message, tt.message)
			}
			require.Zero(t, env.store.OrderCount())
		})
	}
}

func TestPlaceOrder_IdempotencyReplay(t *testing.T) {
	env := newTestEnv(t)
	env.putCart(t, buyer, domain.CartItem{ID: "ci-1", ProductID: "p-a", Quantity: 1, PriceMinor: 1000})
	headers := map[string]string{HeaderUserEmail: buyer, HeaderIdempotencyKey: "key-1"}

	first := env.do(http.MethodPost, placePath, placeBody, headers)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	require.Empty(t, first.Header().Get(HeaderReplayed))

	second := env.do(http.MethodPost, placePath, placeBody, headers)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get(HeaderReplayed))
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, env.store.OrderCount())

	other := env.do(http.MethodPost, placePath, `{"addressId":"addr-2"}`, headers)
	require.Equal(t, http.StatusConflict, other.Code)
}

func TestListOrders(t *testing.T) {
	env := newTestEnv(t)
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		env.putCart(t, email, domain.CartItem{ID: "ci", ProductID: "p-a", Quantity: 1, PriceMinor: 1000})
		rec := env.do(http.MethodPost, placePath, placeBody, map[string]string{HeaderUserEmail: email})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := env.do(http.MethodGet, "/api/admin/orders?pageNumber=1&pageSize=2&sortBy=email&sortOrder=desc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	page := decode[orderPageDTO](t, rec)
	require.Equal(t, 1, page.PageNumber)
	require.Equal(t, 2, page.PageSize)
	require.Equal(t, int64(3), page.TotalElements)
	require.Equal(t, 2, page.TotalPages)
	require.True(t, page.LastPage)
	require.Len(t, page.Content, 1)
	require.Equal(t, "a@example.com", page.Content[0].Email)

	defaults := decode[orderPageDTO](t, env.do(http.MethodGet, "/api/admin/orders", "", nil))
	require.Equal(t, 0, defaults.PageNumber)
	require.Equal(t, 50, defaults.PageSize)
	require.Len(t, defaults.Content, 3)

	for _, query := range []string{"?sortBy=price", "?pageSize=0", "?pageNumber=abc", "?pageNumber=9223372036854775807&pageSize=2"} {
		rec := env.do(http.MethodGet, "/api/admin/orders"+query, "", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestListSellerOrders(t *testing.T) {
	env := newTestEnv(t)
	env.putCart(t, "a@example.com", domain.CartItem{ID: "ci", ProductID: "p-a", Quantity: 1, PriceMinor: 1000})
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, placePath, placeBody, map[string]string{HeaderUserEmail: "a@example.com"}).Code)
	env.putCart(t, "b@example.com", domain.CartItem{ID: "ci", ProductID: "p-b", Quantity: 1, PriceMinor: 250})
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, placePath, placeBody, map[string]string{HeaderUserEmail: "b@example.com"}).Code)

	rec := env.do(http.MethodGet, "/api/seller/orders", "", map[string]string{HeaderSellerID: "seller-b"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decode[orderPageDTO](t, rec)
	require.Equal(t, int64(1), page.TotalElements)
	require.Equal(t, "b@example.com", page.Content[0].Email)

	missing := env.do(http.MethodGet, "/api/seller/orders", "", nil)
	require.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestUpdateOrderStatusAndTimeline(t *testing.T) {
	env := newTestEnv(t)
	env.putCart(t, buyer, domain.CartItem{ID: "ci", ProductID: "p-a", Quantity: 1, PriceMinor: 1000})
	placed := decode[orderDTO](t, env.do(http.MethodPost, placePath, placeBody, map[string]string{HeaderUserEmail: buyer}))

	statusPath := "/api/admin/orders/" + placed.OrderID + "/status"
	rec := env.do(http.MethodPut, statusPath, `{"status":"shipped"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[orderDTO](t, rec)
	require.Equal(t, "shipped", updated.OrderStatus)
	require.Equal(t, placed.TotalAmountMinor, updated.TotalAmountMinor)

	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, statusPath, `{"status":"accepted"}`, nil).Code)
	require.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, statusPath, `{"status":"lost"}`, nil).Code)
	require.Equal(t, http.StatusNotFound, env.do(http.MethodPut, "/api/admin/orders/missing/status", `{"status":"shipped"}`, nil).Code)

	got := decode[orderDTO](t, env.do(http.MethodGet, "/api/orders/"+placed.OrderID, "", nil))
	require.Equal(t, "shipped", got.OrderStatus)

	timeline := decode[[]timelineEventDTO](t, env.do(http.MethodGet, "/api/orders/"+placed.OrderID+"/timeline", "", nil))
	require.Len(t, timeline, 2)
	require.Equal(t, domain.TimelineOrderPlaced, timeline[0].Type)
	require.Equal(t, domain.TimelineOrderStatusChanged, timeline[1].Type)

	require.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/orders/missing", "", nil).Code)
}

type failingPlacer struct{ err error }

func (f failingPlacer) PlaceOrder(context.Context, checkout.Request) (domain.Order, error) {
	return domain.Order{}, f.err
}

func TestPlaceOrder_InternalErrorHidden(t *testing.T) {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	handler := NewHandler(failingPlacer{err: domain.NewTransactionError("place order", errors.New("disk on fire"))}, nil, nil, logger.WithField("component", "http-test"))
	router := NewRouter(handler, "storefront-test")

	req := httptest.NewRequest(http.MethodPost, placePath, strings.NewReader(placeBody))
	req.Header.Set(HeaderUserEmail, buyer)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode[errorDTO](t, rec)
	require.Equal(t, "internal server error", body.Message)
	require.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewNotFound("Order", "orderId", "x"), http.StatusNotFound},
		{domain.ErrCartEmpty, http.StatusBadRequest},
		{domain.ErrIdempotencyHashMismatch, http.StatusConflict},
		{domain.ErrIdempotencyInProgress, http.StatusConflict},
		{domain.ErrOrderVersionConflict, http.StatusConflict},
		{domain.NewTransactionError("commit", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
