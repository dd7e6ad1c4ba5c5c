package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
)

// Значения по умолчанию для листинга заказов.
const (
	defaultPageNumber    = 0
	defaultPageSize      = 50
	defaultSortBy        = "totalAmount"
	defaultSortDirection = "asc"
)

// OrderPlacer оформляет заказ из корзины.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req checkout.Request) (domain.Order, error)
}

// OrderQueries читает заказы и меняет их статус.
type OrderQueries interface {
	ListOrders(ctx context.Context, params orders.ListParams) (domain.Page[domain.Order], error)
	ListSellerOrders(ctx context.Context, params orders.ListParams, sellerID string) (domain.Page[domain.Order], error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) (domain.Order, error)
}

// Handler обслуживает HTTP-запросы к ядру заказов.
type Handler struct {
	placer  OrderPlacer
	queries OrderQueries
	guard   *idempotency.Guard
	logger  *log.Entry
}

// NewHandler создаёт Handler. guard может быть nil: тогда Idempotency-Key игнорируется.
func NewHandler(placer OrderPlacer, queries OrderQueries, guard *idempotency.Guard, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	return &Handler{
		placer:  placer,
		queries: queries,
		guard:   guard,
		logger:  logger,
	}
}

// PlaceOrder оформляет корзину пользователя из X-User-Email.
func (h *Handler) PlaceOrder(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.writeError(c, domain.InvalidState("unreadable request body"))
		return
	}

	var req placeOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(c, domain.InvalidState("malformed request body"))
		return
	}

	email := strings.TrimSpace(c.GetHeader(HeaderUserEmail))
	checkoutReq := checkout.Request{
		Email:                  email,
		AddressID:              req.AddressID,
		PaymentMethod:          c.Param("paymentMethod"),
		GatewayName:            req.PGName,
		GatewayPaymentID:       req.PGPaymentID,
		GatewayStatus:          req.PGStatus,
		GatewayResponseMessage: req.PGResponseMessage,
	}

	place := func(ctx context.Context) idempotency.Response {
		order, err := h.placer.PlaceOrder(ctx, checkoutReq)
		if err != nil {
			status := statusFor(err)
			return jsonResponse(status, errorDTO{Message: messageFor(status, err), Status: false})
		}
		return jsonResponse(http.StatusOK, toOrderDTO(order))
	}

	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if key == "" || h.guard == nil {
		h.writeResponse(c, place(c.Request.Context()))
		return
	}

	hash := idempotency.RequestHash(c.Request.Method, c.Request.URL.Path, email, body)
	resp, replayed, err := h.guard.Execute(c.Request.Context(), key, hash, place)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if replayed {
		c.Header(HeaderReplayed, "true")
	}
	h.writeResponse(c, resp)
}

// ListOrders отдаёт страницу всех заказов.
func (h *Handler) ListOrders(c *gin.Context) {
	params, err := listParams(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	page, err := h.queries.ListOrders(c.Request.Context(), params)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderPageDTO(page))
}

// ListSellerOrders отдаёт страницу заказов продавца из X-Seller-ID.
func (h *Handler) ListSellerOrders(c *gin.Context) {
	params, err := listParams(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	page, err := h.queries.ListSellerOrders(c.Request.Context(), params, c.GetHeader(HeaderSellerID))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderPageDTO(page))
}

func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, domain.InvalidState("malformed request body"))
		return
	}

	order, err := h.queries.UpdateOrderStatus(c.Request.Context(), c.Param("orderId"), req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.queries.GetOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderDTO(order))
}

func (h *Handler) Timeline(c *gin.Context) {
	events, err := h.queries.Timeline(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTimelineDTO(events))
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, errorDTO{Message: messageFor(status, err), Status: false})
}

func (h *Handler) writeResponse(c *gin.Context, resp idempotency.Response) {
	c.Data(resp.Status, "application/json; charset=utf-8", resp.Body)
}

func jsonResponse(status int, v any) idempotency.Response {
	body, err := json.Marshal(v)
	if err != nil {
		body, _ = json.Marshal(errorDTO{Message: "internal server error"})
		return idempotency.Response{Status: http.StatusInternalServerError, Body: body}
	}
	return idempotency.Response{Status: status, Body: body}
}

func listParams(c *gin.Context) (orders.ListParams, error) {
	number, err := queryInt(c, "pageNumber", defaultPageNumber)
	if err != nil {
		return orders.ListParams{}, err
	}
	size, err := queryInt(c, "pageSize", defaultPageSize)
	if err != nil {
		return orders.ListParams{}, err
	}
	return orders.ListParams{
		PageNumber:    number,
		PageSize:      size,
		SortBy:        c.DefaultQuery("sortBy", defaultSortBy),
		SortDirection: c.DefaultQuery("sortOrder", defaultSortDirection),
	}, nil
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrPageInvalid, name)
	}
	return v, nil
}
