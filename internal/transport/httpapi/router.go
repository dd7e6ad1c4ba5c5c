// Package httpapi реализует REST-интерфейс ядра заказов на gin.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
)

// Заголовки, которые выставляет шлюз аутентификации.
const (
	HeaderUserEmail      = "X-User-Email"
	HeaderSellerID       = "X-Seller-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotency-Replayed"
)

// NewRouter собирает gin.Engine со всеми маршрутами.
func NewRouter(h *Handler, serviceName string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(requestLogger(h.logger))

	api := router.Group("/api")
	api.POST("/order/users/payments/:paymentMethod", h.PlaceOrder)
	api.GET("/admin/orders", h.ListOrders)
	api.PUT("/admin/orders/:orderId/status", h.UpdateOrderStatus)
	api.GET("/seller/orders", h.ListSellerOrders)
	api.GET("/orders/:orderId", h.GetOrder)
	api.GET("/orders/:orderId/timeline", h.Timeline)

	return router
}

func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
			fields["trace_id"] = sc.TraceID().String()
		}

		entry := logger.WithFields(fields)
		if c.Writer.Status() >= 500 {
			entry.Warn("http request failed")
			return
		}
		entry.Debug("http request")
	}
}
