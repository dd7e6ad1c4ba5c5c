package app

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// initTracing ставит глобальный TracerProvider. Экспортёр не подключён:
// спаны нужны для trace_id в логах и для propagation во входящих запросах.
func initTracing(serviceName string, sampleRatio float64) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version.Current().Version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tp
}

func shutdownTracing(ctx context.Context, tp *sdktrace.TracerProvider, logger *log.Entry) {
	if tp == nil {
		return
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("failed to shutdown tracer provider")
	}
}
