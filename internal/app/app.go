// Package app собирает сервис из конфигурации: хранилища, HTTP API, gRPC health,
// метрики и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/orders"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

const defaultShutdownTimeout = 5 * time.Second

// Run запускает сервис и блокируется до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	tp := initTracing(cfg.ServiceName, cfg.TraceSampleRatio)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdownTracing(shutdownCtx, tp, logger)
	}()

	orderMetrics := metrics.NewOrderMetrics()
	checkoutSvc := checkout.NewService(deps.store, log.WithField("component", "checkout"), orderMetrics)
	ordersSvc := orders.NewService(deps.store, log.WithField("component", "orders"), orderMetrics)
	guard := idempotency.NewGuard(deps.idempotencyRepo, log.WithField("component", "idempotency"), cfg.IdempotencyTTL)

	healthHandler := healthcheck.NewHandler(version.Current().String())
	for name, checker := range deps.checkers {
		healthHandler.Register(name, checker)
	}
	healthHandler.Register("outbox", healthcheck.NewOutboxChecker(deps.outboxRepo, cfg.OutboxMaxPending, cfg.OutboxMaxPendingAge))

	producer, releaseKafka, err := connectKafka(cfg, logger)
	if err != nil {
		logger.WithError(err).Warn("continuing without outbox relay")
	}
	defer releaseKafka()

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	startWorkers(workersCtx, &workers, cfg, deps, producer, logger)
	defer shutdownWorkers(stopWorkers, &workers, shutdownTimeout, logger)

	grpcServer, healthServer := newGRPCServer(logger)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return err
	}

	router := httpapi.NewRouter(
		httpapi.NewHandler(checkoutSvc, ordersSvc, guard, log.WithField("component", "http")),
		cfg.ServiceName,
	)
	httpSrv := &http.Server{Handler: router, ReadHeaderTimeout: 5 * time.Second}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	stopGRPC(grpcServer, shutdownTimeout, logger)
	shutdownHTTP(httpSrv, shutdownTimeout, logger)
	shutdownHTTP(metricsSrv, shutdownTimeout, logger)

	return runErr
}

// startWorkers запускает outbox relay (если есть Kafka) и очистку idempotency-ключей.
func startWorkers(ctx context.Context, wg *sync.WaitGroup, cfg Config, deps *runtimeDependencies, producer *kafka.Producer, logger *log.Entry) {
	if producer != nil {
		worker := outbox.NewWorker(
			deps.outboxRepo,
			producer.Topic(cfg.KafkaTopic),
			outbox.WithLogger(log.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(producer.Topic(cfg.KafkaDLQTopic)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	} else {
		logger.Warn("kafka brokers are not configured, outbox relay is disabled")
	}

	cleanup := idempotency.NewCleanupWorker(
		deps.idempotencyRepo,
		idempotency.WithLogger(log.WithField("component", "idempotency-cleanup-worker")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		cleanup.Run(ctx)
	}()
}

// shutdownWorkers отменяет воркеры и ждёт их завершения не дольше timeout.
func shutdownWorkers(cancel context.CancelFunc, wg *sync.WaitGroup, timeout time.Duration, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if wg == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("background workers did not stop within timeout")
	}
}

func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	// повторный Run в том же процессе (тесты) получает уже зарегистрированный коллектор
	var already prometheus.AlreadyRegisteredError
	switch err := prometheus.Register(grpcMetrics); {
	case errors.As(err, &already):
		if existing, ok := already.ExistingCollector.(*promgrpc.ServerMetrics); ok {
			grpcMetrics = existing
		}
	case err != nil:
		logger.WithError(err).Warn("failed to register grpc metrics")
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

func stopGRPC(srv *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// opsMux обслуживает служебный порт: метрики Prometheus и пробы.
func opsMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.Ready)
	mux.HandleFunc("/livez", healthcheck.Live)
	return mux
}

// startMetricsServer поднимает opsMux на addr и гасит его при отмене ctx.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: opsMux(healthHandler), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	context.AfterFunc(ctx, func() { shutdownHTTP(srv, defaultShutdownTimeout, logger) })
	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
