package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/bootstrap"
	"github.com/kirillkom/contract-orchestrator/internal/config"
	"github.com/kirillkom/contract-orchestrator/internal/observability/logging"
	"github.com/kirillkom/contract-orchestrator/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		OnRetry: func(operation string, _ int, _ error) {
			workerMetrics.RecordRetry(operation)
		},
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	r := &reconciler{
		attestor:  app.Attestor,
		metrics:   workerMetrics,
		batchSize: cfg.ReconcileBatchSize,
		timeout:   5 * time.Minute,
	}
	go r.runSweeps(ctx, cfg.ReconcileInterval)

	slog.Info("worker_subscribed", "prefix", cfg.NATSSubjectPrefix, "ledger_enabled", app.Attestor.Enabled())
	if err := app.Queue.SubscribeAttestationPending(ctx, r.handlePending); err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
