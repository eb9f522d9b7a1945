package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
	"github.com/kirillkom/contract-orchestrator/internal/observability/metrics"
)

const serviceName = "worker"

// reconciler drives attestation retries from two triggers: pending notices
// off the queue and a periodic sweep of finalized contracts without receipts.
type reconciler struct {
	attestor  ports.AttestationReconciler
	metrics   *metrics.WorkerMetrics
	batchSize int
	timeout   time.Duration
}

func (r *reconciler) handlePending(ctx context.Context, contractID string) error {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := r.metrics.TrackReconcile("notice")
	stored, err := r.attestor.ReconcileContract(runCtx, contractID)
	count := 0
	if stored {
		count = 1
	}
	done(count, err)
	return err
}

func (r *reconciler) sweep(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := r.metrics.TrackReconcile("sweep")
	stored, err := r.attestor.ReconcilePending(runCtx, r.batchSize)
	done(stored, err)
	if err != nil {
		slog.Warn("attestation_sweep_failed", "error", err)
		return
	}
	if stored > 0 {
		slog.Info("attestation_sweep_completed", "receipts_stored", stored)
	}
}

// runSweeps sweeps once immediately, then every interval until ctx ends.
func (r *reconciler) runSweeps(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	r.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}
