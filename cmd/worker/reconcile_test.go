package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/observability/metrics"
)

type attestorFake struct {
	mu     sync.Mutex
	sweeps int
	ids    []string
	err    error
}

func (f *attestorFake) ReconcileContract(_ context.Context, contractID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, contractID)
	return f.err == nil, f.err
}

func (f *attestorFake) ReconcilePending(context.Context, int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return 2, f.err
}

func (f *attestorFake) Sweeps() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps
}

func TestHandlePendingReconcilesOneContract(t *testing.T) {
	fake := &attestorFake{}
	r := &reconciler{attestor: fake, metrics: metrics.NewWorkerMetrics("worker-test"), batchSize: 10, timeout: time.Second}

	if err := r.handlePending(context.Background(), "c-1"); err != nil {
		t.Fatalf("handle pending: %v", err)
	}
	if len(fake.ids) != 1 || fake.ids[0] != "c-1" {
		t.Fatalf("unexpected reconciled ids: %v", fake.ids)
	}
}

func TestHandlePendingReturnsReconcileError(t *testing.T) {
	fake := &attestorFake{err: errors.New("ledger down")}
	r := &reconciler{attestor: fake, metrics: metrics.NewWorkerMetrics("worker-test"), batchSize: 10, timeout: time.Second}

	if err := r.handlePending(context.Background(), "c-1"); err == nil {
		t.Fatalf("expected reconcile error")
	}
}

func TestRunSweepsSweepsImmediatelyAndStopsOnCancel(t *testing.T) {
	fake := &attestorFake{}
	r := &reconciler{attestor: fake, metrics: metrics.NewWorkerMetrics("worker-test"), batchSize: 10, timeout: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.runSweeps(ctx, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for fake.Sweeps() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop after cancel")
	}
	if fake.Sweeps() != 1 {
		t.Fatalf("expected exactly one sweep, got %d", fake.Sweeps())
	}
}
