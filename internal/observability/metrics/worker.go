package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// WorkerMetrics covers attestation reconciliation in the worker process.
// Every series carries the service name as a constant label.
type WorkerMetrics struct {
	registry *prometheus.Registry

	runs      *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	inFlight  prometheus.Gauge
	receipts  *prometheus.CounterVec
	retries   *prometheus.CounterVec
	lastSweep prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": service}

	return &WorkerMetrics{
		registry: registry,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "reconcile_total",
			Help:        "Attestation reconcile runs by trigger and status.",
			ConstLabels: labels,
		}, []string{"trigger", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "worker", Name: "reconcile_duration_seconds",
			Help:        "Attestation reconcile duration by trigger.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			ConstLabels: labels,
		}, []string{"trigger"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "worker", Name: "reconcile_in_flight",
			Help:        "Reconcile runs currently executing.",
			ConstLabels: labels,
		}),
		receipts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "worker", Name: "receipts_stored_total",
			Help:        "Ledger receipts persisted by trigger.",
			ConstLabels: labels,
		}, []string{"trigger"}),
		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "resilience", Name: "retry_attempts_total",
			Help:        "Retried outbound calls by operation.",
			ConstLabels: labels,
		}, []string{"operation"}),
		lastSweep: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "worker", Name: "last_sweep_timestamp_seconds",
			Help:        "Unix time of the last completed sweep.",
			ConstLabels: labels,
		}),
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TrackReconcile marks a run as started and returns the function that
// records its outcome.
func (m *WorkerMetrics) TrackReconcile(trigger string) func(stored int, err error) {
	m.inFlight.Inc()
	start := time.Now()

	return func(stored int, err error) {
		m.inFlight.Dec()
		m.latency.WithLabelValues(trigger).Observe(time.Since(start).Seconds())

		status := "success"
		if err != nil {
			status = "error"
		}
		m.runs.WithLabelValues(trigger, status).Inc()
		if stored > 0 {
			m.receipts.WithLabelValues(trigger).Add(float64(stored))
		}
		if trigger == "sweep" && err == nil {
			m.lastSweep.SetToCurrentTime()
		}
	}
}

func (m *WorkerMetrics) RecordRetry(operation string) {
	m.retries.WithLabelValues(operation).Inc()
}
