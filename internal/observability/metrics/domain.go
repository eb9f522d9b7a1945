package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type domainMetrics struct {
	pipelineRuns     *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	stageFailures    *prometheus.CounterVec
	riskScores       *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	finalizations    *prometheus.CounterVec
	replays          prometheus.Counter
	rateLimited      prometheus.Counter
	retries          *prometheus.CounterVec
}

func newDomainMetrics(factory promauto.Factory, labels prometheus.Labels) domainMetrics {
	counter := func(subsystem, name, help string, variable ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, ConstLabels: labels,
		}, variable)
	}
	return domainMetrics{
		pipelineRuns:  counter("pipeline", "runs_total", "Analysis pipeline runs by outcome.", "outcome"),
		stageFailures: counter("pipeline", "stage_failures_total", "Failed analysis stages.", "stage"),
		riskScores:    counter("pipeline", "risk_scores_total", "Analyzed contracts by aggregate risk score.", "risk_score"),
		decisions:     counter("approval", "decisions_total", "Approval decisions by party role.", "role", "decision"),
		finalizations: counter("attestation", "finalizations_total", "Finalized contracts by receipt outcome.", "receipt"),
		retries:       counter("resilience", "retry_attempts_total", "Retried outbound calls by operation.", "operation"),
		pipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "pipeline", Name: "duration_seconds",
			Help:        "End-to-end analysis pipeline duration.",
			Buckets:     []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
			ConstLabels: labels,
		}, []string{"outcome"}),
		replays: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "idempotent_replays_total",
			Help: "Uploads answered from a previous Idempotency-Key.", ConstLabels: labels,
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "rate_limited_total",
			Help: "Requests rejected by the rate limiter.", ConstLabels: labels,
		}),
	}
}

// RecordPipelineRun counts one upload. failedStages lists every stage that
// reported an error, including non-fatal ones.
func (m *domainMetrics) RecordPipelineRun(success bool, riskScore string, failedStages []string, duration time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.pipelineRuns.WithLabelValues(outcome).Inc()
	m.pipelineDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	for _, stage := range failedStages {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
	if success && riskScore != "" {
		m.riskScores.WithLabelValues(riskScore).Inc()
	}
}

func (m *domainMetrics) RecordApprovalDecision(role string, approved bool) {
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	m.decisions.WithLabelValues(role, decision).Inc()
}

func (m *domainMetrics) RecordFinalization(hasReceipt bool) {
	receipt := "pending"
	if hasReceipt {
		receipt = "recorded"
	}
	m.finalizations.WithLabelValues(receipt).Inc()
}

func (m *domainMetrics) RecordIdempotentReplay() { m.replays.Inc() }

func (m *domainMetrics) RecordRateLimited() { m.rateLimited.Inc() }

func (m *domainMetrics) RecordRetry(operation string) {
	m.retries.WithLabelValues(operation).Inc()
}
