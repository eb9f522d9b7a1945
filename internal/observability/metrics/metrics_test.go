package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizePathCollapsesIdentifiers(t *testing.T) {
	cases := map[string]string{
		"/v1/contracts":                             "/v1/contracts",
		"/v1/contracts/expiring":                    "/v1/contracts/expiring",
		"/v1/contracts/abc":                         "/v1/contracts/{contract_id}",
		"/v1/contracts/abc/approval":                "/v1/contracts/{contract_id}/approval",
		"/v1/contracts/abc/translations/hindi/view": "/v1/contracts/{contract_id}/translations/{language}/view",
		"/v1/contracts/abc/audit.xlsx":              "/v1/contracts/{contract_id}/audit.xlsx",
		"/healthz":                                  "/healthz",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMiddlewareExposesRequestAndDomainMetrics(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/contracts/c-1/approval", nil))
	m.RecordPipelineRun(true, "high", []string{"translate"}, 2*time.Second)
	m.RecordApprovalDecision("first_party", true)
	m.RecordFinalization(false)

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()

	for _, want := range []string{
		`contracts_http_requests_total{method="POST",path="/v1/contracts/{contract_id}/approval",service="api",status="409"} 1`,
		`contracts_pipeline_stage_failures_total{service="api",stage="translate"} 1`,
		`contracts_pipeline_risk_scores_total{risk_score="high",service="api"} 1`,
		`contracts_approval_decisions_total{decision="approved",role="first_party",service="api"} 1`,
		`contracts_attestation_finalizations_total{receipt="pending",service="api"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
}

func TestWorkerMetricsRecordReconcile(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.TrackReconcile("sweep")(2, nil)
	m.TrackReconcile("notice")(0, errors.New("ledger down"))
	m.RecordRetry("ledger_receipt")

	scrape := httptest.NewRecorder()
	m.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := scrape.Body.String()
	for _, want := range []string{
		`contracts_worker_reconcile_total{service="worker",status="success",trigger="sweep"} 1`,
		`contracts_worker_reconcile_total{service="worker",status="error",trigger="notice"} 1`,
		`contracts_worker_receipts_stored_total{service="worker",trigger="sweep"} 2`,
		`contracts_resilience_retry_attempts_total{operation="ledger_receipt",service="worker"} 1`,
		`contracts_worker_reconcile_in_flight{service="worker"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %s", want)
		}
	}
	if strings.Contains(body, `contracts_worker_last_sweep_timestamp_seconds{service="worker"} 0`) {
		t.Fatalf("expected sweep timestamp to be set")
	}
}
