package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/config"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
	"github.com/kirillkom/contract-orchestrator/internal/observability/metrics"
)

// Services are the inbound use cases the router dispatches to. Idempotency
// is optional.
type Services struct {
	Analyzer    ports.ContractAnalyzer
	Approvals   ports.ApprovalWorkflow
	Audit       ports.AuditReader
	Contracts   ports.ContractQueries
	Chat        ports.ContractChat
	Verifier    ports.AttestationVerifier
	Idempotency ports.IdempotencyStore
}

type Router struct {
	services  Services
	tokens    *tokenVerifier
	validator *requestValidator
	metrics   *metrics.HTTPServerMetrics

	maxUploadBytes   int64
	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
}

func NewRouter(
	ctx context.Context,
	cfg config.Config,
	services Services,
	httpMetrics *metrics.HTTPServerMetrics,
) (*Router, error) {
	validator, err := newRequestValidator(ctx)
	if err != nil {
		return nil, err
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	return &Router{
		services:         services,
		tokens:           newTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		validator:        validator,
		metrics:          httpMetrics,
		maxUploadBytes:   maxUpload,
		rateLimitRPS:     cfg.RateLimitRPS,
		rateLimitBurst:   cfg.RateLimitBurst,
		maxInFlight:      cfg.MaxInFlight,
		backpressureWait: cfg.BackpressureWait,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.validator.serveDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	rt.handle(mux, http.MethodPost, "/v1/contracts", rt.uploadContract)
	rt.handle(mux, http.MethodGet, "/v1/contracts", rt.listContracts)
	rt.handle(mux, http.MethodGet, "/v1/contracts/expiring", rt.listExpiring)
	rt.handle(mux, http.MethodGet, "/v1/contracts/{contract_id}", rt.getContract)
	rt.handle(mux, http.MethodPatch, "/v1/contracts/{contract_id}", rt.updateContract)
	rt.handle(mux, http.MethodDelete, "/v1/contracts/{contract_id}", rt.deleteContract)
	rt.handle(mux, http.MethodGet, "/v1/contracts/{contract_id}/parties", rt.listParties)
	rt.handle(mux, http.MethodPost, "/v1/contracts/{contract_id}/second-party", rt.addSecondParty)
	rt.handle(mux, http.MethodDelete, "/v1/contracts/{contract_id}/second-party", rt.removeSecondParty)
	rt.handle(mux, http.MethodPost, "/v1/contracts/{contract_id}/approval", rt.setApproval)
	rt.handle(mux, http.MethodPost, "/v1/contracts/{contract_id}/chat", rt.chatAboutContract)
	rt.handle(mux, http.MethodGet, "/v1/contracts/{contract_id}/audit", rt.auditTrail)
	rt.handle(mux, http.MethodGet, "/v1/contracts/{contract_id}/audit.xlsx", rt.exportAuditTrail)
	rt.handle(mux, http.MethodPost, "/v1/contracts/{contract_id}/translations/{language}/view", rt.translationViewed)
	rt.handle(mux, http.MethodGet, "/v1/contracts/{contract_id}/verify", rt.verifyContract)

	var handler http.Handler = mux
	handler = authMiddleware(handler, rt.tokens)
	handler = backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst, rt.onRateLimited)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) handle(mux *http.ServeMux, method, path string, fn http.HandlerFunc) {
	mux.HandleFunc(method+" "+path, rt.validator.wrap(method, path, fn))
}

func (rt *Router) onRateLimited() {
	if rt.metrics != nil {
		rt.metrics.RecordRateLimited()
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
