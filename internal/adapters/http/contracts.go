package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

const idempotencyKeyHeader = "Idempotency-Key"

func (rt *Router) uploadContract(w http.ResponseWriter, r *http.Request) {
	actorID := actorFromContext(r.Context())
	idempotencyKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))

	if replayed := rt.replayUpload(w, r, actorID, idempotencyKey); replayed {
		return
	}

	if r.ContentLength > rt.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	document, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	start := time.Now()
	result, err := rt.services.Analyzer.Run(r.Context(), actorID, fileHeader.Filename, document)
	if err != nil {
		writeDomainError(w, r, "upload contract", err)
		return
	}
	rt.recordPipelineRun(result, time.Since(start))

	if result.Success && idempotencyKey != "" && rt.services.Idempotency != nil {
		if err := rt.services.Idempotency.Remember(r.Context(), actorID, idempotencyKey, result.ContractID); err != nil {
			slog.Warn("idempotency_remember_failed",
				"request_id", requestIDFromContext(r.Context()),
				"contract_id", result.ContractID,
				"error", err,
			)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

// replayUpload answers a repeated Idempotency-Key with the stored contract.
// Lookup failures fall through to a normal upload.
func (rt *Router) replayUpload(w http.ResponseWriter, r *http.Request, actorID, key string) bool {
	if key == "" || rt.services.Idempotency == nil {
		return false
	}
	contractID, found, err := rt.services.Idempotency.Lookup(r.Context(), actorID, key)
	if err != nil {
		slog.Warn("idempotency_lookup_failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		return false
	}
	if !found {
		return false
	}
	detail, err := rt.services.Contracts.Get(r.Context(), contractID, actorID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return false
		}
		writeDomainError(w, r, "replay upload", err)
		return true
	}
	if rt.metrics != nil {
		rt.metrics.RecordIdempotentReplay()
	}
	w.Header().Set("Idempotent-Replayed", "true")
	writeJSON(w, http.StatusOK, domain.DetailResult(detail))
	return true
}

func (rt *Router) recordPipelineRun(result *domain.PipelineResult, duration time.Duration) {
	if rt.metrics == nil {
		return
	}
	var failed []string
	for _, stage := range result.Stages {
		if !stage.OK {
			failed = append(failed, string(stage.Stage))
		}
	}
	rt.metrics.RecordPipelineRun(result.Success, string(result.RiskScore), failed, duration)
}

func (rt *Router) listContracts(w http.ResponseWriter, r *http.Request) {
	params, err := bindListParams(r)
	if err != nil {
		writeDomainError(w, r, "list contracts", err)
		return
	}
	list, err := rt.services.Contracts.List(r.Context(), actorFromContext(r.Context()), params.filter())
	if err != nil {
		writeDomainError(w, r, "list contracts", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (rt *Router) listExpiring(w http.ResponseWriter, r *http.Request) {
	days, err := bindDaysParam(r)
	if err != nil {
		writeDomainError(w, r, "list expiring contracts", err)
		return
	}
	items, err := rt.services.Contracts.Expiring(r.Context(), actorFromContext(r.Context()), days)
	if err != nil {
		writeDomainError(w, r, "list expiring contracts", err)
		return
	}
	if items == nil {
		items = []domain.ContractListItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"contracts": items})
}

func (rt *Router) getContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "get contract", err)
		return
	}
	detail, err := rt.services.Contracts.Get(r.Context(), contractID, actorFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, "get contract", err)
		return
	}
	writeJSON(w, http.StatusOK, domain.DetailResult(detail))
}

func (rt *Router) updateContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "update contract", err)
		return
	}

	var req struct {
		Category   *string `json:"category"`
		ExpiryDate *string `json:"expiry_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	update := domain.DetailsUpdate{Category: req.Category}
	if req.ExpiryDate != nil {
		expiresAt, err := parseExpiryDate(*req.ExpiryDate)
		if err != nil {
			writeDomainError(w, r, "update contract", err)
			return
		}
		update.ExpiresAt = &expiresAt
	}

	contract, err := rt.services.Contracts.UpdateDetails(r.Context(), contractID, actorFromContext(r.Context()), update)
	if err != nil {
		writeDomainError(w, r, "update contract", err)
		return
	}
	writeJSON(w, http.StatusOK, contract)
}

func (rt *Router) deleteContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "delete contract", err)
		return
	}
	if err := rt.services.Contracts.Delete(r.Context(), contractID, actorFromContext(r.Context())); err != nil {
		writeDomainError(w, r, "delete contract", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
