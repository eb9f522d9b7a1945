package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

func (rt *Router) listParties(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "list parties", err)
		return
	}
	status, err := rt.services.Approvals.Status(r.Context(), contractID, actorFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, "list parties", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) addSecondParty(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "add second party", err)
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	party, err := rt.services.Approvals.AddSecondParty(r.Context(), contractID, actorFromContext(r.Context()), req.Email)
	if err != nil {
		writeDomainError(w, r, "add second party", err)
		return
	}
	writeJSON(w, http.StatusCreated, party)
}

func (rt *Router) removeSecondParty(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "remove second party", err)
		return
	}
	if err := rt.services.Approvals.RemoveSecondParty(r.Context(), contractID, actorFromContext(r.Context())); err != nil {
		writeDomainError(w, r, "remove second party", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) setApproval(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "set approval", err)
		return
	}
	var req struct {
		Approved *bool `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Approved == nil {
		writeError(w, http.StatusBadRequest, "field 'approved' is required")
		return
	}

	actorID := actorFromContext(r.Context())
	status, err := rt.services.Approvals.SetApproval(r.Context(), contractID, actorID, *req.Approved)
	if err != nil {
		writeDomainError(w, r, "set approval", err)
		return
	}
	rt.recordDecision(status, actorID, *req.Approved)
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) recordDecision(status *domain.ApprovalStatus, actorID string, approved bool) {
	if rt.metrics == nil || status == nil {
		return
	}
	role := domain.RoleSecondParty
	if status.FirstParty != nil && status.FirstParty.UserID == actorID {
		role = domain.RoleFirstParty
	}
	rt.metrics.RecordApprovalDecision(string(role), approved)
	// A successful decision that leaves both parties approved is the one
	// that finalized the contract.
	if status.OverallStatus == domain.OverallApproved {
		rt.metrics.RecordFinalization(status.ReceiptID != nil)
	}
}
