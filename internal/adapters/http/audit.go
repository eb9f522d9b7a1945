package httpadapter

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (rt *Router) auditTrail(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "audit trail", err)
		return
	}
	trail, err := rt.services.Audit.Trail(r.Context(), contractID, actorFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, "audit trail", err)
		return
	}
	writeJSON(w, http.StatusOK, trail)
}

func (rt *Router) exportAuditTrail(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "export audit trail", err)
		return
	}
	// Buffered so a failed export can still return a JSON error.
	var buf bytes.Buffer
	if err := rt.services.Audit.ExportTrail(r.Context(), contractID, actorFromContext(r.Context()), &buf); err != nil {
		writeDomainError(w, r, "export audit trail", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="audit-%s.xlsx"`, contractID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (rt *Router) translationViewed(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "log translation view", err)
		return
	}
	language, err := languageParam(r)
	if err != nil {
		writeDomainError(w, r, "log translation view", err)
		return
	}
	if err := rt.services.Audit.LogTranslationViewed(r.Context(), contractID, actorFromContext(r.Context()), language); err != nil {
		writeDomainError(w, r, "log translation view", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) verifyContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "verify contract", err)
		return
	}
	verification, err := rt.services.Verifier.Verify(r.Context(), contractID, actorFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, r, "verify contract", err)
		return
	}
	writeJSON(w, http.StatusOK, verification)
}
