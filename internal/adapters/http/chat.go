package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

type chatRequest struct {
	Message string               `json:"message"`
	History []domain.ChatMessage `json:"history"`
}

func (rt *Router) chatAboutContract(w http.ResponseWriter, r *http.Request) {
	contractID, err := contractIDParam(r)
	if err != nil {
		writeDomainError(w, r, "contract chat", err)
		return
	}
	if rt.services.Chat == nil {
		writeError(w, http.StatusNotImplemented, "contract chat is not configured")
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	reply, err := rt.services.Chat.Ask(r.Context(), contractID, actorFromContext(r.Context()), req.Message, req.History)
	if err != nil {
		writeDomainError(w, r, "contract chat", err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
