package domain

import (
	"encoding/json"
	"time"
)

type EventKind string

const (
	EventDocumentUploaded    EventKind = "document_uploaded"
	EventAnalysisCompleted   EventKind = "ai_analysis_completed"
	EventTranslationViewed   EventKind = "translation_viewed"
	EventFirstPartyApproved  EventKind = "first_party_approved"
	EventFirstPartyRejected  EventKind = "first_party_rejected"
	EventSecondPartyAdded    EventKind = "second_party_added"
	EventSecondPartyRemoved  EventKind = "second_party_removed"
	EventSecondPartyApproved EventKind = "second_party_approved"
	EventSecondPartyRejected EventKind = "second_party_rejected"
	EventContractFinalized   EventKind = "contract_finalized"
	EventAttestationRecorded EventKind = "blockchain_verified"
)

// ApprovalEventKind maps a party decision to its audit event kind.
func ApprovalEventKind(role PartyRole, approved bool) EventKind {
	switch {
	case role == RoleFirstParty && approved:
		return EventFirstPartyApproved
	case role == RoleFirstParty:
		return EventFirstPartyRejected
	case approved:
		return EventSecondPartyApproved
	default:
		return EventSecondPartyRejected
	}
}

// Event is one append-only audit entry. Seq breaks created_at ties in
// insertion order.
type Event struct {
	ID          string          `json:"id"`
	ContractID  string          `json:"contract_id"`
	Kind        EventKind       `json:"event_type"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"event_metadata,omitempty"`
	ActorID     *string         `json:"user_id,omitempty"`
	ActorName   *string         `json:"user_name,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Seq         int64           `json:"-"`
}

type AuditTrail struct {
	ContractID  string  `json:"contract_id"`
	Events      []Event `json:"events"`
	ContentHash *string `json:"blockchain_hash,omitempty"`
	ReceiptID   *string `json:"blockchain_tx_hash,omitempty"`
}
