package ports

import (
	"context"
	"io"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

// ContractAnalyzer is the inbound contract for upload + analysis orchestration.
type ContractAnalyzer interface {
	Run(ctx context.Context, ownerID, filename string, document []byte) (*domain.PipelineResult, error)
}

// ApprovalWorkflow drives the two-party approval state machine.
type ApprovalWorkflow interface {
	AddSecondParty(ctx context.Context, contractID, actorID, email string) (*domain.PartyView, error)
	RemoveSecondParty(ctx context.Context, contractID, actorID string) error
	SetApproval(ctx context.Context, contractID, actorID string, approved bool) (*domain.ApprovalStatus, error)
	Status(ctx context.Context, contractID, actorID string) (*domain.ApprovalStatus, error)
	Parties(ctx context.Context, contractID, actorID string) ([]domain.PartyView, error)
}

// AuditReader exposes the append-only trail to parties.
type AuditReader interface {
	Trail(ctx context.Context, contractID, actorID string) (*domain.AuditTrail, error)
	LogTranslationViewed(ctx context.Context, contractID, actorID string, language domain.TranslationLanguage) error
	ExportTrail(ctx context.Context, contractID, actorID string, w io.Writer) error
}

// ContractQueries is the inbound read/maintenance model for contracts.
type ContractQueries interface {
	Get(ctx context.Context, contractID, actorID string) (*domain.ContractDetail, error)
	List(ctx context.Context, actorID string, filter domain.ListFilter) (*domain.ContractList, error)
	Delete(ctx context.Context, contractID, actorID string) error
	UpdateDetails(ctx context.Context, contractID, actorID string, update domain.DetailsUpdate) (*domain.Contract, error)
	Expiring(ctx context.Context, actorID string, days int) ([]domain.ContractListItem, error)
}

// ContractChat answers a party's questions about a contract.
type ContractChat interface {
	Ask(ctx context.Context, contractID, actorID, message string, history []domain.ChatMessage) (*domain.ChatReply, error)
}

// AttestationVerifier checks a finalized contract against its anchored hash.
type AttestationVerifier interface {
	Verify(ctx context.Context, contractID, actorID string) (*domain.Verification, error)
}

// AttestationReconciler retries ledger submissions that did not produce a receipt.
type AttestationReconciler interface {
	ReconcileContract(ctx context.Context, contractID string) (bool, error)
	ReconcilePending(ctx context.Context, limit int) (int, error)
}
