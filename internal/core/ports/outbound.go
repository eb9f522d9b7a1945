package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

// TextExtractor turns an uploaded document into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// AnalysisCapability is the external text-analysis service. Every method
// reports failure as *domain.CapabilityError.
type AnalysisCapability interface {
	Simplify(ctx context.Context, text string) (*domain.SimplifyResult, error)
	Translate(ctx context.Context, clauses []domain.Clause) (*domain.TranslateResult, error)
	DetectRisks(ctx context.Context, clauses []domain.Clause) (*domain.RiskResult, error)
	ExtractMetadata(ctx context.Context, text string) (*domain.MetadataResult, error)
}

// ChatCapability answers a question about one analysed contract. Failures
// are reported as *domain.CapabilityError.
type ChatCapability interface {
	Chat(ctx context.Context, contract *domain.ContractDetail, message string, history []domain.ChatMessage) (string, error)
}

// ContractReader is shared by the store and its transactions.
type ContractReader interface {
	GetContract(ctx context.Context, id string) (*domain.Contract, error)
	ListPartyViews(ctx context.Context, contractID string) ([]domain.PartyView, error)
}

// ContractTx is a unit of work. All writes become visible together on commit.
type ContractTx interface {
	ContractReader

	// LockContract loads the contract and holds a row lock until the
	// transaction ends.
	LockContract(ctx context.Context, id string) (*domain.Contract, error)
	CreateContract(ctx context.Context, contract *domain.Contract) error
	SaveAnalysis(ctx context.Context, contractID string, clauses []domain.Clause, translations []domain.Translation, risks []domain.Risk) error
	UpdateStatus(ctx context.Context, contractID string, status domain.ContractStatus) error
	UpdateDetails(ctx context.Context, contractID string, category *domain.Category, expiresAt *time.Time) error
	RecordAttestation(ctx context.Context, contractID string, attestation domain.Attestation, finalizedAt time.Time) error
	// SetReceipt stores a late receipt and moves the attestation to recorded.
	SetReceipt(ctx context.Context, contractID, receiptID string) error
	// MarkAttestation moves the attestation to a terminal state without a receipt.
	MarkAttestation(ctx context.Context, contractID string, state domain.AttestationState) error
	// NoteAttestationAttempt records a failed submission and returns the
	// number of failed attempts so far.
	NoteAttestationAttempt(ctx context.Context, contractID string, at time.Time) (int, error)
	DeleteContract(ctx context.Context, contractID string) error

	AddParty(ctx context.Context, party *domain.Party) error
	RemoveParty(ctx context.Context, contractID string, role domain.PartyRole) error
	// DecideParty moves a pending party to approved/rejected. It reports false
	// when the party was no longer pending.
	DecideParty(ctx context.Context, contractID, userID string, state domain.ApprovalState, at time.Time) (bool, error)
	ResetApproval(ctx context.Context, contractID string, role domain.PartyRole) error

	// AppendEvent writes one audit event. A failure must leave the rest of the
	// transaction usable.
	AppendEvent(ctx context.Context, event *domain.Event) error
}

// ContractStore persists contracts, parties and the audit trail.
type ContractStore interface {
	ContractReader

	WithinTx(ctx context.Context, fn func(tx ContractTx) error) error
	GetDetail(ctx context.Context, id string) (*domain.ContractDetail, error)
	ListForUser(ctx context.Context, userID string, filter domain.ListFilter) (*domain.ContractList, error)
	ListExpiring(ctx context.Context, userID string, from, to time.Time, limit int) ([]domain.ContractListItem, error)
	ListEvents(ctx context.Context, contractID string) ([]domain.Event, error)
	// ListPendingAttestations returns finalized contracts in the pending
	// attestation state, least recently attempted first, then oldest
	// finalization first.
	ListPendingAttestations(ctx context.Context, limit int) ([]domain.Contract, error)
}

// UserDirectory resolves actors. Read-only to the core.
type UserDirectory interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

// Ledger is the external attestation registry.
type Ledger interface {
	Submit(ctx context.Context, contractID, hash string) (receiptID string, err error)
	Verify(ctx context.Context, contractID, hash string) (bool, error)
}

// EventPublisher broadcasts lifecycle notices after commit.
type EventPublisher interface {
	PublishLifecycle(ctx context.Context, notice domain.LifecycleNotice) error
	PublishAttestationPending(ctx context.Context, contractID string) error
}

// AttestationQueue delivers contracts whose ledger receipt is still missing.
type AttestationQueue interface {
	SubscribeAttestationPending(ctx context.Context, handler func(context.Context, string) error) error
}

// DocumentArchive keeps a copy of finalized documents.
type DocumentArchive interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// IdempotencyStore remembers which contract an upload key produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, scope, key string) (string, bool, error)
	Remember(ctx context.Context, scope, key, contractID string) error
}

// TrailExporter renders an audit trail into a spreadsheet.
type TrailExporter interface {
	WriteTrail(w io.Writer, trail *domain.AuditTrail) error
}
