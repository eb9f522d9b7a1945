package domain

// AttestationState tracks a finalized contract's ledger submission. Only
// pending contracts are picked up by the reconcile sweep.
type AttestationState string

const (
	AttestationPending         AttestationState = "pending"
	AttestationRecorded        AttestationState = "recorded"
	AttestationAlreadyRecorded AttestationState = "already_recorded"
	AttestationAbandoned       AttestationState = "abandoned"
)

// Attestation is the outcome of hashing and submitting a finalized contract.
type Attestation struct {
	Hash      string
	ReceiptID *string
	State     AttestationState
}

type Verification struct {
	ContractID     string  `json:"contract_id"`
	StoredHash     *string `json:"stored_hash,omitempty"`
	ComputedHash   string  `json:"computed_hash"`
	HashMatches    bool    `json:"hash_matches"`
	LedgerChecked  bool    `json:"ledger_checked"`
	LedgerVerified bool    `json:"ledger_verified"`
	ReceiptID      *string `json:"receipt_id,omitempty"`
	ExplorerURL    string  `json:"explorer_url,omitempty"`
	LedgerError    string  `json:"ledger_error,omitempty"`
}
