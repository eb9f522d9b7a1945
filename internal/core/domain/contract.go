package domain

import "time"

type ContractStatus string

const (
	ContractPendingReview ContractStatus = "pending_review"
	ContractApproved      ContractStatus = "approved"
	ContractRejected      ContractStatus = "rejected"
)

type DetectedLanguage string

const (
	LanguageEnglish        DetectedLanguage = "english"
	LanguageHindi          DetectedLanguage = "hindi"
	LanguageBengali        DetectedLanguage = "bengali"
	LanguageEnglishComplex DetectedLanguage = "english_complex"
)

type TranslationLanguage string

const (
	TranslationHindi   TranslationLanguage = "hindi"
	TranslationBengali TranslationLanguage = "bengali"
)

// TranslationLanguages lists the target languages in their canonical order.
var TranslationLanguages = []TranslationLanguage{TranslationHindi, TranslationBengali}

func (l TranslationLanguage) Valid() bool {
	return l == TranslationHindi || l == TranslationBengali
}

// Contract is the aggregate root of an uploaded document and its review lifecycle.
type Contract struct {
	ID               string           `json:"id"`
	OwnerID          string           `json:"owner_id"`
	Filename         string           `json:"filename"`
	Document         []byte           `json:"-"`
	DetectedLanguage DetectedLanguage `json:"detected_language"`
	RiskScore        RiskScore        `json:"risk_score"`
	Status           ContractStatus   `json:"status"`
	RiskSummary      string           `json:"risk_summary,omitempty"`
	Category         *Category        `json:"category,omitempty"`
	ExpiresAt        *time.Time       `json:"expiry_date,omitempty"`
	ContentHash      *string          `json:"blockchain_hash,omitempty"`
	ReceiptID        *string          `json:"blockchain_tx_hash,omitempty"`
	FinalizedAt      *time.Time       `json:"finalized_at,omitempty"`
	AttestationState AttestationState `json:"attestation_state,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// Clause is one source clause as split by the simplify stage. Index is the
// stage-assigned clause_id and is the join key for translations and risks.
type Clause struct {
	Index          int    `json:"clause_id"`
	OriginalText   string `json:"original_text"`
	SimplifiedText string `json:"simplified_text"`
}

type Translation struct {
	ClauseIndex int                 `json:"clause_id"`
	Language    TranslationLanguage `json:"-"`
	Text        string              `json:"translated_text"`
}

type Risk struct {
	ClauseIndex    int      `json:"clause_id"`
	Type           string   `json:"risk_type"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
}

// ContractDetail is a contract with its analysis children loaded.
type ContractDetail struct {
	Contract     Contract
	Clauses      []Clause
	Translations map[TranslationLanguage][]Translation
	Risks        []Risk
}

// ContractListItem is the per-actor projection used by list views.
type ContractListItem struct {
	Contract
	IsOwner                  bool           `json:"is_owner"`
	MyApprovalStatus         *ApprovalState `json:"my_approval_status,omitempty"`
	OtherPartyApprovalStatus *ApprovalState `json:"other_party_approval_status,omitempty"`
	HasSecondParty           bool           `json:"has_second_party"`
}

type ContractList struct {
	Contracts []ContractListItem `json:"contracts"`
	Total     int                `json:"total"`
	Limit     int                `json:"limit"`
	Offset    int                `json:"offset"`
}

type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// DetailsUpdate carries owner-editable fields; nil means unchanged.
type DetailsUpdate struct {
	Category  *string
	ExpiresAt *time.Time
}
