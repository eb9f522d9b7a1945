package domain

import "time"

// Stage names one step of the analysis pipeline.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageSimplify  Stage = "simplify"
	StageTranslate Stage = "translate"
	StageRisks     Stage = "detect_risks"
	StageMetadata  Stage = "extract_metadata"

	// StageChat is the contract Q&A call; it is not part of the pipeline.
	StageChat Stage = "chat"
)

// CapabilityError is any failure of an analysis call. Callers treat all of
// them alike; Message is the raw text surfaced to clients.
type CapabilityError struct {
	Stage   Stage
	Message string
	Err     error
}

func (e *CapabilityError) Error() string {
	if e == nil {
		return "capability error"
	}
	return e.Message
}

func (e *CapabilityError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCapabilityError wraps err for stage, keeping its message verbatim.
func NewCapabilityError(stage Stage, err error) *CapabilityError {
	msg := "unknown capability failure"
	if err != nil {
		msg = err.Error()
	}
	return &CapabilityError{Stage: stage, Message: msg, Err: err}
}

type SimplifyResult struct {
	Clauses []Clause
}

type TranslateResult struct {
	Translations map[TranslationLanguage][]Translation
}

type RiskResult struct {
	Risks   []Risk
	Summary string
}

type MetadataResult struct {
	Category   string
	ExpiryDate string
}

type StageOutcome struct {
	Stage Stage  `json:"stage"`
	OK    bool   `json:"success"`
	Error string `json:"error,omitempty"`
}

// PipelineResult is the full outcome of one upload. On failure only Success,
// FailedStage, Error and the outcomes of stages that ran are populated.
type PipelineResult struct {
	Success          bool                                  `json:"success"`
	ContractID       string                                `json:"contract_id"`
	Clauses          []Clause                              `json:"clauses"`
	Translations     map[TranslationLanguage][]Translation `json:"translations"`
	Risks            []Risk                                `json:"risks"`
	RiskSummary      string                                `json:"risk_summary"`
	RiskScore        RiskScore                             `json:"risk_score,omitempty"`
	DetectedLanguage DetectedLanguage                      `json:"detected_language,omitempty"`
	Category         *Category                             `json:"category,omitempty"`
	ExpiresAt        *time.Time                            `json:"expiry_date,omitempty"`
	Stages           []StageOutcome                        `json:"stages"`
	FailedStage      Stage                                 `json:"failed_stage,omitempty"`
	Error            string                                `json:"error,omitempty"`
}

// EmptyTranslations returns a map with an empty slice for each target language.
func EmptyTranslations() map[TranslationLanguage][]Translation {
	out := make(map[TranslationLanguage][]Translation, len(TranslationLanguages))
	for _, lang := range TranslationLanguages {
		out[lang] = []Translation{}
	}
	return out
}

// DetailResult renders a stored contract in the same shape as an upload result.
func DetailResult(detail *ContractDetail) *PipelineResult {
	translations := EmptyTranslations()
	for lang, items := range detail.Translations {
		translations[lang] = append(translations[lang], items...)
	}
	clauses := detail.Clauses
	if clauses == nil {
		clauses = []Clause{}
	}
	risks := detail.Risks
	if risks == nil {
		risks = []Risk{}
	}
	return &PipelineResult{
		Success:          true,
		ContractID:       detail.Contract.ID,
		Clauses:          clauses,
		Translations:     translations,
		Risks:            risks,
		RiskSummary:      detail.Contract.RiskSummary,
		RiskScore:        detail.Contract.RiskScore,
		DetectedLanguage: detail.Contract.DetectedLanguage,
		Category:         detail.Contract.Category,
		ExpiresAt:        detail.Contract.ExpiresAt,
		Stages:           []StageOutcome{},
	}
}
