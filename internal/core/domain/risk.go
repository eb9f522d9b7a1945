package domain

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

type RiskScore string

const (
	RiskHigh   RiskScore = "high"
	RiskMedium RiskScore = "medium"
	RiskLow    RiskScore = "low"
	RiskSafe   RiskScore = "safe"
)

func (s Severity) Valid() bool {
	return s == SeverityHigh || s == SeverityMedium || s == SeverityLow
}

func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// AggregateRiskScore returns the highest severity found in risks, or safe when
// there is none.
func AggregateRiskScore(risks []Risk) RiskScore {
	best := 0
	for _, risk := range risks {
		if r := risk.Severity.rank(); r > best {
			best = r
		}
	}
	switch best {
	case 3:
		return RiskHigh
	case 2:
		return RiskMedium
	case 1:
		return RiskLow
	default:
		return RiskSafe
	}
}

// ClassifyLanguage marks the source as complex English whenever any
// translation was produced for either target language.
func ClassifyLanguage(translations map[TranslationLanguage][]Translation) DetectedLanguage {
	for _, lang := range TranslationLanguages {
		if len(translations[lang]) > 0 {
			return LanguageEnglishComplex
		}
	}
	return LanguageEnglish
}

const expiryLayout = "2006-01-02"

// ParseExpiry parses a YYYY-MM-DD date. Anything else yields nil.
func ParseExpiry(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(expiryLayout, raw)
	if err != nil {
		return nil
	}
	return &t
}
