package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/resilience"
)

type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Analyzer implements the four analysis calls against an Ollama generate
// endpoint with schema-constrained JSON output.
type Analyzer struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
	schemas    map[domain.Stage]stageSchema
}

func New(cfg Config, executor *resilience.Executor) (*Analyzer, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Analyzer{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
		schemas:    schemas,
	}, nil
}

type simplifyReply struct {
	Clauses []struct {
		ClauseID       int    `json:"clause_id"`
		OriginalText   string `json:"original_text"`
		SimplifiedText string `json:"simplified_text"`
	} `json:"clauses"`
}

type translationReply struct {
	ClauseID       int    `json:"clause_id"`
	TranslatedText string `json:"translated_text"`
}

type translateReply struct {
	Hindi   []translationReply `json:"hindi"`
	Bengali []translationReply `json:"bengali"`
}

type risksReply struct {
	Risks []struct {
		ClauseID       int    `json:"clause_id"`
		RiskType       string `json:"risk_type"`
		Severity       string `json:"severity"`
		Description    string `json:"description"`
		Recommendation string `json:"recommendation"`
	} `json:"risks"`
	Summary string `json:"summary"`
}

type metadataReply struct {
	Category   *string `json:"category"`
	ExpiryDate *string `json:"expiry_date"`
}

func (a *Analyzer) Simplify(ctx context.Context, text string) (*domain.SimplifyResult, error) {
	var reply simplifyReply
	if err := a.generateStructured(ctx, domain.StageSimplify, buildSimplifyPrompt(text), &reply); err != nil {
		return nil, err
	}

	clauses := make([]domain.Clause, 0, len(reply.Clauses))
	for _, item := range reply.Clauses {
		clauses = append(clauses, domain.Clause{
			Index:          item.ClauseID,
			OriginalText:   item.OriginalText,
			SimplifiedText: item.SimplifiedText,
		})
	}
	return &domain.SimplifyResult{Clauses: clauses}, nil
}

func (a *Analyzer) Translate(ctx context.Context, clauses []domain.Clause) (*domain.TranslateResult, error) {
	var reply translateReply
	if err := a.generateStructured(ctx, domain.StageTranslate, buildTranslatePrompt(clauses), &reply); err != nil {
		return nil, err
	}

	out := domain.EmptyTranslations()
	convert := func(lang domain.TranslationLanguage, items []translationReply) {
		for _, item := range items {
			out[lang] = append(out[lang], domain.Translation{
				ClauseIndex: item.ClauseID,
				Language:    lang,
				Text:        item.TranslatedText,
			})
		}
	}
	convert(domain.TranslationHindi, reply.Hindi)
	convert(domain.TranslationBengali, reply.Bengali)
	return &domain.TranslateResult{Translations: out}, nil
}

func (a *Analyzer) DetectRisks(ctx context.Context, clauses []domain.Clause) (*domain.RiskResult, error) {
	var reply risksReply
	if err := a.generateStructured(ctx, domain.StageRisks, buildRisksPrompt(clauses), &reply); err != nil {
		return nil, err
	}

	risks := make([]domain.Risk, 0, len(reply.Risks))
	for _, item := range reply.Risks {
		severity := domain.Severity(strings.ToLower(strings.TrimSpace(item.Severity)))
		if !severity.Valid() {
			return nil, domain.NewCapabilityError(domain.StageRisks,
				fmt.Errorf("risks response has unknown severity %q for clause %d", item.Severity, item.ClauseID))
		}
		risks = append(risks, domain.Risk{
			ClauseIndex:    item.ClauseID,
			Type:           item.RiskType,
			Severity:       severity,
			Description:    item.Description,
			Recommendation: item.Recommendation,
		})
	}
	return &domain.RiskResult{Risks: risks, Summary: reply.Summary}, nil
}

func (a *Analyzer) ExtractMetadata(ctx context.Context, text string) (*domain.MetadataResult, error) {
	var reply metadataReply
	if err := a.generateStructured(ctx, domain.StageMetadata, buildMetadataPrompt(text), &reply); err != nil {
		return nil, err
	}

	out := &domain.MetadataResult{}
	if reply.Category != nil {
		out.Category = *reply.Category
	}
	if reply.ExpiryDate != nil {
		out.ExpiryDate = *reply.ExpiryDate
	}
	return out, nil
}

// Chat answers a free-form question about an analysed contract. The reply is
// plain text, not schema-constrained.
func (a *Analyzer) Chat(ctx context.Context, contract *domain.ContractDetail, message string, history []domain.ChatMessage) (string, error) {
	prompt := buildChatPrompt(contract, message, history)

	var raw string
	err := a.executor.Execute(ctx, "ollama_"+string(domain.StageChat), func(callCtx context.Context) error {
		var genErr error
		raw, genErr = a.generate(callCtx, domain.StageChat, prompt, nil, chatOptions)
		return genErr
	}, classifyGenerateError)
	if err != nil {
		return "", stageFailure(domain.StageChat, err)
	}
	if raw == "" {
		return "", domain.NewCapabilityError(domain.StageChat, fmt.Errorf("chat response is empty"))
	}
	return raw, nil
}

// generateStructured runs one generate call, validates the reply against the
// stage schema and decodes it into out. Any failure becomes a CapabilityError.
func (a *Analyzer) generateStructured(ctx context.Context, stage domain.Stage, prompt string, out any) error {
	schema := a.schemas[stage]

	var raw string
	err := a.executor.Execute(ctx, "ollama_"+string(stage), func(callCtx context.Context) error {
		var genErr error
		raw, genErr = a.generate(callCtx, stage, prompt, json.RawMessage(schema.raw), structuredOptions)
		return genErr
	}, classifyGenerateError)
	if err != nil {
		return stageFailure(stage, err)
	}

	payload := extractJSONObject(raw)
	document, err := decodeDocument(payload)
	if err != nil {
		return domain.NewCapabilityError(stage, fmt.Errorf("parse %s json: %w", stage, err))
	}
	if err := schema.compiled.Validate(document); err != nil {
		return domain.NewCapabilityError(stage, fmt.Errorf("%s response does not match schema: %w", stage, err))
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return domain.NewCapabilityError(stage, fmt.Errorf("decode %s json: %w", stage, err))
	}
	return nil
}

// decodeDocument keeps numbers as json.Number, which is what the schema
// validator expects for integer checks.
func decodeDocument(payload string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var document any
	if err := dec.Decode(&document); err != nil {
		return nil, err
	}
	return document, nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
