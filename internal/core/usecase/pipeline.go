package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

// metadataTextBudget bounds the text sent to the metadata stage.
const metadataTextBudget = 15000

// Pipeline runs the analysis stages over an uploaded document and persists
// the joined result as a new contract.
type Pipeline struct {
	extractor  ports.TextExtractor
	capability ports.AnalysisCapability
	store      ports.ContractStore
	audit      *AuditRecorder
	publisher  ports.EventPublisher
	now        func() time.Time
}

func NewPipeline(
	extractor ports.TextExtractor,
	capability ports.AnalysisCapability,
	store ports.ContractStore,
	audit *AuditRecorder,
	publisher ports.EventPublisher,
) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		capability: capability,
		store:      store,
		audit:      audit,
		publisher:  publisher,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type stageResults struct {
	translate *domain.TranslateResult
	risks     *domain.RiskResult
	metadata  *domain.MetadataResult

	outcomes [3]domain.StageOutcome
}

// Run never reports stage failures through its error: those are carried in
// the result. The error is set for invalid input and persistence failures.
func (p *Pipeline) Run(ctx context.Context, ownerID, filename string, document []byte) (*domain.PipelineResult, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.NewError(domain.ErrUnauthorized, "run pipeline", "owner is required")
	}
	filename = strings.TrimSpace(filename)
	if filename == "" || len(document) == 0 {
		return nil, domain.NewError(domain.ErrInvalidInput, "run pipeline", "filename and document are required")
	}

	result := &domain.PipelineResult{
		Clauses:      []domain.Clause{},
		Translations: domain.EmptyTranslations(),
		Risks:        []domain.Risk{},
		Stages:       []domain.StageOutcome{},
	}

	text, err := p.extract(ctx, filename, document)
	if err != nil {
		return failPipeline(result, domain.StageExtract, err), nil
	}

	simplified, err := p.capability.Simplify(ctx, text)
	if err == nil && simplified == nil {
		err = domain.NewCapabilityError(domain.StageSimplify, errors.New("empty simplify response"))
	}
	if err != nil {
		return failPipeline(result, domain.StageSimplify, err), nil
	}
	result.Stages = append(result.Stages, domain.StageOutcome{Stage: domain.StageSimplify, OK: true})

	clauses := uniqueClauses(simplified.Clauses)
	stages := p.fanOut(ctx, clauses, text)
	result.Stages = append(result.Stages, stages.outcomes[:]...)

	contract := p.join(result, ownerID, filename, document, clauses, stages)

	if err := p.persist(ctx, contract, result); err != nil {
		return nil, err
	}

	publishNotice(ctx, p.publisher, domain.LifecycleNotice{
		ContractID: contract.ID,
		Kind:       domain.EventAnalysisCompleted,
		OccurredAt: p.now(),
	})
	return result, nil
}

func (p *Pipeline) extract(ctx context.Context, filename string, document []byte) (string, error) {
	text, err := p.extractor.Extract(ctx, filename, document)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrNoExtractableText, "extract text", errors.New("document contains no text"))
	}
	return text, nil
}

// fanOut runs translation, risk detection and metadata extraction
// concurrently. Every goroutine returns nil so that one failure never
// cancels its siblings; Wait is the join barrier.
func (p *Pipeline) fanOut(ctx context.Context, clauses []domain.Clause, text string) *stageResults {
	out := &stageResults{}
	var g errgroup.Group

	g.Go(func() error {
		res, err := p.capability.Translate(ctx, clauses)
		out.translate = res
		out.outcomes[0] = stageOutcome(domain.StageTranslate, err)
		return nil
	})
	g.Go(func() error {
		res, err := p.capability.DetectRisks(ctx, clauses)
		out.risks = res
		out.outcomes[1] = stageOutcome(domain.StageRisks, err)
		return nil
	})
	g.Go(func() error {
		res, err := p.capability.ExtractMetadata(ctx, truncateRunes(text, metadataTextBudget))
		out.metadata = res
		out.outcomes[2] = stageOutcome(domain.StageMetadata, err)
		return nil
	})

	_ = g.Wait()
	return out
}

// join merges the stage outputs on clause index and derives the computed
// contract fields. Entries that reference an unknown clause are dropped.
func (p *Pipeline) join(
	result *domain.PipelineResult,
	ownerID, filename string,
	document []byte,
	clauses []domain.Clause,
	stages *stageResults,
) *domain.Contract {
	known := make(map[int]struct{}, len(clauses))
	for _, clause := range clauses {
		known[clause.Index] = struct{}{}
	}

	translations := domain.EmptyTranslations()
	if stages.outcomes[0].OK && stages.translate != nil {
		for _, lang := range domain.TranslationLanguages {
			for _, tr := range stages.translate.Translations[lang] {
				if _, ok := known[tr.ClauseIndex]; !ok {
					slog.Debug("pipeline_translation_dropped", "clause_id", tr.ClauseIndex, "language", lang)
					continue
				}
				tr.Language = lang
				translations[lang] = append(translations[lang], tr)
			}
		}
	}

	risks := []domain.Risk{}
	summary := ""
	if stages.outcomes[1].OK && stages.risks != nil {
		summary = stages.risks.Summary
		for _, risk := range stages.risks.Risks {
			if _, ok := known[risk.ClauseIndex]; !ok {
				slog.Debug("pipeline_risk_dropped", "clause_id", risk.ClauseIndex)
				continue
			}
			risks = append(risks, risk)
		}
	}

	var category *domain.Category
	var expiresAt *time.Time
	if stages.outcomes[2].OK && stages.metadata != nil {
		normalized := domain.NormalizeCategory(stages.metadata.Category)
		category = &normalized
		expiresAt = domain.ParseExpiry(stages.metadata.ExpiryDate)
	}

	now := p.now()
	contract := &domain.Contract{
		ID:               uuid.NewString(),
		OwnerID:          ownerID,
		Filename:         filename,
		Document:         document,
		DetectedLanguage: domain.ClassifyLanguage(translations),
		RiskScore:        domain.AggregateRiskScore(risks),
		Status:           domain.ContractPendingReview,
		RiskSummary:      summary,
		Category:         category,
		ExpiresAt:        expiresAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	result.Success = true
	result.ContractID = contract.ID
	result.Clauses = clauses
	result.Translations = translations
	result.Risks = risks
	result.RiskSummary = summary
	result.RiskScore = contract.RiskScore
	result.DetectedLanguage = contract.DetectedLanguage
	result.Category = category
	result.ExpiresAt = expiresAt
	return contract
}

func (p *Pipeline) persist(ctx context.Context, contract *domain.Contract, result *domain.PipelineResult) error {
	var flat []domain.Translation
	for _, lang := range domain.TranslationLanguages {
		flat = append(flat, result.Translations[lang]...)
	}

	return p.store.WithinTx(ctx, func(tx ports.ContractTx) error {
		if err := tx.CreateContract(ctx, contract); err != nil {
			return fmt.Errorf("create contract: %w", err)
		}
		first := &domain.Party{
			ID:         uuid.NewString(),
			ContractID: contract.ID,
			UserID:     contract.OwnerID,
			Role:       domain.RoleFirstParty,
			Approval:   domain.ApprovalPending,
			CreatedAt:  contract.CreatedAt,
		}
		if err := tx.AddParty(ctx, first); err != nil {
			return fmt.Errorf("create first party: %w", err)
		}
		if err := tx.SaveAnalysis(ctx, contract.ID, result.Clauses, flat, result.Risks); err != nil {
			return fmt.Errorf("save analysis: %w", err)
		}

		owner := contract.OwnerID
		p.audit.Log(ctx, tx, contract.ID, domain.EventDocumentUploaded,
			"Document uploaded",
			&owner,
			map[string]any{"filename": contract.Filename},
		)
		p.audit.Log(ctx, tx, contract.ID, domain.EventAnalysisCompleted,
			"AI simplification & risk scan completed",
			&owner,
			map[string]any{
				"clauses_count": len(result.Clauses),
				"risks_count":   len(result.Risks),
				"risk_score":    string(contract.RiskScore),
			},
		)
		return nil
	})
}

func failPipeline(result *domain.PipelineResult, stage domain.Stage, err error) *domain.PipelineResult {
	outcome := stageOutcome(stage, err)
	slog.Warn("pipeline_stage_failed", "stage", stage, "error", outcome.Error)

	result.Success = false
	result.FailedStage = stage
	result.Error = outcome.Error
	result.Stages = append(result.Stages, outcome)
	return result
}

func stageOutcome(stage domain.Stage, err error) domain.StageOutcome {
	if err == nil {
		return domain.StageOutcome{Stage: stage, OK: true}
	}
	message := err.Error()
	if errors.Is(err, domain.ErrNoExtractableText) {
		message = "could not extract text from document"
	}
	var capErr *domain.CapabilityError
	if errors.As(err, &capErr) {
		message = capErr.Message
	}
	if stage != domain.StageExtract && stage != domain.StageSimplify {
		slog.Warn("pipeline_stage_failed", "stage", stage, "error", message)
	}
	return domain.StageOutcome{Stage: stage, OK: false, Error: message}
}

// uniqueClauses keeps the first clause for each index, in source order.
func uniqueClauses(clauses []domain.Clause) []domain.Clause {
	seen := make(map[int]struct{}, len(clauses))
	out := make([]domain.Clause, 0, len(clauses))
	for _, clause := range clauses {
		if _, dup := seen[clause.Index]; dup {
			slog.Warn("pipeline_duplicate_clause_dropped", "clause_id", clause.Index)
			continue
		}
		seen[clause.Index] = struct{}{}
		out = append(out, clause)
	}
	return out
}

func truncateRunes(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
