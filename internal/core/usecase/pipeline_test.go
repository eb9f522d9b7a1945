package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/repository/memory"
)

func newTestPipeline(capability *capabilityFake, extractor *extractorFake) (*Pipeline, *memory.Store, *publisherFake) {
	store := memory.NewStore()
	store.AddUser(domain.User{ID: "u-1", Email: "alice@example.com", FullName: "Alice"})
	publisher := &publisherFake{}
	audit := NewAuditRecorder(store, &exporterFake{})
	return NewPipeline(extractor, capability, store, audit, publisher), store, publisher
}

func TestPipelineHappyPath(t *testing.T) {
	capability := &capabilityFake{
		translate: func(context.Context, []domain.Clause) (*domain.TranslateResult, error) {
			tr := domain.EmptyTranslations()
			tr[domain.TranslationHindi] = []domain.Translation{{ClauseIndex: 1, Text: "आप किराया देंगे।"}}
			return &domain.TranslateResult{Translations: tr}, nil
		},
		risks: func(context.Context, []domain.Clause) (*domain.RiskResult, error) {
			return &domain.RiskResult{
				Risks: []domain.Risk{{
					ClauseIndex:    2,
					Type:           "termination",
					Severity:       domain.SeverityHigh,
					Description:    "One-sided termination.",
					Recommendation: "Ask for a notice period.",
				}},
				Summary: "One high risk.",
			}, nil
		},
		metadata: func(context.Context, string) (*domain.MetadataResult, error) {
			return &domain.MetadataResult{Category: "Rental", ExpiryDate: "2027-01-15"}, nil
		},
	}
	pipeline, store, publisher := newTestPipeline(capability, &extractorFake{text: "contract text"})

	result, err := pipeline.Run(context.Background(), "u-1", "lease.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Success || result.ContractID == "" {
		t.Fatalf("expected success with contract id, got %+v", result)
	}
	if result.RiskScore != domain.RiskHigh {
		t.Fatalf("expected high risk score, got %s", result.RiskScore)
	}
	if result.DetectedLanguage != domain.LanguageEnglishComplex {
		t.Fatalf("expected english_complex, got %s", result.DetectedLanguage)
	}
	if result.Category == nil || *result.Category != domain.CategoryRental {
		t.Fatalf("expected rental category, got %v", result.Category)
	}
	if result.ExpiresAt == nil || result.ExpiresAt.Format("2006-01-02") != "2027-01-15" {
		t.Fatalf("unexpected expiry %v", result.ExpiresAt)
	}
	if len(result.Clauses) != 3 || len(result.Risks) != 1 || len(result.Translations[domain.TranslationHindi]) != 1 {
		t.Fatalf("unexpected joined result: %+v", result)
	}

	contract, err := store.GetContract(context.Background(), result.ContractID)
	if err != nil {
		t.Fatalf("GetContract() error = %v", err)
	}
	if contract.Status != domain.ContractPendingReview {
		t.Fatalf("expected pending_review, got %s", contract.Status)
	}

	events, _ := store.ListEvents(context.Background(), result.ContractID)
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].Kind != domain.EventDocumentUploaded || events[1].Kind != domain.EventAnalysisCompleted {
		t.Fatalf("unexpected event order: %s, %s", events[0].Kind, events[1].Kind)
	}
	if !strings.Contains(string(events[1].Metadata), `"risk_score":"high"`) {
		t.Fatalf("expected risk score in metadata, got %s", events[1].Metadata)
	}

	parties, _ := store.ListPartyViews(context.Background(), result.ContractID)
	if len(parties) != 1 || parties[0].Role != domain.RoleFirstParty || parties[0].UserID != "u-1" {
		t.Fatalf("expected first party for owner, got %+v", parties)
	}

	kinds := publisher.kinds()
	if len(kinds) != 1 || kinds[0] != domain.EventAnalysisCompleted {
		t.Fatalf("expected one analysis notice, got %v", kinds)
	}
}

func TestPipelineSimplifyFailureStopsEverything(t *testing.T) {
	capability := &capabilityFake{
		simplify: func(context.Context, string) (*domain.SimplifyResult, error) {
			return nil, domain.NewCapabilityError(domain.StageSimplify, errors.New("rate limited"))
		},
	}
	pipeline, store, _ := newTestPipeline(capability, &extractorFake{text: "contract text"})

	result, err := pipeline.Run(context.Background(), "u-1", "lease.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Success || result.Error != "rate limited" || result.FailedStage != domain.StageSimplify {
		t.Fatalf("expected simplify failure, got %+v", result)
	}
	if capability.callCount(domain.StageTranslate)+capability.callCount(domain.StageRisks)+capability.callCount(domain.StageMetadata) != 0 {
		t.Fatalf("stage two must not run after simplify failure")
	}

	list, _ := store.ListForUser(context.Background(), "u-1", domain.ListFilter{Limit: 10})
	if list.Total != 0 {
		t.Fatalf("expected nothing persisted, got %d contracts", list.Total)
	}
}

func TestPipelineExtractionFailure(t *testing.T) {
	capability := &capabilityFake{}
	pipeline, _, _ := newTestPipeline(capability, &extractorFake{text: "   "})

	result, err := pipeline.Run(context.Background(), "u-1", "scan.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Success || result.FailedStage != domain.StageExtract {
		t.Fatalf("expected extract failure, got %+v", result)
	}
	if capability.callCount(domain.StageSimplify) != 0 {
		t.Fatalf("simplify must not run without text")
	}
}

func TestPipelineStageTwoFailureIsIsolated(t *testing.T) {
	capability := &capabilityFake{
		translate: func(context.Context, []domain.Clause) (*domain.TranslateResult, error) {
			return nil, domain.NewCapabilityError(domain.StageTranslate, errors.New("upstream timeout"))
		},
		risks: func(context.Context, []domain.Clause) (*domain.RiskResult, error) {
			return &domain.RiskResult{Risks: []domain.Risk{{ClauseIndex: 3, Severity: domain.SeverityMedium}}}, nil
		},
		metadata: func(context.Context, string) (*domain.MetadataResult, error) {
			return nil, domain.NewCapabilityError(domain.StageMetadata, errors.New("bad json"))
		},
	}
	pipeline, _, _ := newTestPipeline(capability, &extractorFake{text: "contract text"})

	result, err := pipeline.Run(context.Background(), "u-1", "lease.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("stage two failures must not fail the pipeline: %+v", result)
	}
	if result.RiskScore != domain.RiskMedium || result.DetectedLanguage != domain.LanguageEnglish {
		t.Fatalf("unexpected derived fields: %s %s", result.RiskScore, result.DetectedLanguage)
	}
	if result.Category != nil {
		t.Fatalf("expected no category when metadata failed, got %v", *result.Category)
	}

	outcomes := map[domain.Stage]domain.StageOutcome{}
	for _, o := range result.Stages {
		outcomes[o.Stage] = o
	}
	if outcomes[domain.StageTranslate].OK || outcomes[domain.StageTranslate].Error != "upstream timeout" {
		t.Fatalf("unexpected translate outcome: %+v", outcomes[domain.StageTranslate])
	}
	if !outcomes[domain.StageRisks].OK || outcomes[domain.StageMetadata].OK {
		t.Fatalf("unexpected outcomes: %+v", result.Stages)
	}
}

func TestPipelineJoinDropsUnknownClauseIDs(t *testing.T) {
	capability := &capabilityFake{
		translate: func(context.Context, []domain.Clause) (*domain.TranslateResult, error) {
			tr := domain.EmptyTranslations()
			tr[domain.TranslationBengali] = []domain.Translation{{ClauseIndex: 42, Text: "orphan"}}
			return &domain.TranslateResult{Translations: tr}, nil
		},
		risks: func(context.Context, []domain.Clause) (*domain.RiskResult, error) {
			return &domain.RiskResult{Risks: []domain.Risk{
				{ClauseIndex: 42, Severity: domain.SeverityHigh},
				{ClauseIndex: 1, Severity: domain.SeverityLow},
			}}, nil
		},
	}
	pipeline, store, _ := newTestPipeline(capability, &extractorFake{text: "contract text"})

	result, err := pipeline.Run(context.Background(), "u-1", "lease.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Risks) != 1 || result.Risks[0].ClauseIndex != 1 {
		t.Fatalf("expected orphan risk dropped, got %+v", result.Risks)
	}
	if result.RiskScore != domain.RiskLow {
		t.Fatalf("risk score must follow persisted risks, got %s", result.RiskScore)
	}
	if len(result.Translations[domain.TranslationBengali]) != 0 || result.DetectedLanguage != domain.LanguageEnglish {
		t.Fatalf("expected orphan translation dropped, got %+v", result.Translations)
	}

	detail, err := store.GetDetail(context.Background(), result.ContractID)
	if err != nil {
		t.Fatalf("GetDetail() error = %v", err)
	}
	if len(detail.Risks) != 1 || len(detail.Clauses) != 3 {
		t.Fatalf("unexpected persisted detail: %+v", detail)
	}
}

func TestPipelineRunsStageTwoConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(3)
	all := make(chan struct{})
	go func() {
		started.Wait()
		close(all)
	}()
	barrier := func(stage domain.Stage) error {
		started.Done()
		select {
		case <-all:
			return nil
		case <-time.After(2 * time.Second):
			return domain.NewCapabilityError(stage, errors.New("stages did not overlap"))
		}
	}

	capability := &capabilityFake{
		translate: func(context.Context, []domain.Clause) (*domain.TranslateResult, error) {
			return &domain.TranslateResult{Translations: domain.EmptyTranslations()}, barrier(domain.StageTranslate)
		},
		risks: func(context.Context, []domain.Clause) (*domain.RiskResult, error) {
			return &domain.RiskResult{}, barrier(domain.StageRisks)
		},
		metadata: func(_ context.Context, text string) (*domain.MetadataResult, error) {
			return &domain.MetadataResult{}, barrier(domain.StageMetadata)
		},
	}
	pipeline, _, _ := newTestPipeline(capability, &extractorFake{text: "contract text"})

	result, err := pipeline.Run(context.Background(), "u-1", "lease.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, outcome := range result.Stages {
		if !outcome.OK {
			t.Fatalf("stage %s failed: %s", outcome.Stage, outcome.Error)
		}
	}
}

func TestPipelineTruncatesMetadataText(t *testing.T) {
	var got int
	capability := &capabilityFake{
		metadata: func(_ context.Context, text string) (*domain.MetadataResult, error) {
			got = len([]rune(text))
			return &domain.MetadataResult{Category: "unknown-kind"}, nil
		},
	}
	long := strings.Repeat("a", metadataTextBudget+500)
	pipeline, _, _ := newTestPipeline(capability, &extractorFake{text: long})

	result, err := pipeline.Run(context.Background(), "u-1", "lease.pdf", []byte("%PDF"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != metadataTextBudget {
		t.Fatalf("expected metadata text of %d runes, got %d", metadataTextBudget, got)
	}
	if result.Category == nil || *result.Category != domain.CategoryOther {
		t.Fatalf("expected unknown category normalized to other, got %v", result.Category)
	}
}

func TestPipelinePersistenceFailureRollsBack(t *testing.T) {
	pipeline, store, publisher := newTestPipeline(&capabilityFake{}, &extractorFake{text: "contract text"})
	store.FailOn("SaveAnalysis", errors.New("disk full"))

	_, err := pipeline.Run(context.Background(), "u-1", "lease.pdf", []byte("%PDF"))
	if err == nil || !strings.Contains(err.Error(), "save analysis") {
		t.Fatalf("expected persistence error, got %v", err)
	}
	list, _ := store.ListForUser(context.Background(), "u-1", domain.ListFilter{Limit: 10})
	if list.Total != 0 {
		t.Fatalf("expected rollback, got %d contracts", list.Total)
	}
	if len(publisher.kinds()) != 0 {
		t.Fatalf("no notice expected after rollback")
	}
}

func TestPipelineRejectsMissingInput(t *testing.T) {
	pipeline, _, _ := newTestPipeline(&capabilityFake{}, &extractorFake{text: "x"})

	if _, err := pipeline.Run(context.Background(), "u-1", "", []byte("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := pipeline.Run(context.Background(), "", "a.pdf", []byte("x")); !domain.IsKind(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
