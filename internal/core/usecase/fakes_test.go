package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, string, []byte) (string, error) {
	return f.text, f.err
}

type capabilityFake struct {
	simplify  func(ctx context.Context, text string) (*domain.SimplifyResult, error)
	translate func(ctx context.Context, clauses []domain.Clause) (*domain.TranslateResult, error)
	risks     func(ctx context.Context, clauses []domain.Clause) (*domain.RiskResult, error)
	metadata  func(ctx context.Context, text string) (*domain.MetadataResult, error)

	mu    sync.Mutex
	calls map[domain.Stage]int
}

func (f *capabilityFake) record(stage domain.Stage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[domain.Stage]int)
	}
	f.calls[stage]++
}

func (f *capabilityFake) callCount(stage domain.Stage) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[stage]
}

func (f *capabilityFake) Simplify(ctx context.Context, text string) (*domain.SimplifyResult, error) {
	f.record(domain.StageSimplify)
	if f.simplify != nil {
		return f.simplify(ctx, text)
	}
	return &domain.SimplifyResult{Clauses: threeClauses()}, nil
}

func (f *capabilityFake) Translate(ctx context.Context, clauses []domain.Clause) (*domain.TranslateResult, error) {
	f.record(domain.StageTranslate)
	if f.translate != nil {
		return f.translate(ctx, clauses)
	}
	return &domain.TranslateResult{Translations: domain.EmptyTranslations()}, nil
}

func (f *capabilityFake) DetectRisks(ctx context.Context, clauses []domain.Clause) (*domain.RiskResult, error) {
	f.record(domain.StageRisks)
	if f.risks != nil {
		return f.risks(ctx, clauses)
	}
	return &domain.RiskResult{Risks: []domain.Risk{}}, nil
}

func (f *capabilityFake) ExtractMetadata(ctx context.Context, text string) (*domain.MetadataResult, error) {
	f.record(domain.StageMetadata)
	if f.metadata != nil {
		return f.metadata(ctx, text)
	}
	return &domain.MetadataResult{}, nil
}

func threeClauses() []domain.Clause {
	return []domain.Clause{
		{Index: 1, OriginalText: "The tenant shall pay rent.", SimplifiedText: "You pay rent."},
		{Index: 2, OriginalText: "The landlord may terminate at will.", SimplifiedText: "The landlord can end this anytime."},
		{Index: 3, OriginalText: "Governing law is Delhi.", SimplifiedText: "Delhi law applies."},
	}
}

type ledgerFake struct {
	mu       sync.Mutex
	receipt  string
	err      error
	verified bool
	submits  int
	verifies int
	deadline time.Time
}

func (f *ledgerFake) Submit(ctx context.Context, _, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.deadline, _ = ctx.Deadline()
	return f.receipt, f.err
}

func (f *ledgerFake) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *ledgerFake) Verify(context.Context, string, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies++
	return f.verified, f.err
}

type publisherFake struct {
	mu      sync.Mutex
	notices []domain.LifecycleNotice
	pending []string
	err     error
}

func (f *publisherFake) PublishLifecycle(_ context.Context, notice domain.LifecycleNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice)
	return f.err
}

func (f *publisherFake) PublishAttestationPending(_ context.Context, contractID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, contractID)
	return f.err
}

func (f *publisherFake) kinds() []domain.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EventKind, 0, len(f.notices))
	for _, n := range f.notices {
		out = append(out, n.Kind)
	}
	return out
}

type archiveFake struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (f *archiveFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[key] = raw
	return nil
}

func (f *archiveFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.saved[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type exporterFake struct {
	trail *domain.AuditTrail
}

func (f *exporterFake) WriteTrail(w io.Writer, trail *domain.AuditTrail) error {
	f.trail = trail
	_, err := io.WriteString(w, "xlsx")
	return err
}

func countKind(events []domain.Event, kind domain.EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
