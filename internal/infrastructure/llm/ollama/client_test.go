package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/infrastructure/resilience"
)

func newTestAnalyzer(t *testing.T, handler http.HandlerFunc) *Analyzer {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	exec := resilience.NewExecutor(resilience.Config{
		Retry: resilience.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, Multiplier: 1},
	})
	analyzer, err := New(Config{BaseURL: srv.URL + "/", Model: "llama3.1"}, exec)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return analyzer
}

func writeGenerate(t *testing.T, w http.ResponseWriter, payload string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"response": payload, "done": true}); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestSimplifySendsSchemaFormatAndParsesClauses(t *testing.T) {
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["model"] != "llama3.1" {
			t.Fatalf("unexpected model %v", req["model"])
		}
		format, ok := req["format"].(map[string]any)
		if !ok || format["type"] != "object" {
			t.Fatalf("expected schema object as format, got %v", req["format"])
		}
		if !strings.Contains(req["prompt"].(string), "Tenant shall pay") {
			t.Fatalf("prompt does not carry contract text")
		}
		writeGenerate(t, w, "```json\n"+`{"clauses":[{"clause_id":1,"original_text":"Tenant shall pay","simplified_text":"You pay"}]}`+"\n```")
	})

	result, err := analyzer.Simplify(context.Background(), "Tenant shall pay rent monthly.")
	if err != nil {
		t.Fatalf("Simplify() error = %v", err)
	}
	if len(result.Clauses) != 1 || result.Clauses[0].Index != 1 || result.Clauses[0].SimplifiedText != "You pay" {
		t.Fatalf("unexpected clauses %+v", result.Clauses)
	}
}

func TestRateLimitedReplySurfacesUpstreamMessage(t *testing.T) {
	var calls atomic.Int32
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	})

	_, err := analyzer.Simplify(context.Background(), "text")
	var capErr *domain.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapabilityError, got %T %v", err, err)
	}
	if capErr.Message != "rate limited" || capErr.Stage != domain.StageSimplify {
		t.Fatalf("unexpected capability error %+v", capErr)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestBadRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	})

	_, err := analyzer.Translate(context.Background(), []domain.Clause{{Index: 1, SimplifiedText: "You pay"}})
	var capErr *domain.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapabilityError, got %v", err)
	}
	if capErr.Message != "model not found" {
		t.Fatalf("unexpected message %q", capErr.Message)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("404 must not be temporary")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestSchemaMismatchBecomesCapabilityError(t *testing.T) {
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeGenerate(t, w, `{"clauses":[{"clause_id":"one","original_text":"a","simplified_text":"b"}]}`)
	})

	_, err := analyzer.Simplify(context.Background(), "text")
	var capErr *domain.CapabilityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapabilityError, got %v", err)
	}
	if !strings.Contains(capErr.Message, "does not match schema") {
		t.Fatalf("unexpected message %q", capErr.Message)
	}
}

func TestDetectRisksNormalizesSeverity(t *testing.T) {
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeGenerate(t, w, `{"risks":[{"clause_id":2,"risk_type":"unfair","severity":" High ","description":"d","recommendation":"r"}],"summary":"one risk"}`)
	})

	result, err := analyzer.DetectRisks(context.Background(), []domain.Clause{{Index: 2}})
	if err != nil {
		t.Fatalf("DetectRisks() error = %v", err)
	}
	if len(result.Risks) != 1 || result.Risks[0].Severity != domain.SeverityHigh {
		t.Fatalf("unexpected risks %+v", result.Risks)
	}
	if result.Summary != "one risk" {
		t.Fatalf("unexpected summary %q", result.Summary)
	}
}

func TestExtractMetadataAcceptsNullExpiry(t *testing.T) {
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeGenerate(t, w, `{"category":"rental","expiry_date":null}`)
	})

	result, err := analyzer.ExtractMetadata(context.Background(), "lease")
	if err != nil {
		t.Fatalf("ExtractMetadata() error = %v", err)
	}
	if result.Category != "rental" || result.ExpiryDate != "" {
		t.Fatalf("unexpected metadata %+v", result)
	}
}

func TestDetectRisksRejectsUnknownSeverity(t *testing.T) {
	for _, severity := range []string{"critical", ""} {
		analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, _ *http.Request) {
			writeGenerate(t, w, `{"risks":[{"clause_id":2,"risk_type":"penalty","severity":"`+severity+`","description":"d","recommendation":"r"}],"summary":"s"}`)
		})

		result, err := analyzer.DetectRisks(context.Background(), []domain.Clause{{Index: 2}})
		var capErr *domain.CapabilityError
		if !errors.As(err, &capErr) || capErr.Stage != domain.StageRisks {
			t.Fatalf("severity %q: expected risks CapabilityError, got %v (result %+v)", severity, err, result)
		}
		if domain.IsKind(err, domain.ErrTemporary) {
			t.Fatalf("severity %q: a bad reply must not be temporary", severity)
		}
	}
}

func TestSchemaValidationAcceptsIntegerClauseIDs(t *testing.T) {
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeGenerate(t, w, `{"hindi":[{"clause_id":3,"translated_text":"आप भुगतान करें"}],"bengali":[]}`)
	})

	result, err := analyzer.Translate(context.Background(), []domain.Clause{{Index: 3, SimplifiedText: "You pay"}})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	hindi := result.Translations[domain.TranslationHindi]
	if len(hindi) != 1 || hindi[0].ClauseIndex != 3 {
		t.Fatalf("unexpected translations %+v", result.Translations)
	}
}

func chatDetail() *domain.ContractDetail {
	return &domain.ContractDetail{
		Contract: domain.Contract{ID: "c-1", RiskSummary: "Deposit terms favour the landlord."},
		Clauses: []domain.Clause{
			{Index: 1, OriginalText: strings.Repeat("x", 600), SimplifiedText: "Long clause"},
			{Index: 2, OriginalText: "Deposit is non-refundable.", SimplifiedText: "You lose the deposit."},
		},
		Risks: []domain.Risk{{
			ClauseIndex:    2,
			Type:           "unfair_terms",
			Severity:       domain.SeverityHigh,
			Description:    "Deposit is kept in all cases",
			Recommendation: "Ask for a refund schedule",
		}},
	}
}

func TestChatSendsUnconstrainedPromptWithContractContext(t *testing.T) {
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if _, ok := req["format"]; ok {
			t.Fatalf("chat must not send a format, got %v", req["format"])
		}
		options, _ := req["options"].(map[string]any)
		if options["temperature"] != 0.7 || options["num_predict"] != float64(1024) {
			t.Fatalf("unexpected options %v", options)
		}
		prompt, _ := req["prompt"].(string)
		for _, want := range []string{
			"Clause 2:\n- Original: Deposit is non-refundable.",
			"- Clause 2 (HIGH - unfair_terms):",
			"Recommendation: Ask for a refund schedule",
			"OVERALL RISK SUMMARY:\nDeposit terms favour the landlord.",
			"User: Is there a deposit?\nAssistant: Yes, in clause 2.",
			"USER'S CURRENT QUESTION:\nCan I get it back?",
			strings.Repeat("x", 500) + "...",
		} {
			if !strings.Contains(prompt, want) {
				t.Fatalf("prompt missing %q:\n%s", want, prompt)
			}
		}
		if strings.Contains(prompt, strings.Repeat("x", 501)) {
			t.Fatalf("expected original clause text to be cut at 500 characters")
		}
		writeGenerate(t, w, "  No, clause 2 makes the deposit non-refundable.  ")
	})

	history := []domain.ChatMessage{
		{Role: domain.ChatRoleUser, Content: "Is there a deposit?"},
		{Role: domain.ChatRoleAssistant, Content: "Yes, in clause 2."},
	}
	answer, err := analyzer.Chat(context.Background(), chatDetail(), "Can I get it back?", history)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer != "No, clause 2 makes the deposit non-refundable." {
		t.Fatalf("unexpected answer %q", answer)
	}
}

func TestChatWithoutHistoryAndEmptyReply(t *testing.T) {
	analyzer := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !strings.Contains(req["prompt"].(string), "No previous conversation.") {
			t.Fatalf("expected empty history marker")
		}
		writeGenerate(t, w, "   ")
	})

	_, err := analyzer.Chat(context.Background(), chatDetail(), "hi", nil)
	var capErr *domain.CapabilityError
	if !errors.As(err, &capErr) || capErr.Stage != domain.StageChat {
		t.Fatalf("expected chat capability error, got %v", err)
	}
}
