package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

type contractsFake struct {
	err error
}

func (f contractsFake) Get(_ context.Context, contractID, _ string) (*domain.ContractDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ContractDetail{
		Contract: domain.Contract{ID: contractID, Filename: "lease.pdf", Status: domain.ContractPendingReview, RiskScore: "medium"},
		Clauses:  []domain.Clause{{Index: 1}, {Index: 2}},
		Risks:    []domain.Risk{{ClauseIndex: 2, Severity: "medium"}},
	}, nil
}

func (contractsFake) List(context.Context, string, domain.ListFilter) (*domain.ContractList, error) {
	return &domain.ContractList{}, nil
}
func (contractsFake) Delete(context.Context, string, string) error { return nil }
func (contractsFake) UpdateDetails(context.Context, string, string, domain.DetailsUpdate) (*domain.Contract, error) {
	return nil, nil
}
func (contractsFake) Expiring(context.Context, string, int) ([]domain.ContractListItem, error) {
	return nil, nil
}

type approvalsFake struct{}

func (approvalsFake) AddSecondParty(context.Context, string, string, string) (*domain.PartyView, error) {
	return nil, nil
}
func (approvalsFake) RemoveSecondParty(context.Context, string, string) error { return nil }
func (approvalsFake) SetApproval(context.Context, string, string, bool) (*domain.ApprovalStatus, error) {
	return nil, nil
}
func (approvalsFake) Status(context.Context, string, string) (*domain.ApprovalStatus, error) {
	return &domain.ApprovalStatus{OverallStatus: domain.OverallAwaitingSecondParty, IsOwner: true, CanApprove: true}, nil
}
func (approvalsFake) Parties(_ context.Context, contractID, actorID string) ([]domain.PartyView, error) {
	return []domain.PartyView{{Party: domain.Party{ContractID: contractID, UserID: actorID, Role: domain.RoleFirstParty, Approval: domain.ApprovalPending}}}, nil
}

type auditFake struct{}

func (auditFake) Trail(_ context.Context, contractID, _ string) (*domain.AuditTrail, error) {
	return &domain.AuditTrail{ContractID: contractID, Events: []domain.Event{{Kind: domain.EventDocumentUploaded}}}, nil
}
func (auditFake) LogTranslationViewed(context.Context, string, string, domain.TranslationLanguage) error {
	return nil
}
func (auditFake) ExportTrail(context.Context, string, string, io.Writer) error { return nil }

type verifierFake struct{}

func (verifierFake) Verify(_ context.Context, contractID, _ string) (*domain.Verification, error) {
	return &domain.Verification{ContractID: contractID, HashMatches: true}, nil
}

type chatFake struct {
	err error
}

func (f chatFake) Ask(_ context.Context, contractID, actorID, message string, history []domain.ChatMessage) (*domain.ChatReply, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(history) != 0 {
		return nil, errors.New("unexpected history")
	}
	return &domain.ChatReply{ContractID: contractID, Response: actorID + " asked: " + message}, nil
}

func newTools(t *testing.T, contracts contractsFake) *Tools {
	t.Helper()
	tools, err := NewTools(Services{
		Contracts: contracts,
		Approvals: approvalsFake{},
		Audit:     auditFake{},
		Verifier:  verifierFake{},
		Chat:      chatFake{},
	}, "user-1")
	if err != nil {
		t.Fatalf("new tools: %v", err)
	}
	return tools
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestNewToolsRequiresActor(t *testing.T) {
	if _, err := NewTools(Services{}, "  "); err == nil {
		t.Fatalf("expected error without actor id")
	}
}

func TestContractStatusCombinesDetailAndApproval(t *testing.T) {
	tools := newTools(t, contractsFake{})

	res, err := tools.contractStatus(context.Background(), callRequest(map[string]any{"contract_id": "c-1"}))
	if err != nil {
		t.Fatalf("contract status: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	var view statusView
	if err := json.Unmarshal([]byte(resultText(t, res)), &view); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if view.ID != "c-1" || view.ClauseCount != 2 || view.RiskCount != 1 {
		t.Fatalf("unexpected status view: %+v", view)
	}
	if view.Approval == nil || view.Approval.OverallStatus != domain.OverallAwaitingSecondParty {
		t.Fatalf("unexpected approval: %+v", view.Approval)
	}
}

func TestMissingContractIDIsToolError(t *testing.T) {
	tools := newTools(t, contractsFake{})

	res, err := tools.verifyContract(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing contract_id")
	}
}

func TestForbiddenIsReportedAsToolError(t *testing.T) {
	tools := newTools(t, contractsFake{err: domain.NewError(domain.ErrForbidden, "get contract", "not a party")})

	res, err := tools.contractStatus(context.Background(), callRequest(map[string]any{"contract_id": "c-1"}))
	if err != nil {
		t.Fatalf("expected tool result, got error %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error result")
	}
}

func TestUntypedFailureIsProtocolError(t *testing.T) {
	tools := newTools(t, contractsFake{err: errors.New("db gone")})

	if _, err := tools.contractStatus(context.Background(), callRequest(map[string]any{"contract_id": "c-1"})); err == nil {
		t.Fatalf("expected protocol error")
	}
}

func TestAuditTrailAndPartiesReturnJSON(t *testing.T) {
	tools := newTools(t, contractsFake{})

	res, err := tools.auditTrail(context.Background(), callRequest(map[string]any{"contract_id": "c-1"}))
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	var trail domain.AuditTrail
	if err := json.Unmarshal([]byte(resultText(t, res)), &trail); err != nil {
		t.Fatalf("decode trail: %v", err)
	}
	if trail.ContractID != "c-1" || len(trail.Events) != 1 {
		t.Fatalf("unexpected trail: %+v", trail)
	}

	res, err = tools.contractParties(context.Background(), callRequest(map[string]any{"contract_id": "c-1"}))
	if err != nil {
		t.Fatalf("parties: %v", err)
	}
	var parties struct {
		Parties []domain.PartyView `json:"parties"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &parties); err != nil {
		t.Fatalf("decode parties: %v", err)
	}
	if len(parties.Parties) != 1 || parties.Parties[0].UserID != "user-1" {
		t.Fatalf("unexpected parties: %+v", parties.Parties)
	}
}

func TestServerRegistersTools(t *testing.T) {
	tools := newTools(t, contractsFake{})
	if srv := tools.Server("contracts-test", "0.0.0"); srv == nil {
		t.Fatalf("expected server")
	}
}

func TestAskContractReturnsPlainAnswer(t *testing.T) {
	tools := newTools(t, contractsFake{})

	res, err := tools.askContract(context.Background(), callRequest(map[string]any{"contract_id": "c-1", "question": "Is rent due monthly?"}))
	if err != nil {
		t.Fatalf("ask contract: %v", err)
	}
	if res.IsError || resultText(t, res) != "user-1 asked: Is rent due monthly?" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = tools.askContract(context.Background(), callRequest(map[string]any{"contract_id": "c-1"}))
	if err != nil || !res.IsError {
		t.Fatalf("expected tool error for missing question, got %+v, %v", res, err)
	}
}

func TestAskContractTemporaryFailureIsToolError(t *testing.T) {
	tools := newTools(t, contractsFake{})
	tools.services.Chat = chatFake{err: domain.NewError(domain.ErrTemporary, "contract chat", "model unavailable")}

	res, err := tools.askContract(context.Background(), callRequest(map[string]any{"contract_id": "c-1", "question": "hi"}))
	if err != nil {
		t.Fatalf("expected tool result, got error %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error result")
	}
}
