// Package mcpadapter exposes read-only contract tools over the Model Context
// Protocol.
package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

type Services struct {
	Contracts ports.ContractQueries
	Approvals ports.ApprovalWorkflow
	Audit     ports.AuditReader
	Verifier  ports.AttestationVerifier
	// Chat is optional; ask_contract is registered only when it is set.
	Chat ports.ContractChat
}

// Tools binds every call to one actor; party checks in the use cases still
// apply.
type Tools struct {
	services Services
	actorID  string
}

func NewTools(services Services, actorID string) (*Tools, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return nil, errors.New("mcp actor id is required")
	}
	return &Tools{services: services, actorID: actorID}, nil
}

func (t *Tools) Server(name, version string) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(false))

	contractID := mcp.WithString("contract_id",
		mcp.Required(),
		mcp.Description("Contract UUID"),
	)
	s.AddTool(mcp.NewTool("contract_status",
		mcp.WithDescription("Contract summary with both parties and the overall approval status"),
		contractID,
	), t.contractStatus)
	s.AddTool(mcp.NewTool("contract_parties",
		mcp.WithDescription("Parties of a contract with their approval decisions"),
		contractID,
	), t.contractParties)
	s.AddTool(mcp.NewTool("contract_audit_trail",
		mcp.WithDescription("Append-only audit events of a contract in order"),
		contractID,
	), t.auditTrail)
	s.AddTool(mcp.NewTool("verify_contract",
		mcp.WithDescription("Recompute the content hash and check it against the attestation ledger"),
		contractID,
	), t.verifyContract)
	if t.services.Chat != nil {
		s.AddTool(mcp.NewTool("ask_contract",
			mcp.WithDescription("Ask a question about a contract, answered from its clauses, risks and summary"),
			contractID,
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description("Question about the contract"),
			),
		), t.askContract)
	}
	return s
}

type statusView struct {
	ID          string                 `json:"id"`
	Filename    string                 `json:"filename"`
	Status      domain.ContractStatus  `json:"status"`
	RiskScore   domain.RiskScore       `json:"risk_score"`
	RiskSummary string                 `json:"risk_summary,omitempty"`
	Category    *domain.Category       `json:"category,omitempty"`
	ClauseCount int                    `json:"clause_count"`
	RiskCount   int                    `json:"risk_count"`
	Approval    *domain.ApprovalStatus `json:"approval"`
}

func (t *Tools) contractStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("contract_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := t.services.Contracts.Get(ctx, id, t.actorID)
	if err != nil {
		return toolError(err)
	}
	approval, err := t.services.Approvals.Status(ctx, id, t.actorID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(statusView{
		ID:          detail.Contract.ID,
		Filename:    detail.Contract.Filename,
		Status:      detail.Contract.Status,
		RiskScore:   detail.Contract.RiskScore,
		RiskSummary: detail.Contract.RiskSummary,
		Category:    detail.Contract.Category,
		ClauseCount: len(detail.Clauses),
		RiskCount:   len(detail.Risks),
		Approval:    approval,
	})
}

func (t *Tools) contractParties(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("contract_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parties, err := t.services.Approvals.Parties(ctx, id, t.actorID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{"contract_id": id, "parties": parties})
}

func (t *Tools) auditTrail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("contract_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	trail, err := t.services.Audit.Trail(ctx, id, t.actorID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(trail)
}

func (t *Tools) verifyContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("contract_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	verification, err := t.services.Verifier.Verify(ctx, id, t.actorID)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(verification)
}

func (t *Tools) askContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("contract_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	reply, err := t.services.Chat.Ask(ctx, id, t.actorID, question, nil)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(reply.Response), nil
}

// toolError reports domain failures as tool results so the client sees the
// message; anything untyped is returned as a protocol error.
func toolError(err error) (*mcp.CallToolResult, error) {
	switch {
	case domain.IsKind(err, domain.ErrNotFound),
		domain.IsKind(err, domain.ErrForbidden),
		domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrTemporary):
		return mcp.NewToolResultError(err.Error()), nil
	default:
		return nil, err
	}
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
