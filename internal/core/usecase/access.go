package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

// partyAccess is a contract together with its parties, seen from one actor.
type partyAccess struct {
	contract *domain.Contract
	parties  []domain.PartyView
	actor    *domain.PartyView
}

func newPartyAccess(contract *domain.Contract, parties []domain.PartyView, actorID string) *partyAccess {
	access := &partyAccess{contract: contract, parties: parties}
	for i := range parties {
		if parties[i].UserID == actorID {
			access.actor = &parties[i]
			break
		}
	}
	return access
}

func readAccess(ctx context.Context, reader ports.ContractReader, contractID, actorID string) (*partyAccess, error) {
	contract, err := reader.GetContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}
	parties, err := reader.ListPartyViews(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("load parties: %w", err)
	}
	return newPartyAccess(contract, parties, actorID), nil
}

// lockedAccess is readAccess under the contract row lock.
func lockedAccess(ctx context.Context, tx ports.ContractTx, contractID, actorID string) (*partyAccess, error) {
	contract, err := tx.LockContract(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("lock contract: %w", err)
	}
	parties, err := tx.ListPartyViews(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("load parties: %w", err)
	}
	return newPartyAccess(contract, parties, actorID), nil
}

func (a *partyAccess) requireParty(op string) error {
	if a.actor == nil {
		return domain.NewError(domain.ErrForbidden, op, "not a party to this contract")
	}
	return nil
}

func (a *partyAccess) requireOwner(op string) error {
	if a.actor == nil || a.actor.Role != domain.RoleFirstParty {
		return domain.NewError(domain.ErrForbidden, op, "only the first party can do this")
	}
	return nil
}

func (a *partyAccess) byRole(role domain.PartyRole) *domain.PartyView {
	for i := range a.parties {
		if a.parties[i].Role == role {
			return &a.parties[i]
		}
	}
	return nil
}

func (a *partyAccess) isOwner() bool {
	return a.actor != nil && a.actor.Role == domain.RoleFirstParty
}

func (a *partyAccess) status() *domain.ApprovalStatus {
	first := a.byRole(domain.RoleFirstParty)
	second := a.byRole(domain.RoleSecondParty)

	var firstParty, secondParty *domain.Party
	if first != nil {
		firstParty = &first.Party
	}
	if second != nil {
		secondParty = &second.Party
	}

	return &domain.ApprovalStatus{
		FirstParty:    first,
		SecondParty:   second,
		OverallStatus: domain.DeriveOverallStatus(firstParty, secondParty),
		IsOwner:       a.isOwner(),
		CanApprove:    a.actor != nil && a.actor.Approval == domain.ApprovalPending,
		ReceiptID:     a.contract.ReceiptID,
	}
}
