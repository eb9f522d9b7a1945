package usecase

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

const (
	defaultListLimit     = 50
	maxListLimit         = 200
	defaultExpiringDays  = 30
	maxExpiringContracts = 10
)

type ContractService struct {
	store ports.ContractStore
	now   func() time.Time
}

func NewContractService(store ports.ContractStore) *ContractService {
	return &ContractService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *ContractService) Get(ctx context.Context, contractID, actorID string) (*domain.ContractDetail, error) {
	access, err := readAccess(ctx, s.store, contractID, actorID)
	if err != nil {
		return nil, err
	}
	if err := access.requireParty("get contract"); err != nil {
		return nil, err
	}

	detail, err := s.store.GetDetail(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("load contract detail: %w", err)
	}
	slices.SortStableFunc(detail.Clauses, func(a, b domain.Clause) int {
		return a.Index - b.Index
	})
	return detail, nil
}

func (s *ContractService) List(ctx context.Context, actorID string, filter domain.ListFilter) (*domain.ContractList, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	list, err := s.store.ListForUser(ctx, actorID, filter)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return list, nil
}

func (s *ContractService) Delete(ctx context.Context, contractID, actorID string) error {
	return s.store.WithinTx(ctx, func(tx ports.ContractTx) error {
		access, err := lockedAccess(ctx, tx, contractID, actorID)
		if err != nil {
			return err
		}
		if err := access.requireOwner("delete contract"); err != nil {
			return err
		}
		if err := tx.DeleteContract(ctx, contractID); err != nil {
			return fmt.Errorf("delete contract: %w", err)
		}
		return nil
	})
}

// UpdateDetails edits the owner-managed metadata. Unlike the analysis join,
// an unknown category here is rejected rather than normalized.
func (s *ContractService) UpdateDetails(
	ctx context.Context,
	contractID, actorID string,
	update domain.DetailsUpdate,
) (*domain.Contract, error) {
	var category *domain.Category
	if update.Category != nil {
		parsed, ok := domain.ParseCategory(*update.Category)
		if !ok {
			return nil, domain.NewError(domain.ErrInvalidInput, "update contract details", fmt.Sprintf("unknown category %q", *update.Category))
		}
		category = &parsed
	}
	if category == nil && update.ExpiresAt == nil {
		return nil, domain.NewError(domain.ErrInvalidInput, "update contract details", "nothing to update")
	}

	var updated *domain.Contract
	err := s.store.WithinTx(ctx, func(tx ports.ContractTx) error {
		access, err := lockedAccess(ctx, tx, contractID, actorID)
		if err != nil {
			return err
		}
		if err := access.requireOwner("update contract details"); err != nil {
			return err
		}
		if err := tx.UpdateDetails(ctx, contractID, category, update.ExpiresAt); err != nil {
			return fmt.Errorf("update contract details: %w", err)
		}
		updated, err = tx.GetContract(ctx, contractID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Expiring lists the actor's contracts whose expiry falls within the next
// days, soonest first.
func (s *ContractService) Expiring(ctx context.Context, actorID string, days int) ([]domain.ContractListItem, error) {
	if days <= 0 {
		days = defaultExpiringDays
	}
	now := s.now()
	contracts, err := s.store.ListExpiring(ctx, actorID, now, now.AddDate(0, 0, days), maxExpiringContracts)
	if err != nil {
		return nil, fmt.Errorf("list expiring contracts: %w", err)
	}
	if contracts == nil {
		contracts = []domain.ContractListItem{}
	}
	return contracts, nil
}
