package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

func TestContractGetSortsClausesAndChecksParty(t *testing.T) {
	f := newApprovalFixture(t, &ledgerFake{}, false)
	err := f.store.WithinTx(context.Background(), func(tx ports.ContractTx) error {
		return tx.SaveAnalysis(context.Background(), f.contract,
			[]domain.Clause{{Index: 7}, {Index: 2}, {Index: 5}},
			nil, nil)
	})
	if err != nil {
		t.Fatalf("seed analysis: %v", err)
	}
	service := NewContractService(f.store)

	detail, err := service.Get(context.Background(), f.contract, "u-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if detail.Clauses[0].Index != 2 || detail.Clauses[2].Index != 7 {
		t.Fatalf("expected clauses sorted by index, got %+v", detail.Clauses)
	}
	if _, err := service.Get(context.Background(), f.contract, "u-3"); !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestUpdateDetails(t *testing.T) {
	f := newApprovalFixture(t, &ledgerFake{}, false)
	f.addBob(t)
	service := NewContractService(f.store)

	bad := "franchise"
	if _, err := service.UpdateDetails(context.Background(), f.contract, "u-1", domain.DetailsUpdate{Category: &bad}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid category, got %v", err)
	}

	category := "NDA"
	expiry := time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)
	update := domain.DetailsUpdate{Category: &category, ExpiresAt: &expiry}
	if _, err := service.UpdateDetails(context.Background(), f.contract, "u-2", update); !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for second party, got %v", err)
	}

	updated, err := service.UpdateDetails(context.Background(), f.contract, "u-1", update)
	if err != nil {
		t.Fatalf("UpdateDetails() error = %v", err)
	}
	if updated.Category == nil || *updated.Category != domain.CategoryNDA || !updated.ExpiresAt.Equal(expiry) {
		t.Fatalf("unexpected contract %+v", updated)
	}
}

func TestDeleteIsOwnerOnly(t *testing.T) {
	f := newApprovalFixture(t, &ledgerFake{}, false)
	f.addBob(t)
	service := NewContractService(f.store)

	if err := service.Delete(context.Background(), f.contract, "u-2"); !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := service.Delete(context.Background(), f.contract, "u-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.store.GetContract(context.Background(), f.contract); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected contract gone, got %v", err)
	}
	if events := f.events(t); len(events) != 0 {
		t.Fatalf("expected events cascaded, got %d", len(events))
	}
}

func TestExpiringWindow(t *testing.T) {
	f := newApprovalFixture(t, &ledgerFake{}, false)
	service := NewContractService(f.store)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	soon := now.AddDate(0, 0, 10)
	err := f.store.WithinTx(context.Background(), func(tx ports.ContractTx) error {
		return tx.UpdateDetails(context.Background(), f.contract, nil, &soon)
	})
	if err != nil {
		t.Fatalf("seed expiry: %v", err)
	}

	items, err := service.Expiring(context.Background(), "u-1", 0)
	if err != nil {
		t.Fatalf("Expiring() error = %v", err)
	}
	if len(items) != 1 || items[0].ID != f.contract {
		t.Fatalf("expected contract within default window, got %+v", items)
	}

	items, err = service.Expiring(context.Background(), "u-1", 5)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected nothing within 5 days, got %+v, %v", items, err)
	}
}

func TestListDefaultsLimit(t *testing.T) {
	f := newApprovalFixture(t, &ledgerFake{}, false)
	service := NewContractService(f.store)

	list, err := service.List(context.Background(), "u-1", domain.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list.Limit != defaultListLimit || list.Total != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
}
