package usecase

import (
	"bytes"
	"context"
	"testing"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

func TestTrailIsOrderedAndPartyOnly(t *testing.T) {
	f := newApprovalFixture(t, &ledgerFake{}, false)
	f.addBob(t)
	if _, err := f.service.SetApproval(context.Background(), f.contract, "u-2", true); err != nil {
		t.Fatalf("SetApproval() error = %v", err)
	}

	audit := f.service.audit
	trail, err := audit.Trail(context.Background(), f.contract, "u-2")
	if err != nil {
		t.Fatalf("Trail() error = %v", err)
	}
	if len(trail.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(trail.Events))
	}
	if trail.Events[0].Kind != domain.EventSecondPartyAdded || trail.Events[1].Kind != domain.EventSecondPartyApproved {
		t.Fatalf("unexpected order: %s, %s", trail.Events[0].Kind, trail.Events[1].Kind)
	}
	if trail.Events[1].ActorName == nil || *trail.Events[1].ActorName != "Bob" {
		t.Fatalf("expected actor name, got %v", trail.Events[1].ActorName)
	}

	if _, err := audit.Trail(context.Background(), f.contract, "u-3"); !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for outsider, got %v", err)
	}
}

func TestLogTranslationViewed(t *testing.T) {
	f := newApprovalFixture(t, &ledgerFake{}, false)
	audit := f.service.audit

	if err := audit.LogTranslationViewed(context.Background(), f.contract, "u-1", domain.TranslationBengali); err != nil {
		t.Fatalf("LogTranslationViewed() error = %v", err)
	}
	events := f.events(t)
	if len(events) != 1 || events[0].Description != "User viewed Bengali translation" {
		t.Fatalf("unexpected events %+v", events)
	}
	if string(events[0].Metadata) != `{"language":"bengali"}` {
		t.Fatalf("unexpected metadata %s", events[0].Metadata)
	}

	if err := audit.LogTranslationViewed(context.Background(), f.contract, "u-1", "french"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid language, got %v", err)
	}
	if err := audit.LogTranslationViewed(context.Background(), f.contract, "u-3", domain.TranslationHindi); !domain.IsKind(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestExportTrail(t *testing.T) {
	f := newApprovalFixture(t, &ledgerFake{}, false)
	exporter := &exporterFake{}
	audit := NewAuditRecorder(f.store, exporter)

	var buf bytes.Buffer
	if err := audit.ExportTrail(context.Background(), f.contract, "u-1", &buf); err != nil {
		t.Fatalf("ExportTrail() error = %v", err)
	}
	if exporter.trail == nil || exporter.trail.ContractID != f.contract || buf.String() != "xlsx" {
		t.Fatalf("expected trail handed to exporter")
	}
}
