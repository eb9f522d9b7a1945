package xlsx

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

func TestWriteTrailProducesEventsAndSummarySheets(t *testing.T) {
	name := "Alice"
	hash := "0xabc"
	trail := &domain.AuditTrail{
		ContractID:  "c-1",
		ContentHash: &hash,
		Events: []domain.Event{
			{
				Kind:        domain.EventDocumentUploaded,
				Description: "Document uploaded",
				Metadata:    json.RawMessage(`{"filename":"lease.pdf"}`),
				ActorName:   &name,
				CreatedAt:   time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC),
			},
			{
				Kind:        domain.EventContractFinalized,
				Description: "Contract finalized - both parties approved",
				CreatedAt:   time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
			},
		},
	}

	var buf bytes.Buffer
	if err := NewExporter().WriteTrail(&buf, trail); err != nil {
		t.Fatalf("WriteTrail() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(eventsSheet)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 events, got %d rows", len(rows))
	}
	if rows[1][0] != "2026-04-01T09:30:00Z" || rows[1][1] != "document_uploaded" || rows[1][3] != "Alice" {
		t.Fatalf("unexpected first event row %v", rows[1])
	}
	if rows[2][1] != "contract_finalized" {
		t.Fatalf("unexpected second event row %v", rows[2])
	}

	summary, err := f.GetRows(summarySheet)
	if err != nil {
		t.Fatalf("GetRows(summary) error = %v", err)
	}
	if summary[1][1] != "0xabc" {
		t.Fatalf("unexpected summary %v", summary)
	}
}
