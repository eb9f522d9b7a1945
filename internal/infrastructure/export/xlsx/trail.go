package xlsx

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

const (
	eventsSheet  = "Audit trail"
	summarySheet = "Attestation"
)

var eventHeader = []any{"Time (UTC)", "Event", "Description", "Actor", "Metadata"}

// Exporter renders an audit trail as a two-sheet workbook: the ordered events
// and the stored content hash with its ledger receipt.
type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) WriteTrail(w io.Writer, trail *domain.AuditTrail) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", eventsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeEvents(f, trail.Events); err != nil {
		return err
	}
	if err := writeSummary(f, trail); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeEvents(f *excelize.File, events []domain.Event) error {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetSheetRow(eventsSheet, "A1", &eventHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := f.SetRowStyle(eventsSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, event := range events {
		actor := ""
		switch {
		case event.ActorName != nil:
			actor = *event.ActorName
		case event.ActorID != nil:
			actor = *event.ActorID
		}
		row := []any{
			event.CreatedAt.UTC().Format(time.RFC3339),
			string(event.Kind),
			event.Description,
			actor,
			string(event.Metadata),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("event cell: %w", err)
		}
		if err := f.SetSheetRow(eventsSheet, cell, &row); err != nil {
			return fmt.Errorf("write event row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(eventsSheet, "A", "B", 24); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := f.SetColWidth(eventsSheet, "C", "C", 60); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, trail *domain.AuditTrail) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	rows := [][]any{
		{"Contract", trail.ContractID},
		{"Content hash", deref(trail.ContentHash)},
		{"Ledger receipt", deref(trail.ReceiptID)},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("summary cell: %w", err)
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	return nil
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
