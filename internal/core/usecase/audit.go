package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

type AuditRecorder struct {
	store    ports.ContractStore
	exporter ports.TrailExporter
	now      func() time.Time
}

func NewAuditRecorder(store ports.ContractStore, exporter ports.TrailExporter) *AuditRecorder {
	return &AuditRecorder{
		store:    store,
		exporter: exporter,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Log appends one event inside tx. Audit writes are best-effort: a failed
// insert is logged and dropped, and the surrounding transaction carries on.
func (r *AuditRecorder) Log(
	ctx context.Context,
	tx ports.ContractTx,
	contractID string,
	kind domain.EventKind,
	description string,
	actorID *string,
	metadata map[string]any,
) {
	event := &domain.Event{
		ID:          uuid.NewString(),
		ContractID:  contractID,
		Kind:        kind,
		Description: description,
		ActorID:     actorID,
		CreatedAt:   r.now(),
	}
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			slog.Warn("audit_metadata_encode_failed", "contract_id", contractID, "event_type", kind, "error", err)
		} else {
			event.Metadata = raw
		}
	}

	if err := tx.AppendEvent(ctx, event); err != nil {
		slog.Error("audit_event_dropped",
			"contract_id", contractID,
			"event_type", kind,
			"error", err,
		)
	}
}

func (r *AuditRecorder) Trail(ctx context.Context, contractID, actorID string) (*domain.AuditTrail, error) {
	access, err := readAccess(ctx, r.store, contractID, actorID)
	if err != nil {
		return nil, err
	}
	if err := access.requireParty("audit trail"); err != nil {
		return nil, err
	}

	events, err := r.store.ListEvents(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []domain.Event{}
	}

	return &domain.AuditTrail{
		ContractID:  contractID,
		Events:      events,
		ContentHash: access.contract.ContentHash,
		ReceiptID:   access.contract.ReceiptID,
	}, nil
}

func (r *AuditRecorder) LogTranslationViewed(
	ctx context.Context,
	contractID, actorID string,
	language domain.TranslationLanguage,
) error {
	if !language.Valid() {
		return domain.NewError(domain.ErrInvalidInput, "log translation view", fmt.Sprintf("unsupported language %q", language))
	}

	return r.store.WithinTx(ctx, func(tx ports.ContractTx) error {
		contract, err := tx.GetContract(ctx, contractID)
		if err != nil {
			return fmt.Errorf("load contract: %w", err)
		}
		parties, err := tx.ListPartyViews(ctx, contractID)
		if err != nil {
			return fmt.Errorf("load parties: %w", err)
		}
		access := newPartyAccess(contract, parties, actorID)
		if err := access.requireParty("log translation view"); err != nil {
			return err
		}

		r.Log(ctx, tx, contractID, domain.EventTranslationViewed,
			fmt.Sprintf("User viewed %s translation", languageLabel(language)),
			&actorID,
			map[string]any{"language": string(language)},
		)
		return nil
	})
}

// ExportTrail writes the trail as a spreadsheet to w.
func (r *AuditRecorder) ExportTrail(ctx context.Context, contractID, actorID string, w io.Writer) error {
	trail, err := r.Trail(ctx, contractID, actorID)
	if err != nil {
		return err
	}
	if err := r.exporter.WriteTrail(w, trail); err != nil {
		return fmt.Errorf("export trail: %w", err)
	}
	return nil
}

func languageLabel(language domain.TranslationLanguage) string {
	switch language {
	case domain.TranslationHindi:
		return "Hindi"
	case domain.TranslationBengali:
		return "Bengali"
	default:
		return string(language)
	}
}
