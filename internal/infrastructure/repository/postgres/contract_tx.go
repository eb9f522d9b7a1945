package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

type contractTx struct {
	tx *sql.Tx
}

func (t *contractTx) GetContract(ctx context.Context, id string) (*domain.Contract, error) {
	return getContract(ctx, t.tx, id, false)
}

func (t *contractTx) LockContract(ctx context.Context, id string) (*domain.Contract, error) {
	return getContract(ctx, t.tx, id, true)
}

func (t *contractTx) ListPartyViews(ctx context.Context, contractID string) ([]domain.PartyView, error) {
	return listPartyViews(ctx, t.tx, contractID)
}

func (t *contractTx) CreateContract(ctx context.Context, c *domain.Contract) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO contracts (
	id, owner_id, filename, document, detected_language, risk_score, status, risk_summary,
	category, expires_at, content_hash, receipt_id, finalized_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`,
		c.ID, c.OwnerID, c.Filename, c.Document, string(c.DetectedLanguage), string(c.RiskScore), string(c.Status),
		c.RiskSummary, nullCategory(c.Category), nullTime(c.ExpiresAt), nullString(c.ContentHash),
		nullString(c.ReceiptID), nullTime(c.FinalizedAt), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert contract", err)
		}
		return fmt.Errorf("insert contract: %w", err)
	}
	return nil
}

func (t *contractTx) SaveAnalysis(
	ctx context.Context,
	contractID string,
	clauses []domain.Clause,
	translations []domain.Translation,
	risks []domain.Risk,
) error {
	for _, clause := range clauses {
		if _, err := t.tx.ExecContext(ctx, `
INSERT INTO clauses (contract_id, clause_index, original_text, simplified_text)
VALUES ($1,$2,$3,$4)
`, contractID, clause.Index, clause.OriginalText, clause.SimplifiedText); err != nil {
			return fmt.Errorf("insert clause %d: %w", clause.Index, err)
		}
	}
	for _, tr := range translations {
		if _, err := t.tx.ExecContext(ctx, `
INSERT INTO translations (contract_id, clause_index, language, translated_text)
VALUES ($1,$2,$3,$4)
`, contractID, tr.ClauseIndex, string(tr.Language), tr.Text); err != nil {
			return fmt.Errorf("insert translation for clause %d: %w", tr.ClauseIndex, err)
		}
	}
	for _, risk := range risks {
		if _, err := t.tx.ExecContext(ctx, `
INSERT INTO risks (contract_id, clause_index, risk_type, severity, description, recommendation)
VALUES ($1,$2,$3,$4,$5,$6)
`, contractID, risk.ClauseIndex, risk.Type, string(risk.Severity), risk.Description, risk.Recommendation); err != nil {
			return fmt.Errorf("insert risk for clause %d: %w", risk.ClauseIndex, err)
		}
	}
	return nil
}

func (t *contractTx) UpdateStatus(ctx context.Context, contractID string, status domain.ContractStatus) error {
	result, err := t.tx.ExecContext(ctx, `
UPDATE contracts
SET status = $2, updated_at = $3
WHERE id = $1
`, contractID, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update contract status: %w", err)
	}
	return requireAffected(result, "update contract status")
}

func (t *contractTx) UpdateDetails(ctx context.Context, contractID string, category *domain.Category, expiresAt *time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
UPDATE contracts
SET category = COALESCE($2, category), expires_at = COALESCE($3, expires_at), updated_at = $4
WHERE id = $1
`, contractID, nullCategory(category), nullTime(expiresAt), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update contract details: %w", err)
	}
	return requireAffected(result, "update contract details")
}

func (t *contractTx) RecordAttestation(ctx context.Context, contractID string, attestation domain.Attestation, finalizedAt time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
UPDATE contracts
SET content_hash = $2, receipt_id = $3, attestation_state = $4, finalized_at = $5, updated_at = $5
WHERE id = $1
`, contractID, attestation.Hash, nullString(attestation.ReceiptID), string(attestation.State), finalizedAt)
	if err != nil {
		return fmt.Errorf("record attestation: %w", err)
	}
	return requireAffected(result, "record attestation")
}

func (t *contractTx) SetReceipt(ctx context.Context, contractID, receiptID string) error {
	result, err := t.tx.ExecContext(ctx, `
UPDATE contracts
SET receipt_id = $2, attestation_state = $3, updated_at = $4
WHERE id = $1 AND receipt_id IS NULL
`, contractID, receiptID, string(domain.AttestationRecorded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set receipt: %w", err)
	}
	return requireAffected(result, "set receipt")
}

func (t *contractTx) MarkAttestation(ctx context.Context, contractID string, state domain.AttestationState) error {
	result, err := t.tx.ExecContext(ctx, `
UPDATE contracts
SET attestation_state = $2, updated_at = $3
WHERE id = $1
`, contractID, string(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark attestation: %w", err)
	}
	return requireAffected(result, "mark attestation")
}

func (t *contractTx) NoteAttestationAttempt(ctx context.Context, contractID string, at time.Time) (int, error) {
	var attempts int
	err := t.tx.QueryRowContext(ctx, `
UPDATE contracts
SET attestation_attempts = attestation_attempts + 1, attestation_attempted_at = $2
WHERE id = $1
RETURNING attestation_attempts
`, contractID, at).Scan(&attempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.NewError(domain.ErrNotFound, "note attestation attempt", "no matching row")
		}
		return 0, fmt.Errorf("note attestation attempt: %w", err)
	}
	return attempts, nil
}

func (t *contractTx) DeleteContract(ctx context.Context, contractID string) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM contracts WHERE id = $1`, contractID)
	if err != nil {
		return fmt.Errorf("delete contract: %w", err)
	}
	return requireAffected(result, "delete contract")
}

func (t *contractTx) AddParty(ctx context.Context, p *domain.Party) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO contract_parties (id, contract_id, user_id, role, approval_status, approved_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, p.ID, p.ContractID, p.UserID, string(p.Role), string(p.Approval), nullTime(p.ApprovedAt), p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.WrapError(domain.ErrConflict, "insert party", err)
		}
		return fmt.Errorf("insert party: %w", err)
	}
	return nil
}

func (t *contractTx) RemoveParty(ctx context.Context, contractID string, role domain.PartyRole) error {
	result, err := t.tx.ExecContext(ctx, `
DELETE FROM contract_parties
WHERE contract_id = $1 AND role = $2
`, contractID, string(role))
	if err != nil {
		return fmt.Errorf("delete party: %w", err)
	}
	return requireAffected(result, "delete party")
}

// DecideParty only matches a pending row, so the move out of pending happens
// at most once per party.
func (t *contractTx) DecideParty(ctx context.Context, contractID, userID string, state domain.ApprovalState, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
UPDATE contract_parties
SET approval_status = $3, approved_at = $4
WHERE contract_id = $1 AND user_id = $2 AND approval_status = 'pending'
`, contractID, userID, string(state), at)
	if err != nil {
		return false, fmt.Errorf("decide party: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decide party rows affected: %w", err)
	}
	return rows == 1, nil
}

func (t *contractTx) ResetApproval(ctx context.Context, contractID string, role domain.PartyRole) error {
	_, err := t.tx.ExecContext(ctx, `
UPDATE contract_parties
SET approval_status = 'pending', approved_at = NULL
WHERE contract_id = $1 AND role = $2
`, contractID, string(role))
	if err != nil {
		return fmt.Errorf("reset approval: %w", err)
	}
	return nil
}

// AppendEvent wraps the insert in a savepoint so a failed audit write leaves
// the enclosing transaction usable.
func (t *contractTx) AppendEvent(ctx context.Context, e *domain.Event) error {
	if _, err := t.tx.ExecContext(ctx, `SAVEPOINT audit_event`); err != nil {
		return fmt.Errorf("savepoint audit event: %w", err)
	}

	var metadata any
	if len(e.Metadata) > 0 {
		metadata = []byte(e.Metadata)
	}
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO contract_events (id, contract_id, event_type, description, event_metadata, user_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, e.ID, e.ContractID, string(e.Kind), e.Description, metadata, nullString(e.ActorID), e.CreatedAt)
	if err != nil {
		if _, rbErr := t.tx.ExecContext(ctx, `ROLLBACK TO SAVEPOINT audit_event`); rbErr != nil {
			return fmt.Errorf("insert audit event: %w; rollback savepoint: %v", err, rbErr)
		}
		return fmt.Errorf("insert audit event: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, `RELEASE SAVEPOINT audit_event`); err != nil {
		return fmt.Errorf("release audit savepoint: %w", err)
	}
	return nil
}
