package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

const contractColumns = `c.id, c.owner_id, c.filename, c.detected_language, c.risk_score, c.status, c.risk_summary,
	c.category, c.expires_at, c.content_hash, c.receipt_id, c.finalized_at, c.attestation_state,
	c.created_at, c.updated_at`

func scanContract(row rowScanner, extra ...any) (domain.Contract, error) {
	var (
		c           domain.Contract
		language    string
		riskScore   string
		status      string
		category    sql.NullString
		expiresAt   sql.NullTime
		contentHash sql.NullString
		receiptID   sql.NullString
		finalizedAt sql.NullTime
		attestation sql.NullString
	)
	dest := []any{
		&c.ID, &c.OwnerID, &c.Filename, &language, &riskScore, &status, &c.RiskSummary,
		&category, &expiresAt, &contentHash, &receiptID, &finalizedAt, &attestation,
		&c.CreatedAt, &c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Contract{}, err
	}

	c.DetectedLanguage = domain.DetectedLanguage(language)
	c.RiskScore = domain.RiskScore(riskScore)
	c.Status = domain.ContractStatus(status)
	if category.Valid {
		value := domain.NormalizeCategory(category.String)
		c.Category = &value
	}
	c.ExpiresAt = timePtr(expiresAt)
	c.ContentHash = stringPtr(contentHash)
	c.ReceiptID = stringPtr(receiptID)
	c.FinalizedAt = timePtr(finalizedAt)
	c.AttestationState = domain.AttestationState(attestation.String)
	return c, nil
}

func getContract(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Contract, error) {
	query := `SELECT ` + contractColumns + `, c.document FROM contracts c WHERE c.id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var document []byte
	contract, err := scanContract(q.QueryRowContext(ctx, query, id), &document)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get contract", fmt.Errorf("contract %s", id))
		}
		return nil, fmt.Errorf("scan contract: %w", err)
	}
	contract.Document = document
	return &contract, nil
}

func listPartyViews(ctx context.Context, q querier, contractID string) ([]domain.PartyView, error) {
	rows, err := q.QueryContext(ctx, `
SELECT p.id, p.contract_id, p.user_id, p.role, p.approval_status, p.approved_at, p.created_at,
	COALESCE(u.full_name, ''), COALESCE(u.email, '')
FROM contract_parties p
LEFT JOIN users u ON u.id = p.user_id
WHERE p.contract_id = $1
ORDER BY p.role ASC
`, contractID)
	if err != nil {
		return nil, fmt.Errorf("query parties: %w", err)
	}
	defer rows.Close()

	views := make([]domain.PartyView, 0, 2)
	for rows.Next() {
		var (
			view       domain.PartyView
			role       string
			approval   string
			approvedAt sql.NullTime
		)
		if err := rows.Scan(
			&view.ID, &view.ContractID, &view.UserID, &role, &approval, &approvedAt, &view.CreatedAt,
			&view.UserName, &view.UserEmail,
		); err != nil {
			return nil, fmt.Errorf("scan party: %w", err)
		}
		view.Role = domain.PartyRole(role)
		view.Approval = domain.ApprovalState(approval)
		view.ApprovedAt = timePtr(approvedAt)
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate parties: %w", err)
	}
	return views, nil
}

func requireAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.NewError(domain.ErrNotFound, op, "no matching row")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullCategory(v *domain.Category) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// likePattern escapes LIKE wildcards and wraps the term for a substring match.
func likePattern(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(term) + "%"
}
