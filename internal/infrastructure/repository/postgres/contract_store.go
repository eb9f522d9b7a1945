package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
	"github.com/kirillkom/contract-orchestrator/internal/core/ports"
)

type ContractStore struct {
	db *sql.DB
}

func NewContractStore(db *sql.DB) *ContractStore {
	return &ContractStore{db: db}
}

// WithinTx runs fn in one database transaction, committing when fn returns
// nil and rolling back otherwise.
func (s *ContractStore) WithinTx(ctx context.Context, fn func(tx ports.ContractTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&contractTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *ContractStore) GetContract(ctx context.Context, id string) (*domain.Contract, error) {
	return getContract(ctx, s.db, id, false)
}

func (s *ContractStore) ListPartyViews(ctx context.Context, contractID string) ([]domain.PartyView, error) {
	return listPartyViews(ctx, s.db, contractID)
}

func (s *ContractStore) GetDetail(ctx context.Context, id string) (*domain.ContractDetail, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contractColumns+` FROM contracts c WHERE c.id = $1`, id)
	contract, err := scanContract(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get contract detail", fmt.Errorf("contract %s", id))
		}
		return nil, fmt.Errorf("scan contract: %w", err)
	}

	detail := &domain.ContractDetail{
		Contract:     contract,
		Translations: domain.EmptyTranslations(),
	}
	if detail.Clauses, err = s.listClauses(ctx, id); err != nil {
		return nil, err
	}
	if err := s.loadTranslations(ctx, id, detail.Translations); err != nil {
		return nil, err
	}
	if detail.Risks, err = s.listRisks(ctx, id); err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *ContractStore) listClauses(ctx context.Context, contractID string) ([]domain.Clause, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT clause_index, original_text, simplified_text
FROM clauses
WHERE contract_id = $1
ORDER BY clause_index ASC
`, contractID)
	if err != nil {
		return nil, fmt.Errorf("query clauses: %w", err)
	}
	defer rows.Close()

	clauses := []domain.Clause{}
	for rows.Next() {
		var clause domain.Clause
		if err := rows.Scan(&clause.Index, &clause.OriginalText, &clause.SimplifiedText); err != nil {
			return nil, fmt.Errorf("scan clause: %w", err)
		}
		clauses = append(clauses, clause)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clauses: %w", err)
	}
	return clauses, nil
}

func (s *ContractStore) loadTranslations(ctx context.Context, contractID string, out map[domain.TranslationLanguage][]domain.Translation) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT clause_index, language, translated_text
FROM translations
WHERE contract_id = $1
ORDER BY clause_index ASC, id ASC
`, contractID)
	if err != nil {
		return fmt.Errorf("query translations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tr domain.Translation
		var language string
		if err := rows.Scan(&tr.ClauseIndex, &language, &tr.Text); err != nil {
			return fmt.Errorf("scan translation: %w", err)
		}
		tr.Language = domain.TranslationLanguage(language)
		out[tr.Language] = append(out[tr.Language], tr)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate translations: %w", err)
	}
	return nil
}

func (s *ContractStore) listRisks(ctx context.Context, contractID string) ([]domain.Risk, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT clause_index, risk_type, severity, description, recommendation
FROM risks
WHERE contract_id = $1
ORDER BY clause_index ASC, id ASC
`, contractID)
	if err != nil {
		return nil, fmt.Errorf("query risks: %w", err)
	}
	defer rows.Close()

	risks := []domain.Risk{}
	for rows.Next() {
		var risk domain.Risk
		var severity string
		if err := rows.Scan(&risk.ClauseIndex, &risk.Type, &severity, &risk.Description, &risk.Recommendation); err != nil {
			return nil, fmt.Errorf("scan risk: %w", err)
		}
		risk.Severity = domain.Severity(severity)
		risks = append(risks, risk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate risks: %w", err)
	}
	return risks, nil
}

const listItemQuery = `
SELECT ` + contractColumns + `,
	me.role, me.approval_status, other.approval_status,
	EXISTS (SELECT 1 FROM contract_parties s WHERE s.contract_id = c.id AND s.role = 'second_party')
FROM contracts c
JOIN contract_parties me ON me.contract_id = c.id AND me.user_id = $1
LEFT JOIN contract_parties other ON other.contract_id = c.id AND other.user_id <> $1
`

func scanListItems(rows *sql.Rows) ([]domain.ContractListItem, error) {
	items := []domain.ContractListItem{}
	for rows.Next() {
		var (
			myRole     string
			myApproval string
			other      sql.NullString
			hasSecond  bool
		)
		contract, err := scanContract(rows, &myRole, &myApproval, &other, &hasSecond)
		if err != nil {
			return nil, fmt.Errorf("scan contract list item: %w", err)
		}
		mine := domain.ApprovalState(myApproval)
		item := domain.ContractListItem{
			Contract:         contract,
			IsOwner:          domain.PartyRole(myRole) == domain.RoleFirstParty,
			MyApprovalStatus: &mine,
			HasSecondParty:   hasSecond,
		}
		if other.Valid {
			state := domain.ApprovalState(other.String)
			item.OtherPartyApprovalStatus = &state
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contract list: %w", err)
	}
	return items, nil
}

func (s *ContractStore) ListForUser(ctx context.Context, userID string, filter domain.ListFilter) (*domain.ContractList, error) {
	pattern := "%"
	if filter.Search != "" {
		pattern = likePattern(filter.Search)
	}

	var total int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM contracts c
JOIN contract_parties me ON me.contract_id = c.id AND me.user_id = $1
WHERE c.filename ILIKE $2
`, userID, pattern).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count contracts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, listItemQuery+`
WHERE c.filename ILIKE $2
ORDER BY c.created_at DESC
LIMIT $3 OFFSET $4
`, userID, pattern, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("query contracts: %w", err)
	}
	defer rows.Close()

	items, err := scanListItems(rows)
	if err != nil {
		return nil, err
	}
	return &domain.ContractList{
		Contracts: items,
		Total:     total,
		Limit:     filter.Limit,
		Offset:    filter.Offset,
	}, nil
}

func (s *ContractStore) ListExpiring(ctx context.Context, userID string, from, to time.Time, limit int) ([]domain.ContractListItem, error) {
	rows, err := s.db.QueryContext(ctx, listItemQuery+`
WHERE c.expires_at IS NOT NULL AND c.expires_at >= $2 AND c.expires_at <= $3
ORDER BY c.expires_at ASC
LIMIT $4
`, userID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query expiring contracts: %w", err)
	}
	defer rows.Close()
	return scanListItems(rows)
}

func (s *ContractStore) ListEvents(ctx context.Context, contractID string) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT e.seq, e.id, e.contract_id, e.event_type, e.description, e.event_metadata, e.user_id, e.created_at,
	NULLIF(COALESCE(NULLIF(u.full_name, ''), u.email), '')
FROM contract_events e
LEFT JOIN users u ON u.id = e.user_id
WHERE e.contract_id = $1
ORDER BY e.created_at ASC, e.seq ASC
`, contractID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var (
			event     domain.Event
			kind      string
			metadata  []byte
			actorID   sql.NullString
			actorName sql.NullString
		)
		if err := rows.Scan(
			&event.Seq, &event.ID, &event.ContractID, &kind, &event.Description, &metadata, &actorID,
			&event.CreatedAt, &actorName,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.Kind = domain.EventKind(kind)
		if len(metadata) > 0 {
			event.Metadata = metadata
		}
		event.ActorID = stringPtr(actorID)
		event.ActorName = stringPtr(actorName)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func (s *ContractStore) ListPendingAttestations(ctx context.Context, limit int) ([]domain.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+contractColumns+`
FROM contracts c
WHERE c.status = $1 AND c.attestation_state = $2 AND c.content_hash IS NOT NULL AND c.receipt_id IS NULL
ORDER BY c.attestation_attempted_at ASC NULLS FIRST, c.finalized_at ASC
LIMIT $3
`, string(domain.ContractApproved), string(domain.AttestationPending), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending attestations: %w", err)
	}
	defer rows.Close()

	var out []domain.Contract
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending attestation: %w", err)
		}
		out = append(out, contract)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending attestations: %w", err)
	}
	return out, nil
}
