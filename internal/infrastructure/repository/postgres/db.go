package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users(lower(email));

CREATE TABLE IF NOT EXISTS contracts (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	document BYTEA NOT NULL,
	detected_language TEXT NOT NULL,
	risk_score TEXT NOT NULL,
	status TEXT NOT NULL,
	risk_summary TEXT NOT NULL DEFAULT '',
	category TEXT,
	expires_at TIMESTAMPTZ,
	content_hash TEXT,
	receipt_id TEXT,
	finalized_at TIMESTAMPTZ,
	attestation_state TEXT,
	attestation_attempts INTEGER NOT NULL DEFAULT 0,
	attestation_attempted_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

ALTER TABLE contracts ADD COLUMN IF NOT EXISTS attestation_state TEXT;
ALTER TABLE contracts ADD COLUMN IF NOT EXISTS attestation_attempts INTEGER NOT NULL DEFAULT 0;
ALTER TABLE contracts ADD COLUMN IF NOT EXISTS attestation_attempted_at TIMESTAMPTZ;
UPDATE contracts
SET attestation_state = CASE WHEN receipt_id IS NULL THEN 'pending' ELSE 'recorded' END
WHERE attestation_state IS NULL AND content_hash IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_contracts_created_at ON contracts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_contracts_expires_at ON contracts(expires_at) WHERE expires_at IS NOT NULL;
DROP INDEX IF EXISTS idx_contracts_pending_receipt;
CREATE INDEX IF NOT EXISTS idx_contracts_attestation_queue
	ON contracts(attestation_attempted_at ASC NULLS FIRST, finalized_at ASC)
	WHERE attestation_state = 'pending';

CREATE TABLE IF NOT EXISTS clauses (
	contract_id TEXT NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
	clause_index INTEGER NOT NULL,
	original_text TEXT NOT NULL,
	simplified_text TEXT NOT NULL,
	PRIMARY KEY (contract_id, clause_index)
);

CREATE TABLE IF NOT EXISTS translations (
	id BIGSERIAL PRIMARY KEY,
	contract_id TEXT NOT NULL,
	clause_index INTEGER NOT NULL,
	language TEXT NOT NULL,
	translated_text TEXT NOT NULL,
	FOREIGN KEY (contract_id, clause_index) REFERENCES clauses(contract_id, clause_index) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS risks (
	id BIGSERIAL PRIMARY KEY,
	contract_id TEXT NOT NULL,
	clause_index INTEGER NOT NULL,
	risk_type TEXT NOT NULL,
	severity TEXT NOT NULL,
	description TEXT NOT NULL,
	recommendation TEXT NOT NULL,
	FOREIGN KEY (contract_id, clause_index) REFERENCES clauses(contract_id, clause_index) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS contract_parties (
	id TEXT PRIMARY KEY,
	contract_id TEXT NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	approval_status TEXT NOT NULL,
	approved_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	UNIQUE (contract_id, role),
	UNIQUE (contract_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_contract_parties_user ON contract_parties(user_id);

CREATE TABLE IF NOT EXISTS contract_events (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	contract_id TEXT NOT NULL REFERENCES contracts(id) ON DELETE CASCADE,
	event_type TEXT NOT NULL,
	description TEXT NOT NULL,
	event_metadata JSONB,
	user_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contract_events_order ON contract_events(contract_id, created_at, seq);
`

// EnsureSchema creates the tables if they are missing.
func (s *ContractStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
