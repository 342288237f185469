// Package postgres implements the persistence repositories on PostgreSQL with sqlx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is applied in order by Migrate. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS facilities (
		facility_number    TEXT PRIMARY KEY,
		dataset            TEXT NOT NULL DEFAULT '',
		facility_type      TEXT NOT NULL DEFAULT '',
		facility_name      TEXT NOT NULL DEFAULT '',
		licensee           TEXT NOT NULL DEFAULT '',
		telephone          TEXT NOT NULL DEFAULT '',
		address            TEXT NOT NULL DEFAULT '',
		city               TEXT NOT NULL DEFAULT '',
		zip                TEXT NOT NULL DEFAULT '',
		county             TEXT NOT NULL DEFAULT '',
		capacity           INTEGER NOT NULL DEFAULT 0,
		status             TEXT NOT NULL DEFAULT '',
		license_first_date DATE,
		closed_date        DATE,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS facilities_county_idx ON facilities (UPPER(county))`,
	`CREATE INDEX IF NOT EXISTS facilities_licensee_idx ON facilities (licensee)`,
	`CREATE TABLE IF NOT EXISTS risk_assessments (
		id              BIGSERIAL PRIMARY KEY,
		run_id          TEXT NOT NULL,
		facility_number TEXT NOT NULL REFERENCES facilities (facility_number),
		fraud_score     INTEGER NOT NULL DEFAULT 0,
		fraud_flags     TEXT[] NOT NULL DEFAULT '{}',
		risk_score      INTEGER NOT NULL DEFAULT 0,
		months_operated DOUBLE PRECISION,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS risk_assessments_run_facility_key ON risk_assessments (run_id, facility_number)`,
	`CREATE INDEX IF NOT EXISTS risk_assessments_run_idx ON risk_assessments (run_id, risk_score DESC)`,
}

// Migrate creates the tables and indexes in one transaction
func Migrate(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return tx.Commit()
}
