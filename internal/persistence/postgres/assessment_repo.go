package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/daycarewatch/internal/persistence"
)

// assessmentRepo implements AssessmentRepo for PostgreSQL
type assessmentRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAssessmentRepo creates a new PostgreSQL assessment repository
func NewAssessmentRepo(db *sqlx.DB, timeout time.Duration) persistence.AssessmentRepo {
	return &assessmentRepo{
		db:      db,
		timeout: timeout,
	}
}

// UpsertBatch stores a run's assessments atomically. Loading the same run
// again replaces its scores instead of duplicating them.
func (r *assessmentRepo) UpsertBatch(ctx context.Context, assessments []persistence.Assessment) error {
	if len(assessments) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(assessments)/1000+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO risk_assessments (run_id, facility_number, fraud_score, fraud_flags, risk_score, months_operated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, facility_number) DO UPDATE SET
			fraud_score = EXCLUDED.fraud_score,
			fraud_flags = EXCLUDED.fraud_flags,
			risk_score = EXCLUDED.risk_score,
			months_operated = EXCLUDED.months_operated,
			created_at = NOW()`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, a := range assessments {
		if a.RunID == "" {
			return fmt.Errorf("assessment for %s has no run id", a.FacilityNumber)
		}
		_, err = stmt.ExecContext(ctx,
			a.RunID, a.FacilityNumber, a.FraudScore, pq.Array([]string(a.FraudFlags)), a.RiskScore, a.MonthsOperated)
		if err != nil {
			if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
				return fmt.Errorf("facility %s is not loaded: %w", a.FacilityNumber, err)
			}
			return fmt.Errorf("failed to upsert assessment for %s: %w", a.FacilityNumber, err)
		}
	}

	return tx.Commit()
}

// Top returns a run's highest risk assessments
func (r *assessmentRepo) Top(ctx context.Context, runID string, minScore, limit int) ([]persistence.Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, run_id, facility_number, fraud_score, fraud_flags, risk_score, months_operated, created_at
		FROM risk_assessments
		WHERE run_id = $1 AND risk_score >= $2
		ORDER BY risk_score DESC, fraud_score DESC, facility_number
		LIMIT $3`

	var out []persistence.Assessment
	if err := r.db.SelectContext(ctx, &out, query, runID, minScore, limit); err != nil {
		return nil, fmt.Errorf("failed to query top assessments: %w", err)
	}
	return out, nil
}

// LatestRun returns the run ID of the newest assessment
func (r *assessmentRepo) LatestRun(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var runID string
	err := r.db.QueryRowxContext(ctx, `
		SELECT run_id
		FROM risk_assessments
		ORDER BY created_at DESC, id DESC
		LIMIT 1`).Scan(&runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to query latest run: %w", err)
	}
	return runID, nil
}
