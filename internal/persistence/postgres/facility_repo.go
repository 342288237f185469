package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/daycarewatch/internal/persistence"
)

const facilityColumns = `facility_number, dataset, facility_type, facility_name, licensee,
	telephone, address, city, zip, county, capacity, status,
	license_first_date, closed_date, updated_at`

// facilityRepo implements FacilityRepo for PostgreSQL
type facilityRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewFacilityRepo creates a new PostgreSQL facility repository
func NewFacilityRepo(db *sqlx.DB, timeout time.Duration) persistence.FacilityRepo {
	return &facilityRepo{
		db:      db,
		timeout: timeout,
	}
}

// UpsertBatch inserts or refreshes facilities atomically
func (r *facilityRepo) UpsertBatch(ctx context.Context, facilities []persistence.FacilityRecord) error {
	if len(facilities) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(facilities)/1000+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO facilities (facility_number, dataset, facility_type, facility_name, licensee,
			telephone, address, city, zip, county, capacity, status, license_first_date, closed_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (facility_number) DO UPDATE SET
			dataset = EXCLUDED.dataset,
			facility_type = EXCLUDED.facility_type,
			facility_name = EXCLUDED.facility_name,
			licensee = EXCLUDED.licensee,
			telephone = EXCLUDED.telephone,
			address = EXCLUDED.address,
			city = EXCLUDED.city,
			zip = EXCLUDED.zip,
			county = EXCLUDED.county,
			capacity = EXCLUDED.capacity,
			status = EXCLUDED.status,
			license_first_date = EXCLUDED.license_first_date,
			closed_date = EXCLUDED.closed_date,
			updated_at = NOW()`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range facilities {
		if f.Number == "" {
			return fmt.Errorf("facility %q has no facility number", f.Name)
		}
		_, err = stmt.ExecContext(ctx,
			f.Number, f.Dataset, f.Type, f.Name, f.Licensee,
			f.Telephone, f.Address, f.City, f.Zip, f.County, f.Capacity, f.Status,
			f.LicenseFirstDate, f.ClosedDate)
		if err != nil {
			return fmt.Errorf("failed to upsert facility %s: %w", f.Number, err)
		}
	}

	return tx.Commit()
}

// Get returns one facility by number
func (r *facilityRepo) Get(ctx context.Context, number string) (*persistence.FacilityRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var f persistence.FacilityRecord
	err := r.db.GetContext(ctx, &f, `SELECT `+facilityColumns+` FROM facilities WHERE facility_number = $1`, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get facility %s: %w", number, err)
	}
	return &f, nil
}

// ListByCounty returns a county's facilities ordered by name
func (r *facilityRepo) ListByCounty(ctx context.Context, county string, limit int) ([]persistence.FacilityRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT ` + facilityColumns + `
		FROM facilities
		WHERE UPPER(county) = UPPER($1)
		ORDER BY facility_name, facility_number
		LIMIT $2`

	var out []persistence.FacilityRecord
	if err := r.db.SelectContext(ctx, &out, query, county, limit); err != nil {
		return nil, fmt.Errorf("failed to list facilities in %s: %w", county, err)
	}
	return out, nil
}

// Count returns the number of stored facilities
func (r *facilityRepo) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM facilities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count facilities: %w", err)
	}
	return count, nil
}
