package persistence

import (
	"context"
	"time"

	"github.com/lib/pq"

	"github.com/sawpanic/daycarewatch/internal/facility"
)

// FacilityRecord is a registry facility as stored in the facilities table
type FacilityRecord struct {
	Number           string     `json:"facility_number" db:"facility_number"`
	Dataset          string     `json:"dataset" db:"dataset"`
	Type             string     `json:"facility_type" db:"facility_type"`
	Name             string     `json:"facility_name" db:"facility_name"`
	Licensee         string     `json:"licensee" db:"licensee"`
	Telephone        string     `json:"telephone" db:"telephone"`
	Address          string     `json:"address" db:"address"`
	City             string     `json:"city" db:"city"`
	Zip              string     `json:"zip" db:"zip"`
	County           string     `json:"county" db:"county"`
	Capacity         int        `json:"capacity" db:"capacity"`
	Status           string     `json:"status" db:"status"`
	LicenseFirstDate *time.Time `json:"license_first_date,omitempty" db:"license_first_date"`
	ClosedDate       *time.Time `json:"closed_date,omitempty" db:"closed_date"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// NewFacilityRecord converts a loaded facility
func NewFacilityRecord(f *facility.Facility) FacilityRecord {
	return FacilityRecord{
		Number:           f.Number,
		Dataset:          string(f.Dataset),
		Type:             f.Type,
		Name:             f.Name,
		Licensee:         f.Licensee,
		Telephone:        f.Telephone,
		Address:          f.Address,
		City:             f.City,
		Zip:              f.Zip,
		County:           f.County,
		Capacity:         f.Capacity,
		Status:           f.Status,
		LicenseFirstDate: f.LicenseFirstDate,
		ClosedDate:       f.ClosedDate,
	}
}

// Assessment is one facility's scores from a single pipeline run
type Assessment struct {
	ID             int64          `json:"id" db:"id"`
	RunID          string         `json:"run_id" db:"run_id"`
	FacilityNumber string         `json:"facility_number" db:"facility_number"`
	FraudScore     int            `json:"fraud_score" db:"fraud_score"`
	FraudFlags     pq.StringArray `json:"fraud_flags" db:"fraud_flags"`
	RiskScore      int            `json:"risk_score" db:"risk_score"`
	MonthsOperated *float64       `json:"months_operated,omitempty" db:"months_operated"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// FacilityRepo persists registry facilities keyed by facility number
type FacilityRepo interface {
	// UpsertBatch inserts or refreshes facilities in one transaction
	UpsertBatch(ctx context.Context, facilities []FacilityRecord) error

	// Get returns a facility, or nil when the number is unknown
	Get(ctx context.Context, number string) (*FacilityRecord, error)

	ListByCounty(ctx context.Context, county string, limit int) ([]FacilityRecord, error)

	Count(ctx context.Context) (int64, error)
}

// AssessmentRepo persists scoring results per run
type AssessmentRepo interface {
	// UpsertBatch stores assessments, replacing a run's earlier score of the same facility
	UpsertBatch(ctx context.Context, assessments []Assessment) error

	// Top returns a run's assessments at or above minScore, highest first
	Top(ctx context.Context, runID string, minScore, limit int) ([]Assessment, error)

	// LatestRun returns the most recent run ID, empty when nothing is stored
	LatestRun(ctx context.Context) (string, error)
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Facilities  FacilityRepo
	Assessments AssessmentRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
}
