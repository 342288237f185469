package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/daycarewatch/internal/persistence"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

var facilityCols = []string{
	"facility_number", "dataset", "facility_type", "facility_name", "licensee",
	"telephone", "address", "city", "zip", "county", "capacity", "status",
	"license_first_date", "closed_date", "updated_at",
}

func TestFacilityRepo_UpsertBatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFacilityRepo(db, time.Second)

	opened := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []persistence.FacilityRecord{
		{Number: "191234567", Name: "SUNSHINE HOME", County: "LOS ANGELES", Capacity: 8, Status: "LICENSED", LicenseFirstDate: &opened},
		{Number: "191234568", Name: "MOON HOME", County: "ORANGE", Capacity: 14, Status: "CLOSED"},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO facilities"))
	prep.ExpectExec().
		WithArgs("191234567", "", "", "SUNSHINE HOME", "", "", "", "", "", "LOS ANGELES", 8, "LICENSED", opened, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs("191234568", "", "", "MOON HOME", "", "", "", "", "", "ORANGE", 14, "CLOSED", nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpsertBatch(context.Background(), records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacilityRepo_UpsertBatch_Errors(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFacilityRepo(db, time.Second)

	assert.NoError(t, repo.UpsertBatch(context.Background(), nil))

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO facilities")
	mock.ExpectRollback()
	err := repo.UpsertBatch(context.Background(), []persistence.FacilityRecord{{Name: "NO NUMBER"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no facility number")

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO facilities").ExpectExec().WillReturnError(errors.New("boom"))
	mock.ExpectRollback()
	err = repo.UpsertBatch(context.Background(), []persistence.FacilityRecord{{Number: "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert facility 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacilityRepo_Get(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFacilityRepo(db, time.Second)
	now := time.Now()

	mock.ExpectQuery("FROM facilities WHERE facility_number").
		WithArgs("191234567").
		WillReturnRows(sqlmock.NewRows(facilityCols).AddRow(
			"191234567", "family_child_care_homes", "FAMILY CHILD CARE HOME", "SUNSHINE HOME", "SMITH, ANN",
			"(213) 555-0001", "1 MAIN ST", "FRESNO", "93701", "FRESNO", 8, "LICENSED",
			nil, nil, now))

	f, err := repo.Get(context.Background(), "191234567")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "SUNSHINE HOME", f.Name)
	assert.Equal(t, 8, f.Capacity)
	assert.Nil(t, f.LicenseFirstDate)

	mock.ExpectQuery("FROM facilities WHERE facility_number").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(facilityCols))
	f, err = repo.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFacilityRepo_ListByCountyAndCount(t *testing.T) {
	db, mock := newMock(t)
	repo := NewFacilityRepo(db, time.Second)
	now := time.Now()

	rows := sqlmock.NewRows(facilityCols).
		AddRow("1", "", "", "A HOME", "", "", "", "", "", "ORANGE", 8, "LICENSED", nil, nil, now).
		AddRow("2", "", "", "B HOME", "", "", "", "", "", "ORANGE", 6, "LICENSED", nil, nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE UPPER(county) = UPPER($1)")).
		WithArgs("orange", 10).
		WillReturnRows(rows)

	list, err := repo.ListByCounty(context.Background(), "orange", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "B HOME", list[1].Name)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM facilities")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	n, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepo_UpsertBatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAssessmentRepo(db, time.Second)
	months := 12.5

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO risk_assessments .+` +
		regexp.QuoteMeta("ON CONFLICT (run_id, facility_number) DO UPDATE SET") + `.+fraud_score = EXCLUDED.fraud_score`)
	prep.ExpectExec().
		WithArgs("run-1", "191234567", 4, "{\"DUPLICATE_ADDRESS\",\"SHORT_LIVED\"}", 7, months).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.UpsertBatch(context.Background(), []persistence.Assessment{{
		RunID: "run-1", FacilityNumber: "191234567", FraudScore: 4,
		FraudFlags: []string{"DUPLICATE_ADDRESS", "SHORT_LIVED"}, RiskScore: 7, MonthsOperated: &months,
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepo_UpsertBatch_MissingRun(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAssessmentRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO risk_assessments")
	mock.ExpectRollback()

	err := repo.UpsertBatch(context.Background(), []persistence.Assessment{{FacilityNumber: "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no run id")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepo_Top(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAssessmentRepo(db, time.Second)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "run_id", "facility_number", "fraud_score", "fraud_flags", "risk_score", "months_operated", "created_at"}).
		AddRow(2, "run-1", "191234568", 5, "{COVID_ERA_LICENSE,SHORT_LIVED}", 9, 10.0, now).
		AddRow(1, "run-1", "191234567", 2, "{}", 6, nil, now)
	mock.ExpectQuery("FROM risk_assessments").
		WithArgs("run-1", 5, 20).
		WillReturnRows(rows)

	top, err := repo.Top(context.Background(), "run-1", 5, 20)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 9, top[0].RiskScore)
	assert.Equal(t, []string{"COVID_ERA_LICENSE", "SHORT_LIVED"}, []string(top[0].FraudFlags))
	require.NotNil(t, top[0].MonthsOperated)
	assert.Equal(t, 10.0, *top[0].MonthsOperated)
	assert.Empty(t, top[1].FraudFlags)
	assert.Nil(t, top[1].MonthsOperated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepo_LatestRun(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAssessmentRepo(db, time.Second)

	mock.ExpectQuery("SELECT run_id").WillReturnRows(sqlmock.NewRows([]string{"run_id"}).AddRow("run-2"))
	run, err := repo.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-2", run)

	mock.ExpectQuery("SELECT run_id").WillReturnRows(sqlmock.NewRows([]string{"run_id"}))
	run, err = repo.LatestRun(context.Background())
	require.NoError(t, err)
	assert.Empty(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()
	require.NoError(t, Migrate(context.Background(), db))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS facilities").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()
	err := Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration step 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}
