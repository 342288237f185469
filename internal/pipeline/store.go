package pipeline

import (
	"context"
	"errors"
	"io/fs"

	"github.com/lib/pq"

	"github.com/sawpanic/daycarewatch/internal/analysis"
	"github.com/sawpanic/daycarewatch/internal/persistence"
	"github.com/sawpanic/daycarewatch/internal/report"
	"github.com/sawpanic/daycarewatch/internal/scoring"
)

const loadBatchSize = 1000

// LoadResult reports what LoadDB stored
type LoadResult struct {
	RunID       string
	Facilities  int
	Assessments int
}

// LoadDB stores the registry and the scores of the workspace. Assessments
// are filed under the run ID of risk_summary.json when deep has run, else
// under this run's ID. Facilities without a score are stored without an
// assessment.
func (r *Runner) LoadDB(ctx context.Context, repo *persistence.Repository) (LoadResult, error) {
	var res LoadResult
	err := r.step(ctx, StageDBLoad, func(ctx context.Context) error {
		var err error
		res, err = r.loadDB(ctx, repo)
		return err
	})
	return res, err
}

func (r *Runner) loadDB(ctx context.Context, repo *persistence.Repository) (LoadResult, error) {
	res := LoadResult{RunID: r.runID}
	summary, err := scoring.ReadSummary(r.ws.Path(report.FileRiskSummary))
	switch {
	case err == nil && summary.RunID != "":
		res.RunID = summary.RunID
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return res, err
	}

	facilities, err := r.loadFacilities()
	if err != nil {
		return res, err
	}
	ind := scoring.DetectIndicators(facilities)
	phones := analysis.DuplicatePhones(facilities)
	lic := analysis.LicenseePatterns(facilities)
	risk := scoring.ScoreRisk(facilities, scoring.RiskSignals{SharedPhone: phones.SharedPhone, GenericName: lic.GenericName})

	seen := make(map[string]bool, len(facilities))
	var records []persistence.FacilityRecord
	var assessments []persistence.Assessment
	for i := range facilities {
		f := &facilities[i]
		if f.Number == "" || seen[f.Number] {
			continue
		}
		seen[f.Number] = true
		records = append(records, persistence.NewFacilityRecord(f))

		in, a := &ind.Indicators[i], &risk[i]
		if in.Score == 0 && a.Score == 0 {
			continue
		}
		pa := persistence.Assessment{
			RunID:          res.RunID,
			FacilityNumber: f.Number,
			FraudScore:     in.Score,
			FraudFlags:     pq.StringArray{},
			RiskScore:      a.Score,
		}
		for _, flag := range in.Flags {
			pa.FraudFlags = append(pa.FraudFlags, string(flag))
		}
		if a.HasMonths {
			m := a.Months
			pa.MonthsOperated = &m
		}
		assessments = append(assessments, pa)
	}

	for start := 0; start < len(records); start += loadBatchSize {
		end := min(start+loadBatchSize, len(records))
		if err := repo.Facilities.UpsertBatch(ctx, records[start:end]); err != nil {
			return res, err
		}
		res.Facilities = end
	}
	for start := 0; start < len(assessments); start += loadBatchSize {
		end := min(start+loadBatchSize, len(assessments))
		if err := repo.Assessments.UpsertBatch(ctx, assessments[start:end]); err != nil {
			return res, err
		}
		res.Assessments = end
	}

	r.ws.Console.Printf("Stored %d facilities and %d assessments (run %s)", res.Facilities, res.Assessments, res.RunID)
	return res, nil
}
