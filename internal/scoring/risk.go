package scoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/links"
	"github.com/sawpanic/daycarewatch/internal/report"
)

const (
	// PriorityThreshold is the composite score that puts a facility on the priority list
	PriorityThreshold = 5
	// MaxRiskScore is the highest composite score a facility can reach
	MaxRiskScore = 10
)

// Composite score weights
const (
	weightCovidEra    = 2
	weightClosed      = 2
	weightShortRun    = 3
	weightSharedPhone = 2
	weightGenericName = 1
)

// Assessment is the composite risk score for one facility
type Assessment struct {
	Facility  facility.Facility
	Score     int
	Months    float64
	HasMonths bool
	MapsURL   string
}

// RiskSignals carries the per-facility findings from the phone and licensee
// screens. Both slices are indexed like the facilities; nil means no signal.
type RiskSignals struct {
	SharedPhone []bool
	GenericName []bool
}

func (s RiskSignals) shared(i int) bool  { return i < len(s.SharedPhone) && s.SharedPhone[i] }
func (s RiskSignals) generic(i int) bool { return i < len(s.GenericName) && s.GenericName[i] }

// ScoreRisk computes the composite score for every facility
func ScoreRisk(facilities []facility.Facility, signals RiskSignals) []Assessment {
	out := make([]Assessment, len(facilities))
	for i := range facilities {
		f := &facilities[i]
		a := Assessment{Facility: *f, MapsURL: links.FacilityMapsURL(f)}

		if f.IsCovidEra() {
			a.Score += weightCovidEra
		}
		switch f.StatusUpper() {
		case facility.StatusClosed, facility.StatusInactive:
			a.Score += weightClosed
		}
		if m, ok := f.MonthsOperated(); ok {
			a.Months, a.HasMonths = m, true
			if m > 0 && m < shortLivedMonths {
				a.Score += weightShortRun
			}
		}
		if signals.shared(i) {
			a.Score += weightSharedPhone
		}
		if signals.generic(i) {
			a.Score += weightGenericName
		}
		out[i] = a
	}
	return out
}

// Priority returns assessments at or above minScore, highest first. Ties keep input order.
func Priority(assessments []Assessment, minScore int) []Assessment {
	var out []Assessment
	for _, a := range assessments {
		if a.Score >= minScore {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// PriorityColumns is the column layout of PRIORITY_INVESTIGATION_LIST.csv
var PriorityColumns = []string{
	facility.ColNumber,
	facility.ColName,
	facility.ColLicensee,
	facility.ColAddress,
	facility.ColCity,
	facility.ColZip,
	facility.ColCounty,
	facility.ColCapacity,
	facility.ColStatus,
	facility.ColLicenseFirst,
	facility.ColClosed,
	report.ColMonthsOperated,
	facility.ColTelephone,
	report.ColRiskScore,
	report.ColMapsURL,
}

// PriorityTable renders the priority investigation list
func PriorityTable(assessments []Assessment) *report.Table {
	t := report.NewTable(PriorityColumns...)
	for i := range assessments {
		a := &assessments[i]
		f := &a.Facility
		t.Append(
			f.Number,
			f.Name,
			f.Licensee,
			f.Address,
			f.City,
			f.Zip,
			f.County,
			strconv.Itoa(f.Capacity),
			f.Status,
			facility.FormatDate(f.LicenseFirstDate),
			facility.FormatDate(f.ClosedDate),
			formatMonths(a.Months, a.HasMonths),
			f.Telephone,
			strconv.Itoa(a.Score),
			a.MapsURL,
		)
	}
	return t
}

// AssessmentFromRecord rebuilds an assessment from a priority list row
func AssessmentFromRecord(rec report.Record) Assessment {
	a := Assessment{
		Facility: report.FacilityFromRecord(rec),
		Score:    rec.Int(report.ColRiskScore),
		MapsURL:  rec.Get(report.ColMapsURL),
	}
	a.Months, a.HasMonths = rec.Float(report.ColMonthsOperated)
	return a
}

// ScoreCount is the number of facilities at one composite score
type ScoreCount struct {
	Score int `json:"score"`
	Count int `json:"count"`
}

// Distribution counts facilities per score, highest score first
func Distribution(assessments []Assessment) []ScoreCount {
	counts := make(map[int]int)
	for _, a := range assessments {
		counts[a.Score]++
	}
	out := make([]ScoreCount, 0, len(counts))
	for s, n := range counts {
		out = append(out, ScoreCount{Score: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Summary is written to risk_summary.json alongside the priority list
type Summary struct {
	RunID        string       `json:"run_id,omitempty"`
	GeneratedAt  time.Time    `json:"generated_at"`
	Facilities   int          `json:"facilities"`
	Priority     int          `json:"priority"`
	Threshold    int          `json:"threshold"`
	Distribution []ScoreCount `json:"distribution"`
}

// NewSummary summarizes a scoring run
func NewSummary(assessments, priority []Assessment, now time.Time) Summary {
	return Summary{
		GeneratedAt:  now.UTC(),
		Facilities:   len(assessments),
		Priority:     len(priority),
		Threshold:    PriorityThreshold,
		Distribution: Distribution(assessments),
	}
}

// WriteSummary saves s as indented JSON
func WriteSummary(path string, s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal risk summary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// ReadSummary loads a summary written by WriteSummary
func ReadSummary(path string) (Summary, error) {
	var s Summary
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse %s: %w", path, err)
	}
	return s, nil
}
