package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/daycarewatch/internal/cache"
	"github.com/sawpanic/daycarewatch/internal/config"
	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/links"
	"github.com/sawpanic/daycarewatch/internal/metrics"
	"github.com/sawpanic/daycarewatch/internal/net/client"
	"github.com/sawpanic/daycarewatch/internal/persistence"
	"github.com/sawpanic/daycarewatch/internal/report"
	"github.com/sawpanic/daycarewatch/internal/scoring"
)

const homesCSV = `Facility Type,Facility Number,Facility Name,Licensee,Facility Administrator,Facility Telephone Number,Facility Address,Facility City,Facility State,Facility Zip,County Name,Regional Office,Facility Capacity,Facility Status,License First Date,Closed Date
FAMILY CHILD CARE HOME,191000001,LITTLE STARS CARE,"DOE, JOHN",,(213) 555-0101,100 Oak St,Los Angeles,CA,90001,LOS ANGELES,LA,8,CLOSED,1/15/2021,6/15/2022
FAMILY CHILD CARE HOME,191000002,SUNSHINE HOME,"ROE, JANE",,213-555-0101,100 Oak St.,Los Angeles,CA,90001,LOS ANGELES,LA,6,LICENSED,3/1/2020,
FAMILY CHILD CARE HOME,191000003,HAPPY KIDS,KIDZ LEARNING CENTER LLC,,2135550101,200 Pine Ave,Fresno,CA,93701,FRESNO,CV,12,LICENSED,5/5/2021,
FAMILY CHILD CARE HOME,191000004,OAK TREE,SMITH FAMILY,,(559) 555-0199,300 Elm Rd,Fresno,CA,93702,FRESNO,CV,14,LICENSED,1/1/2015,
FAMILY CHILD CARE HOME,191000005,PENDING PLACE,"LEE, ANN",,,400 Birch Ln,Sacramento,CA,95814,SACRAMENTO,SAC,0,PENDING,,
`

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeBrowser struct {
	mu     sync.Mutex
	opened []string
}

func (f *fakeBrowser) Open(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	return nil
}

type harness struct {
	runner  *Runner
	metrics *metrics.Registry
	out     *bytes.Buffer
	browser *fakeBrowser
	dir     string
}

func newHarness(t *testing.T, endpoints Endpoints, mutate ...func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace = t.TempDir()
	for _, m := range mutate {
		m(cfg)
	}
	h := &harness{metrics: metrics.NewRegistry(), out: &bytes.Buffer{}, browser: &fakeBrowser{}, dir: cfg.Workspace}
	h.runner = NewRunner(cfg, Options{
		Out:       h.out,
		In:        strings.NewReader("\n\n\n"),
		Browser:   h.browser,
		Metrics:   h.metrics,
		Cache:     cache.NewMemory(),
		Endpoints: endpoints,
		Now:       func() time.Time { return testNow },
		OpenDelay: time.Nanosecond,
	})
	t.Cleanup(func() { h.runner.Close() })
	return h
}

func (h *harness) seed(t *testing.T) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, facility.DatasetHomes.RawFile()), []byte(homesCSV), 0o644))
}

func (h *harness) table(t *testing.T, name string) *report.Table {
	t.Helper()
	tbl, err := report.ReadFile(filepath.Join(h.dir, name))
	require.NoError(t, err)
	return tbl
}

func (h *harness) steps(stage, result string) float64 {
	return testutil.ToFloat64(h.metrics.Steps.WithLabelValues(stage, result))
}

func (h *harness) screen(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.runner.Indicators(ctx))
	require.NoError(t, h.runner.Deep(ctx))
}

func TestLowCapacityStage(t *testing.T) {
	h := newHarness(t, Endpoints{})
	h.seed(t)

	require.NoError(t, h.runner.LowCapacity(context.Background()))

	assert.Equal(t, 3, h.table(t, report.FileLowCapacity).Len())
	assert.Equal(t, 1, h.table(t, report.FileSuspiciousLowCap).Len())
	assert.Equal(t, 2, h.table(t, report.FileLicensedLowCap).Len())
	assert.Contains(t, h.out.String(), "Low-capacity facilities (capacity < 14): 3")
	assert.Contains(t, h.out.String(), "Capacity range in low-cap: 6 - 12")
	assert.Contains(t, h.out.String(), "By type\n"+strings.Repeat("-", 40)+"\n  "+fmt.Sprintf("%-40s %d", "FAMILY CHILD CARE HOME", 3))
	assert.Contains(t, h.out.String(), "By dataset\n")
	assert.Equal(t, 5.0, testutil.ToFloat64(h.metrics.FacilitiesTotal))
	assert.Equal(t, 1.0, h.steps(StageLowCap, metrics.ResultSuccess))
}

func TestIndicatorsStage(t *testing.T) {
	h := newHarness(t, Endpoints{})
	h.seed(t)

	require.NoError(t, h.runner.Indicators(context.Background()))

	assert.Equal(t, 2, h.table(t, report.FileDuplicateAddresses).Len())
	assert.Equal(t, 0, h.table(t, report.FileMultiLicensees).Len())
	assert.Equal(t, 2, h.table(t, report.FileCovidEra).Len(), "only LICENSED COVID-era facilities")
	assert.Equal(t, 1, h.table(t, report.FileShortLived).Len())

	high := h.table(t, report.FileHighRisk).Records()
	require.Len(t, high, 2)
	first := scoring.IndicatorFromRecord(high[0])
	assert.Equal(t, "191000001", first.Facility.Number)
	assert.Equal(t, 5, first.Score)
	assert.Equal(t, []scoring.Flag{scoring.FlagDuplicateAddress, scoring.FlagCovidEraLicense, scoring.FlagShortLived}, first.Flags)
	assert.Equal(t, "17.2", high[0].Get(report.ColMonthsOperated))
	assert.NotEmpty(t, first.MapsURL)

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Flagged.WithLabelValues(string(scoring.FlagDuplicateAddress))))
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.Flagged.WithLabelValues(string(scoring.FlagCovidEraLicense))))
	assert.Contains(t, h.out.String(), "HIGH-RISK (score >= 3): 2")
}

func TestDeepStage(t *testing.T) {
	h := newHarness(t, Endpoints{})
	h.seed(t)

	require.NoError(t, h.runner.Deep(context.Background()))

	priority := h.table(t, report.FilePriority)
	assert.Equal(t, scoring.PriorityColumns, priority.Header)
	rows := priority.Records()
	require.Len(t, rows, 2)
	assert.Equal(t, "191000001", rows[0].Get(facility.ColNumber))
	assert.Equal(t, 9, rows[0].Int(report.ColRiskScore))
	assert.Equal(t, "191000003", rows[1].Get(facility.ColNumber))
	assert.Equal(t, 5, rows[1].Int(report.ColRiskScore))

	groups := h.table(t, report.FilePhoneGroups).Records()
	require.Len(t, groups, 1)
	assert.Equal(t, "2135550101", groups[0].Get("phone"))
	assert.Equal(t, "HIGH - Different licensees!", groups[0].Get("suspicion_level"))

	dups := h.table(t, report.FilePhoneFacilities).Records()
	require.Len(t, dups, 3)
	scores := map[string]int{}
	for _, rec := range dups {
		scores[rec.Get(facility.ColNumber)] = rec.Int(report.ColRiskScore)
	}
	assert.Equal(t, map[string]int{"191000001": 9, "191000002": 4, "191000003": 5}, scores)

	summary, err := scoring.ReadSummary(filepath.Join(h.dir, report.FileRiskSummary))
	require.NoError(t, err)
	assert.Equal(t, h.runner.RunID(), summary.RunID)
	assert.Equal(t, 5, summary.Facilities)
	assert.Equal(t, 2, summary.Priority)
	assert.Equal(t, testNow, summary.GeneratedAt)
	require.NotEmpty(t, summary.Distribution)
	assert.Equal(t, scoring.ScoreCount{Score: 9, Count: 1}, summary.Distribution[0])

	assert.FileExists(t, filepath.Join(h.dir, report.FileGeoClusters))
	assert.Contains(t, h.out.String(), "1. LITTLE STARS CARE (Risk Score: 9)")
}

func TestLinksStage(t *testing.T) {
	h := newHarness(t, Endpoints{})
	h.seed(t)
	ctx := context.Background()
	require.NoError(t, h.runner.Deep(ctx))

	require.NoError(t, h.runner.Links(ctx, LinksOptions{Open: true, Top: 1}))

	enriched := h.table(t, report.FileInvestigationLinks)
	for _, col := range links.LinkColumns {
		assert.True(t, enriched.HasColumn(col), col)
	}
	assert.Equal(t, 2, enriched.Len())

	html, err := os.ReadFile(filepath.Join(h.dir, report.FileInvestigationReport))
	require.NoError(t, err)
	assert.Contains(t, string(html), "LITTLE STARS CARE")
	assert.Contains(t, string(html), "score-9")

	require.Len(t, h.browser.opened, 3)
	assert.Contains(t, h.browser.opened[0], "google.com/maps")
}

func TestLinksStage_NeedsPriorityList(t *testing.T) {
	h := newHarness(t, Endpoints{})

	err := h.runner.Links(context.Background(), LinksOptions{})
	require.ErrorIs(t, err, ErrMissingArtifact)
	assert.Contains(t, err.Error(), "run deep first")
	assert.Equal(t, 1.0, h.steps(StageLinks, metrics.ResultError))
}

func TestRun_FetchThroughLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/homes.csv" {
			fmt.Fprint(w, homesCSV)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	h := newHarness(t, Endpoints{Registry: map[facility.Dataset]string{
		facility.DatasetCenters: srv.URL + "/centers.csv",
		facility.DatasetHomes:   srv.URL + "/homes.csv",
	}})

	require.NoError(t, h.runner.Run(context.Background(), nil))

	for _, stage := range RunStages {
		assert.Equal(t, 1.0, h.steps(stage, metrics.ResultSuccess), stage)
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.ActiveRuns))
	assert.FileExists(t, filepath.Join(h.dir, facility.DatasetHomes.RawFile()))
	assert.NoFileExists(t, filepath.Join(h.dir, facility.DatasetCenters.RawFile()))
	assert.FileExists(t, filepath.Join(h.dir, report.FileInvestigationReport))
	assert.Contains(t, h.out.String(), "family_child_care_homes: 5 records")
	assert.Positive(t, testutil.ToFloat64(h.metrics.Requests.WithLabelValues(config.SourceRegistry, client.OutcomeOK)))
}

func TestRun_AbortsOnFirstError(t *testing.T) {
	h := newHarness(t, Endpoints{})

	err := h.runner.Run(context.Background(), []string{StageLowCap, StageIndicators})
	require.Error(t, err)
	assert.ErrorIs(t, err, facility.ErrNoData)
	assert.Contains(t, err.Error(), h.runner.RunID())

	assert.Equal(t, 1.0, h.steps(StageLowCap, metrics.ResultError))
	assert.Equal(t, 0.0, h.steps(StageIndicators, metrics.ResultError))
	assert.Equal(t, 0.0, h.steps(StageIndicators, metrics.ResultSuccess))
}

func TestStage_Unknown(t *testing.T) {
	h := newHarness(t, Endpoints{})
	assert.ErrorContains(t, h.runner.Stage(context.Background(), "bogus"), "unknown stage")
}

func reportPage(body string) string {
	filler := strings.Repeat("<p>This page lists the inspection narrative for the facility.</p>", 10)
	return "<html><body><h2>Facility Evaluation Report</h2><p>" + body + "</p>" + filler + "</body></html>"
}

func TestInspectStage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("facNum") == "191000001" && q.Get("inx") == "0" {
			fmt.Fprint(w, reportPage("Visit 4/2/2022. TYPE A violation cited."))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	h := newHarness(t, Endpoints{CCLD: srv.URL})
	h.seed(t)
	ctx := context.Background()
	require.NoError(t, h.runner.Deep(ctx))

	require.NoError(t, h.runner.Inspect(ctx))

	found := h.table(t, report.FileInspectionReports).Records()
	require.Len(t, found, 1)
	assert.Equal(t, "4/2/2022", found[0].Get("date"))

	violations := h.table(t, report.FileViolations).Records()
	require.Len(t, violations, 1)
	assert.Equal(t, "191000001", violations[0].Get("facility_number"))
	assert.Equal(t, "True", violations[0].Get("type_a_violation"))
}

func TestInspectStage_NoTargets(t *testing.T) {
	h := newHarness(t, Endpoints{}, func(c *config.Config) { c.Analysis.InspectMinRisk = 10 })
	h.seed(t)
	ctx := context.Background()
	require.NoError(t, h.runner.Deep(ctx))

	require.NoError(t, h.runner.Inspect(ctx))
	assert.Equal(t, 1.0, h.steps(StageInspect, metrics.ResultSkipped))
	assert.NoFileExists(t, filepath.Join(h.dir, report.FileInspectionReports))
}

func TestCACFPStage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>Sunny Center, 123 Main Street, San Francisco, CA 94103</p></body></html>")
	}))
	defer srv.Close()

	h := newHarness(t, Endpoints{CACFPCounty: srv.URL + "/Centers/PartialCounty"},
		func(c *config.Config) { c.Analysis.Counties = []string{"San Francisco"} })
	h.seed(t)
	ctx := context.Background()
	require.NoError(t, h.runner.Indicators(ctx))

	sites := filepath.Join(t.TempDir(), "sites.csv")
	require.NoError(t, os.WriteFile(sites, []byte("Name,Address,City\nLittle Stars Care,100 Oak St,Los Angeles\nUnrelated Meals Program,1 A St,Yuba\n"), 0o644))

	require.NoError(t, h.runner.CACFP(ctx, CACFPOptions{SitesPath: sites, SkipImpact: true}))

	probes := h.table(t, report.FileCACFPCounties).Records()
	require.Len(t, probes, 1)
	assert.Equal(t, "San Francisco", probes[0].Get("county"))
	assert.Equal(t, 1, probes[0].Int("addresses_found"))

	matches := h.table(t, report.FileCACFPMatches).Records()
	require.Len(t, matches, 1)
	assert.Equal(t, "191000001", matches[0].Get("facility_number"))
	assert.Equal(t, "facility_name", matches[0].Get("matched_on"))
}

func TestNetworksStage(t *testing.T) {
	h := newHarness(t, Endpoints{})
	h.seed(t)
	h.screen(t)

	require.NoError(t, h.runner.Networks(context.Background()))

	for _, name := range []string{report.FileOwnerNetworkMap, report.FileAddressNetworkMap, report.FilePhoneNetworkMap} {
		assert.FileExists(t, filepath.Join(h.dir, name))
	}
	assert.Contains(t, h.out.String(), "Phone Networks: 1 networks")
	assert.Contains(t, h.out.String(), "Address Networks: 1 networks")
}

func TestNetworksStage_MissingInputs(t *testing.T) {
	h := newHarness(t, Endpoints{})

	err := h.runner.Networks(context.Background())
	require.ErrorIs(t, err, ErrMissingArtifact)
	assert.Equal(t, 1.0, h.steps(StageNetworks, metrics.ResultError))
}

type fakeFacilities struct {
	persistence.FacilityRepo
	stored []persistence.FacilityRecord
}

func (f *fakeFacilities) UpsertBatch(_ context.Context, batch []persistence.FacilityRecord) error {
	f.stored = append(f.stored, batch...)
	return nil
}

// fakeAssessments keeps one row per run and facility like the unique key does
type fakeAssessments struct {
	persistence.AssessmentRepo
	stored []persistence.Assessment
	writes int
}

func (f *fakeAssessments) UpsertBatch(_ context.Context, batch []persistence.Assessment) error {
	for _, a := range batch {
		f.writes++
		replaced := false
		for i := range f.stored {
			if f.stored[i].RunID == a.RunID && f.stored[i].FacilityNumber == a.FacilityNumber {
				f.stored[i], replaced = a, true
				break
			}
		}
		if !replaced {
			f.stored = append(f.stored, a)
		}
	}
	return nil
}

func TestLoadDB(t *testing.T) {
	h := newHarness(t, Endpoints{})
	h.seed(t)
	require.NoError(t, h.runner.Deep(context.Background()))

	// a later invocation files the scores under the run that produced them
	cfg := config.Default()
	cfg.Workspace = h.dir
	later := NewRunner(cfg, Options{Out: &bytes.Buffer{}, Cache: cache.NewMemory()})

	facilities, assessments := &fakeFacilities{}, &fakeAssessments{}
	res, err := later.LoadDB(context.Background(), &persistence.Repository{Facilities: facilities, Assessments: assessments})
	require.NoError(t, err)

	assert.Equal(t, h.runner.RunID(), res.RunID)
	assert.Equal(t, 5, res.Facilities)
	assert.Equal(t, 3, res.Assessments)
	require.Len(t, facilities.stored, 5)
	assert.Equal(t, "family_child_care_homes", facilities.stored[0].Dataset)

	require.Len(t, assessments.stored, 3)
	first := assessments.stored[0]
	assert.Equal(t, "191000001", first.FacilityNumber)
	assert.Equal(t, 5, first.FraudScore)
	assert.Equal(t, 9, first.RiskScore)
	assert.Equal(t, []string{"DUPLICATE_ADDRESS", "COVID_ERA_LICENSE", "SHORT_LIVED"}, []string(first.FraudFlags))
	require.NotNil(t, first.MonthsOperated)
	assert.InDelta(t, 17.2, *first.MonthsOperated, 0.001)
	assert.Nil(t, assessments.stored[1].MonthsOperated)
}

func TestLoadDB_ReloadKeepsOneAssessmentPerFacility(t *testing.T) {
	h := newHarness(t, Endpoints{})
	h.seed(t)
	require.NoError(t, h.runner.Deep(context.Background()))

	repo := &persistence.Repository{Facilities: &fakeFacilities{}, Assessments: &fakeAssessments{}}
	first, err := h.runner.LoadDB(context.Background(), repo)
	require.NoError(t, err)
	second, err := h.runner.LoadDB(context.Background(), repo)
	require.NoError(t, err)

	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.Assessments, second.Assessments)
	assessments := repo.Assessments.(*fakeAssessments)
	assert.Equal(t, 6, assessments.writes)
	assert.Len(t, assessments.stored, 3)
}

func TestLoadDB_WithoutSummaryUsesOwnRunID(t *testing.T) {
	h := newHarness(t, Endpoints{})
	h.seed(t)

	res, err := h.runner.LoadDB(context.Background(), &persistence.Repository{Facilities: &fakeFacilities{}, Assessments: &fakeAssessments{}})
	require.NoError(t, err)
	assert.Equal(t, h.runner.RunID(), res.RunID)
	assert.Equal(t, 1.0, h.steps(StageDBLoad, metrics.ResultSuccess))
}

func TestWorkspace_ReadTable(t *testing.T) {
	ws := NewWorkspace(t.TempDir(), nil)

	_, err := ws.ReadTable(report.FileHighRisk)
	require.ErrorIs(t, err, ErrMissingArtifact)
	assert.Contains(t, err.Error(), "run indicators first")

	_, err = ws.ReadTable("other.csv")
	require.ErrorIs(t, err, ErrMissingArtifact)

	tbl := report.NewTable("a", "b")
	tbl.Append("1", "2")
	require.NoError(t, ws.WriteTable("x.csv", tbl))
	assert.True(t, ws.Exists("x.csv"))

	got, err := ws.ReadTable("x.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
}
