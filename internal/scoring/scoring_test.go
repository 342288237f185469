package scoring

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

func newFacility(number, licensee, address, status, first, closed string) facility.Facility {
	return facility.Facility{
		Number:           number,
		Name:             "DAYCARE " + number,
		Licensee:         licensee,
		Address:          address,
		City:             "Fresno",
		Status:           status,
		Capacity:         8,
		LicenseFirstDate: facility.ParseDate(first),
		ClosedDate:       facility.ParseDate(closed),
	}
}

func TestDetectIndicators(t *testing.T) {
	facilities := []facility.Facility{
		// shares an address, opened 2021, closed after 10 months
		newFacility("1", "ACME KIDS", "12 Oak St.", "CLOSED", "2021-01-01", "2021-10-28"),
		newFacility("2", "acme kids ", "12 OAK ST", "LICENSED", "2015-05-01", ""),
		newFacility("3", "ACME KIDS", "9 Elm", "LICENSED", "2022-06-01", ""),
		newFacility("4", "ACME KIDS", "10 Elm", "LICENSED", "2010-06-01", ""),
		newFacility("5", "ACME KIDS", "11 Elm", "CLOSED", "2019-06-01", "2020-01-01"),
		newFacility("6", "SOLO", "", "LICENSED", "", ""),
		newFacility("7", "SOLO", "", "CLOSED", "2020-02-01", "2023-02-01"),
	}

	res := DetectIndicators(facilities)
	require.Len(t, res.Indicators, len(facilities))

	first := res.Indicators[0]
	assert.Equal(t, []Flag{FlagDuplicateAddress, FlagHighVolumeLicensee, FlagCovidEraLicense, FlagShortLived}, first.Flags)
	assert.Equal(t, 6, first.Score)
	assert.Equal(t, "DUPLICATE_ADDRESS; HIGH_VOLUME_LICENSEE; COVID_ERA_LICENSE; SHORT_LIVED; ", first.FlagString())
	assert.Equal(t, 10.0, first.Months)
	assert.Contains(t, first.MapsURL, "12%20Oak%20St.%2C%20Fresno%2C%20CA")

	second := res.Indicators[1]
	assert.Equal(t, 3, second.Score)
	assert.False(t, second.Has(FlagCovidEraLicense))

	// blank addresses never group
	assert.False(t, res.Indicators[5].Has(FlagDuplicateAddress))
	assert.Equal(t, 0, res.Indicators[5].Score)

	// operated 36 months
	assert.False(t, res.Indicators[6].Has(FlagShortLived))
	assert.True(t, res.Indicators[6].Has(FlagCovidEraLicense))

	// pre-2020 license never counts as short lived
	assert.False(t, res.Indicators[4].Has(FlagShortLived))

	require.Len(t, res.DuplicateAddresses, 1)
	assert.Equal(t, report.Count{Key: "12 OAK ST, FRESNO", N: 2}, res.DuplicateAddresses[0])
	require.Len(t, res.MultiLicensees, 1)
	assert.Equal(t, "ACME KIDS", res.MultiLicensees[0].Key)

	assert.Len(t, res.AtDuplicateAddress(), 2)
	assert.Len(t, res.FromMultiLicensees(), 5)
	assert.Len(t, res.CovidEraLicensed(), 1)
	assert.Len(t, res.ShortLived(), 1)
	assert.Len(t, res.HighRisk(), 2)
	assert.Equal(t, 3, res.FlagCounts()[FlagCovidEraLicense])
	assert.Equal(t, 6, res.Scores()["1"])
}

func TestIndicatorTableRoundTrip(t *testing.T) {
	res := DetectIndicators([]facility.Facility{
		newFacility("1", "A", "1 MAIN", "CLOSED", "2021-01-01", "2021-10-28"),
		newFacility("2", "B", "1 MAIN", "LICENSED", "2021-01-01", ""),
	})

	table := IndicatorTable(res.HighRisk(), true, true)
	assert.True(t, table.HasColumn(report.ColMapsURL))
	recs := table.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "10.0", recs[0].Get(report.ColMonthsOperated))
	assert.Empty(t, recs[1].Get(report.ColMonthsOperated))

	back := IndicatorFromRecord(recs[0])
	assert.Equal(t, 5, back.Score)
	assert.Equal(t, res.Indicators[0].Flags, back.Flags)
	assert.Equal(t, res.Indicators[0].MapsURL, back.MapsURL)
}

func TestScoreRisk(t *testing.T) {
	tests := []struct {
		name    string
		f       facility.Facility
		shared  bool
		generic bool
		want    int
	}{
		{"clean", newFacility("1", "A", "1 A", "LICENSED", "2012-01-01", ""), false, false, 0},
		{"covid only", newFacility("2", "A", "1 A", "LICENSED", "2021-01-01", ""), false, false, 2},
		{"inactive", newFacility("3", "A", "1 A", "inactive", "2012-01-01", ""), false, false, 2},
		{"short run closed covid", newFacility("4", "A", "1 A", "CLOSED", "2021-01-01", "2021-06-01"), false, false, 7},
		{"everything", newFacility("5", "A", "1 A", "CLOSED", "2021-01-01", "2021-06-01"), true, true, MaxRiskScore},
		{"zero months", newFacility("6", "A", "1 A", "CLOSED", "2015-01-01", "2015-01-01"), false, false, 2},
		{"closed before opening", newFacility("7", "A", "1 A", "CLOSED", "2015-01-01", "2014-01-01"), false, false, 2},
	}

	var facilities []facility.Facility
	signals := RiskSignals{}
	for _, tt := range tests {
		facilities = append(facilities, tt.f)
		signals.SharedPhone = append(signals.SharedPhone, tt.shared)
		signals.GenericName = append(signals.GenericName, tt.generic)
	}
	got := ScoreRisk(facilities, signals)

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, got[i].Score)
		})
	}

	noSignals := ScoreRisk(facilities[:1], RiskSignals{})
	assert.Equal(t, 0, noSignals[0].Score)
}

func TestScoreRisk_MapsURL(t *testing.T) {
	got := ScoreRisk([]facility.Facility{
		newFacility("1", "A", "UNAVAILABLE", "LICENSED", "", ""),
		newFacility("2", "A", "", "LICENSED", "", ""),
		newFacility("3", "A", "5 B ST", "LICENSED", "", ""),
	}, RiskSignals{})

	assert.Empty(t, got[0].MapsURL)
	assert.Empty(t, got[1].MapsURL)
	assert.NotEmpty(t, got[2].MapsURL)
}

func TestPriorityAndDistribution(t *testing.T) {
	assessments := []Assessment{
		{Facility: facility.Facility{Number: "a"}, Score: 5},
		{Facility: facility.Facility{Number: "b"}, Score: 9},
		{Facility: facility.Facility{Number: "c"}, Score: 2},
		{Facility: facility.Facility{Number: "d"}, Score: 5},
		{Facility: facility.Facility{Number: "e"}, Score: 9},
	}

	priority := Priority(assessments, PriorityThreshold)
	var order []string
	for _, a := range priority {
		order = append(order, a.Facility.Number)
	}
	assert.Equal(t, []string{"b", "e", "a", "d"}, order)

	assert.Equal(t, []ScoreCount{{9, 2}, {5, 2}, {2, 1}}, Distribution(assessments))

	table := PriorityTable(priority)
	assert.Equal(t, PriorityColumns, table.Header)
	assert.Equal(t, "b", table.Records()[0].Get(facility.ColNumber))

	back := AssessmentFromRecord(table.Records()[0])
	assert.Equal(t, 9, back.Score)
	assert.False(t, back.HasMonths)
}

func TestSummaryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risk_summary.json")
	assessments := []Assessment{{Score: 7}, {Score: 1}}
	s := NewSummary(assessments, assessments[:1], time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	s.RunID = "run-1"

	require.NoError(t, WriteSummary(path, s))
	back, err := ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, s, back)
}
