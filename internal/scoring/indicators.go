// Package scoring assigns fraud indicator scores and composite risk scores to
// licensed facilities.
package scoring

import (
	"strconv"
	"strings"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/links"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// Flag names an indicator raised on a facility
type Flag string

const (
	FlagDuplicateAddress   Flag = "DUPLICATE_ADDRESS"
	FlagHighVolumeLicensee Flag = "HIGH_VOLUME_LICENSEE"
	FlagCovidEraLicense    Flag = "COVID_ERA_LICENSE"
	FlagShortLived         Flag = "SHORT_LIVED"
)

// Flags lists every indicator in scoring order
var Flags = []Flag{FlagDuplicateAddress, FlagHighVolumeLicensee, FlagCovidEraLicense, FlagShortLived}

// Weight is the score an indicator contributes
func (f Flag) Weight() int {
	switch f {
	case FlagDuplicateAddress, FlagShortLived:
		return 2
	case FlagHighVolumeLicensee, FlagCovidEraLicense:
		return 1
	}
	return 0
}

const (
	// HighRiskThreshold is the fraud score at which a facility is reported as high risk
	HighRiskThreshold = 3

	multiLicenseeReport = 3
	highVolumeLicensee  = 5
	shortLivedMonths    = 24
	shortLivedMinYear   = 2020
)

// Indicator is the indicator outcome for one facility
type Indicator struct {
	Facility    facility.Facility
	FullAddress string
	Licensee    string // normalized
	Score       int
	Flags       []Flag
	Months      float64 // set for short-lived facilities
	MapsURL     string  // set for high-risk facilities
}

// Has reports whether flag was raised
func (in *Indicator) Has(flag Flag) bool {
	for _, f := range in.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// FlagString joins the flags the way the artifacts record them, each followed by "; "
func (in *Indicator) FlagString() string {
	var b strings.Builder
	for _, f := range in.Flags {
		b.WriteString(string(f))
		b.WriteString("; ")
	}
	return b.String()
}

func (in *Indicator) raise(flag Flag) {
	in.Flags = append(in.Flags, flag)
	in.Score += flag.Weight()
}

// IndicatorResult collects per-facility indicators and the groups behind them
type IndicatorResult struct {
	Indicators []Indicator // indexed like the input

	DuplicateAddresses []report.Count // addresses with more than one facility
	MultiLicensees     []report.Count // licensees with multiLicenseeReport or more facilities

	duplicateAddress map[string]bool
	multiLicensee    map[string]bool
}

// DetectIndicators scores every facility on the four fraud indicators.
func DetectIndicators(facilities []facility.Facility) *IndicatorResult {
	res := &IndicatorResult{
		Indicators:       make([]Indicator, len(facilities)),
		duplicateAddress: make(map[string]bool),
		multiLicensee:    make(map[string]bool),
	}

	addresses := make(map[string]int)
	licensees := make(map[string]int)
	for i := range facilities {
		in := &res.Indicators[i]
		in.Facility = facilities[i]
		in.FullAddress = facility.FullAddress(&facilities[i])
		in.Licensee = facility.NormalizeLicensee(facilities[i].Licensee)
		if in.FullAddress != "" {
			addresses[in.FullAddress]++
		}
		if in.Licensee != "" {
			licensees[in.Licensee]++
		}
	}

	for _, c := range report.SortCounts(addresses) {
		if c.N > 1 {
			res.DuplicateAddresses = append(res.DuplicateAddresses, c)
			res.duplicateAddress[c.Key] = true
		}
	}
	for _, c := range report.SortCounts(licensees) {
		if c.N >= multiLicenseeReport {
			res.MultiLicensees = append(res.MultiLicensees, c)
			res.multiLicensee[c.Key] = true
		}
	}

	for i := range res.Indicators {
		in := &res.Indicators[i]
		f := &in.Facility

		if res.duplicateAddress[in.FullAddress] {
			in.raise(FlagDuplicateAddress)
		}
		if in.Licensee != "" && licensees[in.Licensee] >= highVolumeLicensee {
			in.raise(FlagHighVolumeLicensee)
		}
		if f.IsCovidEra() {
			in.raise(FlagCovidEraLicense)
		}
		if months, ok := f.MonthsOperated(); ok && isShortLived(f, months) {
			in.Months = months
			in.raise(FlagShortLived)
		}

		if in.Score >= HighRiskThreshold {
			in.MapsURL = links.MapsURL(f.Address, f.City)
		}
	}

	return res
}

func isShortLived(f *facility.Facility, months float64) bool {
	return f.LicenseYear() >= shortLivedMinYear && f.StatusUpper() == facility.StatusClosed && months < shortLivedMonths
}

// Select returns the indicators matching keep, in input order
func (r *IndicatorResult) Select(keep func(*Indicator) bool) []Indicator {
	var out []Indicator
	for i := range r.Indicators {
		if keep(&r.Indicators[i]) {
			out = append(out, r.Indicators[i])
		}
	}
	return out
}

// AtDuplicateAddress returns facilities sharing their full address with another
func (r *IndicatorResult) AtDuplicateAddress() []Indicator {
	return r.Select(func(in *Indicator) bool { return in.Has(FlagDuplicateAddress) })
}

// FromMultiLicensees returns facilities whose licensee runs three or more facilities
func (r *IndicatorResult) FromMultiLicensees() []Indicator {
	return r.Select(func(in *Indicator) bool { return r.multiLicensee[in.Licensee] })
}

// CovidEraLicensed returns COVID-era licenses that are still LICENSED
func (r *IndicatorResult) CovidEraLicensed() []Indicator {
	return r.Select(func(in *Indicator) bool {
		return in.Has(FlagCovidEraLicense) && in.Facility.IsLicensed()
	})
}

// ShortLived returns facilities opened 2020 or later that closed within two years
func (r *IndicatorResult) ShortLived() []Indicator {
	return r.Select(func(in *Indicator) bool { return in.Has(FlagShortLived) })
}

// HighRisk returns facilities at or above HighRiskThreshold
func (r *IndicatorResult) HighRisk() []Indicator {
	return r.Select(func(in *Indicator) bool { return in.Score >= HighRiskThreshold })
}

// FlagCounts tallies how many facilities raised each flag
func (r *IndicatorResult) FlagCounts() map[Flag]int {
	counts := make(map[Flag]int, len(Flags))
	for i := range r.Indicators {
		for _, f := range r.Indicators[i].Flags {
			counts[f]++
		}
	}
	return counts
}

// Scores maps facility number to fraud score
func (r *IndicatorResult) Scores() map[string]int {
	scores := make(map[string]int, len(r.Indicators))
	for i := range r.Indicators {
		in := &r.Indicators[i]
		if in.Facility.Number != "" {
			scores[in.Facility.Number] = in.Score
		}
	}
	return scores
}

// IndicatorTable renders indicators with their score and flags. The months and
// maps columns are included on request.
func IndicatorTable(indicators []Indicator, withMonths, withMaps bool) *report.Table {
	extra := []string{report.ColFraudScore, report.ColFraudFlags}
	if withMonths {
		extra = append(extra, report.ColMonthsOperated)
	}
	if withMaps {
		extra = append(extra, report.ColMapsURL)
	}

	t := report.NewFacilityTable(extra...)
	for i := range indicators {
		in := &indicators[i]
		vals := []string{strconv.Itoa(in.Score), in.FlagString()}
		if withMonths {
			vals = append(vals, formatMonths(in.Months, in.Has(FlagShortLived)))
		}
		if withMaps {
			vals = append(vals, in.MapsURL)
		}
		t.AppendFacility(&in.Facility, vals...)
	}
	return t
}

// IndicatorFromRecord rebuilds an indicator from a HIGH_RISK_FACILITIES.csv row
func IndicatorFromRecord(rec report.Record) Indicator {
	f := report.FacilityFromRecord(rec)
	in := Indicator{
		Facility:    f,
		FullAddress: facility.FullAddress(&f),
		Licensee:    facility.NormalizeLicensee(f.Licensee),
		Score:       rec.Int(report.ColFraudScore),
		MapsURL:     rec.Get(report.ColMapsURL),
	}
	for _, part := range strings.Split(rec.Get(report.ColFraudFlags), ";") {
		if p := strings.TrimSpace(part); p != "" {
			in.Flags = append(in.Flags, Flag(p))
		}
	}
	return in
}

func formatMonths(m float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(m, 'f', 1, 64)
}
