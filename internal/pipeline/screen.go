package pipeline

import (
	"context"
	"strconv"

	"github.com/sawpanic/daycarewatch/internal/analysis"
	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
	"github.com/sawpanic/daycarewatch/internal/scoring"
)

// consoleSample caps the facilities listed on the console per section
const consoleSample = 10

// LowCapacity runs the low-capacity screen
func (r *Runner) LowCapacity(ctx context.Context) error {
	return r.step(ctx, StageLowCap, r.lowCapacity)
}

func (r *Runner) lowCapacity(context.Context) error {
	facilities, err := r.loadFacilities()
	if err != nil {
		return err
	}
	res := analysis.LowCapacity(facilities, analysis.LowCapacityOptions{
		Threshold: r.cfg.Analysis.CapacityThreshold,
		Counties:  r.cfg.Analysis.Counties,
	})

	c := r.ws.Console
	c.Section("LOW-CAPACITY FACILITIES")
	c.Printf("Total facilities analyzed: %d", res.Analyzed)
	c.Printf("Low-capacity facilities (capacity < %d): %d", res.Threshold, len(res.LowCapacity))
	if err := r.ws.WriteTable(report.FileLowCapacity, analysis.FacilityTable(res.LowCapacity)); err != nil {
		return err
	}
	if len(res.LowCapacity) == 0 {
		return nil
	}

	c.Subsection("By county")
	c.Counts(res.ByCounty, 20)
	c.Subsection("By type")
	c.Counts(res.ByType, 0)
	c.Subsection("By dataset")
	c.Counts(res.ByDataset, 0)
	c.Subsection("By status")
	c.Counts(res.ByStatus, 0)

	if len(res.Suspicious) > 0 {
		c.Printf("\nNon-licensed low-capacity facilities: %d", len(res.Suspicious))
		if err := r.ws.WriteTable(report.FileSuspiciousLowCap, analysis.FacilityTable(res.Suspicious)); err != nil {
			return err
		}
	}
	c.Printf("\nActive licensed low-capacity facilities: %d", len(res.Licensed))
	if err := r.ws.WriteTable(report.FileLicensedLowCap, analysis.FacilityTable(res.Licensed)); err != nil {
		return err
	}

	c.Printf("Capacity range in low-cap: %d - %d", res.MinCapacity, res.MaxCapacity)
	return nil
}

// Indicators runs the four-flag fraud indicator screen
func (r *Runner) Indicators(ctx context.Context) error {
	return r.step(ctx, StageIndicators, r.indicators)
}

func (r *Runner) indicators(context.Context) error {
	facilities, err := r.loadFacilities()
	if err != nil {
		return err
	}
	ind := scoring.DetectIndicators(facilities)
	c := r.ws.Console
	c.Section("FRAUD INDICATOR ANALYSIS")

	c.Subsection("[FLAG 1] DUPLICATE ADDRESSES")
	c.Printf("Found %d addresses with multiple facilities", len(ind.DuplicateAddresses))
	c.Counts(ind.DuplicateAddresses, consoleSample)
	dup := ind.AtDuplicateAddress()
	if err := r.ws.WriteTable(report.FileDuplicateAddresses, scoring.IndicatorTable(dup, false, false)); err != nil {
		return err
	}

	c.Subsection("[FLAG 2] LICENSEES WITH MULTIPLE FACILITIES")
	c.Printf("Found %d licensees operating 3+ facilities", len(ind.MultiLicensees))
	c.Counts(ind.MultiLicensees, consoleSample)
	multi := ind.FromMultiLicensees()
	if err := r.ws.WriteTable(report.FileMultiLicensees, scoring.IndicatorTable(multi, false, false)); err != nil {
		return err
	}

	c.Subsection("[FLAG 3] COVID-ERA LICENSES (2020-2022)")
	covid := ind.CovidEraLicensed()
	byYear := make(map[string]int)
	for i := range covid {
		byYear[strconv.Itoa(covid[i].Facility.LicenseYear())]++
	}
	c.Printf("Licensed facilities first licensed during COVID: %d", len(covid))
	c.Counts(report.SortCounts(byYear), 0)
	if err := r.ws.WriteTable(report.FileCovidEra, scoring.IndicatorTable(covid, false, false)); err != nil {
		return err
	}

	c.Subsection("[FLAG 4] SHORT-LIVED FACILITIES")
	short := ind.ShortLived()
	c.Printf("Opened 2020+ and closed within two years: %d", len(short))
	if err := r.ws.WriteTable(report.FileShortLived, scoring.IndicatorTable(short, true, false)); err != nil {
		return err
	}

	counts := ind.FlagCounts()
	labelled := make(map[string]int, len(counts))
	for flag, n := range counts {
		labelled[string(flag)] = n
	}
	r.metrics.RecordFlags(labelled)

	high := ind.HighRisk()
	c.Section("HIGH-RISK FACILITIES (Fraud Score >= 3)")
	for i := range high {
		if i == consoleSample {
			c.Printf("  ... and %d more", len(high)-consoleSample)
			break
		}
		in := &high[i]
		c.Printf("  %s (%s)", in.Facility.Name, in.Facility.City)
		c.Printf("    Fraud Score: %d | Flags: %s", in.Score, in.FlagString())
		c.Printf("    Verify: %s", in.MapsURL)
	}
	if err := r.ws.WriteTable(report.FileHighRisk, scoring.IndicatorTable(high, true, true)); err != nil {
		return err
	}

	c.Section("FRAUD ANALYSIS SUMMARY")
	c.Printf("Total facilities analyzed: %d", len(facilities))
	c.Printf("Facilities at duplicate addresses: %d", len(dup))
	c.Printf("Facilities from multi-facility licensees (3+): %d", len(multi))
	c.Printf("COVID-era licenses (2020-2022): %d", counts[scoring.FlagCovidEraLicense])
	c.Printf("Short-lived facilities (<2 years): %d", len(short))
	c.Printf("HIGH-RISK (score >= %d): %d", scoring.HighRiskThreshold, len(high))
	return nil
}

// Deep runs the shared-phone, licensee and geographic analyses and writes the
// priority investigation list
func (r *Runner) Deep(ctx context.Context) error {
	return r.step(ctx, StageDeep, r.deep)
}

func (r *Runner) deep(context.Context) error {
	facilities, err := r.loadFacilities()
	if err != nil {
		return err
	}
	c := r.ws.Console

	phones := analysis.DuplicatePhones(facilities)
	c.Section("ANALYSIS 1: DUPLICATE PHONE NUMBERS")
	c.Printf("Found %d phone numbers used by multiple facilities", phones.DuplicatedPhones)
	c.Printf("Phone numbers with 3+ facilities: %d", phones.SuspiciousPhones)
	if len(phones.Groups) > 0 {
		if err := r.ws.WriteTable(report.FilePhoneGroups, phones.GroupsTable()); err != nil {
			return err
		}
	}

	lic := analysis.LicenseePatterns(facilities)
	c.Section("ANALYSIS 2: LICENSEE NAME PATTERNS")
	c.Subsection("People operating 3+ facilities")
	for i, p := range lic.People {
		if i == 20 {
			break
		}
		c.Printf("  %s: %d facilities", p.Person, p.FacilityCount)
	}
	c.Printf("\nFacilities with generic/suspicious name patterns: %d", lic.GenericCount)
	c.Subsection("Common licensee name prefixes")
	c.Counts(lic.DisplayPrefixes(15), 0)

	geo := analysis.GeographicClusters(facilities)
	c.Section("ANALYSIS 3: GEOGRAPHIC CLUSTERING")
	c.Printf("ZIP codes with unusually high concentrations (>%.0f): %d", geo.Threshold, len(geo.HighConcentration))
	c.Subsection("Top ZIP codes for COVID-era (2020-2022) new licenses")
	for _, h := range geo.CovidHotspots {
		c.Printf("  %s (%s): %d new facilities", h.Zip, h.City, h.Count)
	}
	if err := r.ws.WriteTable(report.FileGeoClusters, geo.Table()); err != nil {
		return err
	}

	assessments := scoring.ScoreRisk(facilities, scoring.RiskSignals{
		SharedPhone: phones.SharedPhone,
		GenericName: lic.GenericName,
	})
	priority := scoring.Priority(assessments, scoring.PriorityThreshold)

	c.Section("PRIORITIZED INVESTIGATION LIST")
	c.Printf("Highest risk facilities (score >= %d): %d", scoring.PriorityThreshold, len(priority))
	if err := r.ws.WriteTable(report.FilePriority, scoring.PriorityTable(priority)); err != nil {
		return err
	}
	r.printTop(priority, 25)

	riskScores := make(map[string]int, len(assessments))
	for i := range assessments {
		if n := assessments[i].Facility.Number; n != "" {
			riskScores[n] = assessments[i].Score
		}
	}
	if err := r.ws.WriteTable(report.FilePhoneFacilities, phones.DuplicatesTable(riskScores)); err != nil {
		return err
	}

	summary := scoring.NewSummary(assessments, priority, r.now())
	summary.RunID = r.runID
	c.Section("RISK SCORE DISTRIBUTION")
	for _, sc := range summary.Distribution {
		c.Printf("  %2d  %d", sc.Score, sc.Count)
	}
	if err := scoring.WriteSummary(r.ws.Path(report.FileRiskSummary), summary); err != nil {
		return err
	}
	r.log.Info().
		Int("facilities", summary.Facilities).
		Int("priority", summary.Priority).
		Msg("Risk scoring complete")
	return nil
}

func (r *Runner) printTop(priority []scoring.Assessment, n int) {
	c := r.ws.Console
	for i := range priority {
		if i == n {
			break
		}
		a := &priority[i]
		f := &a.Facility
		c.Printf("\n%d. %s (Risk Score: %d)", i+1, f.Name, a.Score)
		c.Printf("   Licensee: %s", f.Licensee)
		c.Printf("   Address: %s, %s %s", f.Address, f.City, f.Zip)
		c.Printf("   Status: %s | Capacity: %d", f.Status, f.Capacity)
		c.Printf("   Licensed: %s | Closed: %s", facility.FormatDate(f.LicenseFirstDate), facility.FormatDate(f.ClosedDate))
		if a.HasMonths {
			c.Printf("   Operated: %.1f months", a.Months)
		}
		c.Printf("   Phone: %s", f.Telephone)
		if a.MapsURL != "" {
			c.Printf("   VERIFY: %s", a.MapsURL)
		}
	}
}
