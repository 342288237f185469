package pipeline

import (
	"context"
	"strings"

	"github.com/sawpanic/daycarewatch/internal/config"
	"github.com/sawpanic/daycarewatch/internal/report"
	"github.com/sawpanic/daycarewatch/internal/scoring"
	"github.com/sawpanic/daycarewatch/internal/sources"
)

// Inspect probes the licensing transparency API for the highest-risk facilities
func (r *Runner) Inspect(ctx context.Context) error {
	return r.step(ctx, StageInspect, r.inspect)
}

func (r *Runner) inspect(ctx context.Context) error {
	priority, err := r.ws.ReadTable(report.FilePriority)
	if err != nil {
		return err
	}
	a := r.cfg.Analysis
	targets := sources.Targets(priority, a.InspectMinRisk)
	if a.InspectLimit > 0 && len(targets) > a.InspectLimit {
		targets = targets[:a.InspectLimit]
	}

	c := r.ws.Console
	c.Section("INSPECTION REPORTS")
	c.Printf("Facilities with risk score >= %d: %d", a.InspectMinRisk, len(targets))
	if len(targets) == 0 {
		return errNothingToDo
	}

	hc, err := r.clients.Client(config.SourceCCLD)
	if err != nil {
		return err
	}
	inspector := sources.NewInspector(hc, r.endpoints.CCLD, a.InspectMaxIndex, a.Concurrency)
	res, err := inspector.Run(ctx, targets)
	if err != nil {
		return err
	}

	violations := res.Violations()
	c.Printf("Checked %d facilities, found %d reports, %d with violations", res.Checked, len(res.Reports), len(violations))
	if err := r.ws.WriteTable(report.FileInspectionReports, sources.ReportsTable(res.Reports)); err != nil {
		return err
	}
	for i, v := range violations {
		if i == consoleSample {
			break
		}
		c.Printf("  %s (risk %d): %s", v.Target.Name, v.Target.RiskScore, v.Date)
	}
	return r.ws.WriteTable(report.FileViolations, sources.ViolationsTable(violations))
}

// CACFPOptions controls the food program stage
type CACFPOptions struct {
	SitesPath  string // participant list to match against the high-risk facilities
	SkipProbe  bool
	SkipImpact bool
}

// CACFP probes the food program directory, downloads the impact report and
// optionally matches a participant list against the high-risk facilities
func (r *Runner) CACFP(ctx context.Context, opts CACFPOptions) error {
	return r.step(ctx, StageCACFP, func(ctx context.Context) error {
		return r.cacfp(ctx, opts)
	})
}

func (r *Runner) cacfp(ctx context.Context, opts CACFPOptions) error {
	if err := r.ws.Ensure(); err != nil {
		return err
	}
	hc, err := r.clients.Client(config.SourceCACFP)
	if err != nil {
		return err
	}
	c := r.ws.Console
	food := sources.NewCACFP(hc, r.cfg.Analysis.Concurrency,
		sources.WithCACFPEndpoints(r.endpoints.CACFPCounty, r.endpoints.CACFPImpact))

	if !opts.SkipProbe {
		c.Section("CACFP COUNTY DIRECTORY")
		probes := food.ProbeCounties(ctx, r.cfg.Analysis.Counties)
		failed := 0
		for _, p := range probes {
			if p.Error != "" {
				failed++
			}
		}
		c.Printf("Probed %d counties (%d failed)", len(probes), failed)
		if err := r.ws.WriteTable(report.FileCACFPCounties, sources.ProbeTable(probes)); err != nil {
			return err
		}
	}

	if !opts.SkipImpact {
		c.Section("CACFP IMPACT REPORT")
		cdss, err := r.clients.Client(config.SourceCDSS)
		if err != nil {
			return err
		}
		path, sheets, err := food.DownloadImpact(ctx, cdss, r.ws.Dir)
		if err != nil {
			// the report is reference material; matching does not depend on it
			r.log.Warn().Err(err).Msg("Could not download CACFP impact report")
			c.Printf("Could not download CACFP data: %v", err)
		} else {
			c.Printf("Downloaded %s", path)
			for _, s := range sheets {
				c.Printf("  Sheet '%s': %d rows, %d columns", s.Name, s.Rows, s.Columns)
				if len(s.Header) > 0 {
					c.Printf("    Columns: %s", strings.Join(firstColumns(s.Header, 5), ", "))
				}
			}
		}
	}

	if opts.SitesPath == "" {
		return nil
	}
	return r.matchSites(opts.SitesPath)
}

func (r *Runner) matchSites(path string) error {
	sites, err := sources.ReadSites(path)
	if err != nil {
		return err
	}
	high, err := r.ws.ReadTable(report.FileHighRisk)
	if err != nil {
		return err
	}
	var candidates []sources.Candidate
	for _, rec := range high.Records() {
		in := scoring.IndicatorFromRecord(rec)
		candidates = append(candidates, sources.Candidate{
			Number:   in.Facility.Number,
			Name:     in.Facility.Name,
			Licensee: in.Facility.Licensee,
			City:     in.Facility.City,
			Score:    in.Score,
		})
	}

	matches := sources.MatchSites(sites, candidates, r.cfg.Analysis.CACFPMatchThreshold)
	c := r.ws.Console
	c.Section("CACFP SITE MATCHES")
	c.Printf("%d participant sites, %d flagged facilities, %d matches (similarity >= %.2f)",
		len(sites), len(candidates), len(matches), r.cfg.Analysis.CACFPMatchThreshold)
	return r.ws.WriteTable(report.FileCACFPMatches, sources.MatchTable(matches))
}

func firstColumns(header []string, n int) []string {
	if len(header) > n {
		return header[:n]
	}
	return header
}
