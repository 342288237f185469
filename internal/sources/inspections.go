package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// Licensing site endpoints
const (
	CCLDBaseURL      = "https://www.ccld.dss.ca.gov"
	reportsPath      = "/transparencyapi/api/FacilityReports"
	facilityPagePath = "/carefacilitysearch/FacDetail/"
)

// A probe is accepted as a report when the body and extracted text are long
// enough and the text mentions a facility.
const (
	minReportBytes  = 500
	minReportText   = 100
	previewLength   = 500
	progressEvery   = 50
	unknownDate     = "Unknown"
	DefaultMaxIndex = 4
)

// Target is a facility whose inspection reports are probed
type Target struct {
	Number    string
	Name      string
	Licensee  string
	Status    string
	RiskScore int
}

// Targets selects priority rows with risk_score >= minRisk and a facility number
func Targets(priority *report.Table, minRisk int) []Target {
	var out []Target
	for _, rec := range priority.Records() {
		if rec.Int(report.ColRiskScore) < minRisk {
			continue
		}
		number := facility.NormalizeFacilityNumber(rec.Get("facility_number"))
		if number == "" {
			continue
		}
		name := rec.Get("facility_name")
		if name == "" {
			name = "Unknown"
		}
		out = append(out, Target{
			Number:    number,
			Name:      name,
			Licensee:  rec.Get("licensee"),
			Status:    rec.Get("facility_status"),
			RiskScore: rec.Int(report.ColRiskScore),
		})
	}
	return out
}

// InspectionReport is one report found through the transparency API
type InspectionReport struct {
	Target Target
	// Index is the probed inx, or the position among the followed reports
	// when the report was found on the facility detail page
	Index        int
	URL          string
	Date         string
	TypeA        bool
	TypeB        bool
	AnyViolation bool
	Complaint    bool
	Preview      string
}

// HasViolation reports whether the report belongs on the violations list
func (r *InspectionReport) HasViolation() bool {
	return r.AnyViolation || r.TypeA
}

// InspectionResult is the outcome of an inspection sweep
type InspectionResult struct {
	Checked int
	Reports []InspectionReport
}

// Violations returns the reports with any violation, highest risk first
func (r *InspectionResult) Violations() []InspectionReport {
	var out []InspectionReport
	for _, rep := range r.Reports {
		if rep.HasViolation() {
			out = append(out, rep)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Target.RiskScore > out[j].Target.RiskScore
	})
	return out
}

// Inspector probes the licensing transparency API
type Inspector struct {
	client      *http.Client
	baseURL     string
	maxIndex    int
	concurrency int
}

// NewInspector creates an inspector. An empty baseURL uses CCLDBaseURL.
func NewInspector(client *http.Client, baseURL string, maxIndex, concurrency int) *Inspector {
	if baseURL == "" {
		baseURL = CCLDBaseURL
	}
	if maxIndex < 0 {
		maxIndex = DefaultMaxIndex
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Inspector{client: client, baseURL: strings.TrimRight(baseURL, "/"), maxIndex: maxIndex, concurrency: concurrency}
}

// ReportURL is the transparency API URL of report inx for a facility
func (in *Inspector) ReportURL(number string, inx int) string {
	return fmt.Sprintf("%s%s?facNum=%s&inx=%d", in.baseURL, reportsPath, number, inx)
}

// Run probes every target. Reports keep the target order.
func (in *Inspector) Run(ctx context.Context, targets []Target) (*InspectionResult, error) {
	perTarget := make([][]InspectionReport, len(targets))
	var done, found atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.concurrency)
	for i, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perTarget[i] = in.CheckFacility(gctx, t)
			n := done.Add(1)
			f := found.Add(int64(len(perTarget[i])))
			if n%progressEvery == 0 {
				log.Info().Int64("checked", n).Int("total", len(targets)).Int64("reports", f).Msg("Inspection progress")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &InspectionResult{Checked: len(targets)}
	for _, reps := range perTarget {
		res.Reports = append(res.Reports, reps...)
	}
	return res, nil
}

// CheckFacility probes report indexes 0..maxIndex for one facility. Failed
// probes are skipped.
func (in *Inspector) CheckFacility(ctx context.Context, t Target) []InspectionReport {
	var reports []InspectionReport
	for inx := 0; inx <= in.maxIndex; inx++ {
		if ctx.Err() != nil {
			break
		}
		url := in.ReportURL(t.Number, inx)
		rep, ok, err := in.probe(ctx, url)
		if err != nil {
			log.Debug().Err(err).Str("facility", t.Number).Int("inx", inx).Msg("Report probe failed")
			continue
		}
		if !ok {
			continue
		}
		rep.Target = t
		rep.Index = inx
		reports = append(reports, rep)
		log.Debug().Str("facility", t.Number).Int("inx", inx).Str("date", rep.Date).
			Bool("violations", rep.AnyViolation).Bool("type_a", rep.TypeA).Msg("Found report")
	}
	if len(reports) == 0 && ctx.Err() == nil {
		reports = in.fromDetailPage(ctx, t)
	}
	return reports
}

// fromDetailPage follows the report links listed on the facility detail page.
// Only links on the licensing site are followed.
func (in *Inspector) fromDetailPage(ctx context.Context, t Target) []InspectionReport {
	links, err := in.FacilityLinks(ctx, t.Number)
	if err != nil {
		log.Debug().Err(err).Str("facility", t.Number).Msg("Detail page unavailable")
		return nil
	}
	var reports []InspectionReport
	for _, l := range links {
		url := l.URL
		if strings.HasPrefix(url, "/") {
			url = in.baseURL + url
		}
		if !strings.HasPrefix(url, in.baseURL) {
			continue
		}
		rep, ok, err := in.probe(ctx, url)
		if err != nil || !ok {
			continue
		}
		rep.Target = t
		rep.Index = len(reports)
		if rep.Date == unknownDate && l.Date != "" {
			rep.Date = l.Date
		}
		reports = append(reports, rep)
	}
	return reports
}

func (in *Inspector) probe(ctx context.Context, url string) (InspectionReport, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return InspectionReport{}, false, err
	}
	resp, err := in.client.Do(req)
	if err != nil {
		return InspectionReport{}, false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return InspectionReport{}, false, err
	}
	if resp.StatusCode != http.StatusOK || len(body) <= minReportBytes {
		return InspectionReport{}, false, nil
	}

	text, err := PageText(bytes.NewReader(body))
	if err != nil {
		return InspectionReport{}, false, err
	}
	rep, ok := ClassifyReport(text)
	rep.URL = url
	return rep, ok, nil
}

// ClassifyReport inspects the text of a report page. ok is false when the text
// does not look like a facility report.
func ClassifyReport(text string) (rep InspectionReport, ok bool) {
	runes := []rune(text)
	if !strings.Contains(strings.ToLower(text), "facility") || len(runes) <= minReportText {
		return rep, false
	}

	rep.Date = unknownDate
	if d := reportDatePattern.FindString(text); d != "" {
		rep.Date = d
	}

	upper := strings.ToUpper(text)
	rep.TypeA = strings.Contains(upper, "TYPE A")
	rep.TypeB = strings.Contains(upper, "TYPE B")
	rep.AnyViolation = strings.Contains(upper, "VIOLATION") ||
		strings.Contains(upper, "DEFICIENCY") ||
		strings.Contains(upper, "CITATION")
	rep.Complaint = strings.Contains(upper, "COMPLAINT")

	if len(runes) > previewLength {
		runes = runes[:previewLength]
	}
	rep.Preview = string(runes)
	return rep, true
}

// FacilityLinks fetches a facility detail page and lists its report links
func (in *Inspector) FacilityLinks(ctx context.Context, number string) ([]ReportLink, error) {
	body, err := get(ctx, in.client, in.baseURL+facilityPagePath+number)
	if err != nil {
		return nil, err
	}
	return ParseInspectionLinks(bytes.NewReader(body), in.baseURL)
}

// ReportsTable renders every report found
func ReportsTable(reports []InspectionReport) *report.Table {
	t := report.NewTable("report_index", "url", "date", "has_type_a_violation", "has_type_b_violation",
		"has_any_violation", "is_complaint_investigation", "text_preview", "facility_number",
		"facility_name", "licensee", "risk_score", "facility_status")
	for _, r := range reports {
		t.Append(strconv.Itoa(r.Index), r.URL, r.Date, boolCell(r.TypeA), boolCell(r.TypeB),
			boolCell(r.AnyViolation), boolCell(r.Complaint), r.Preview, r.Target.Number,
			r.Target.Name, r.Target.Licensee, strconv.Itoa(r.Target.RiskScore), r.Target.Status)
	}
	return t
}

// ViolationsTable renders reports with violations
func ViolationsTable(reports []InspectionReport) *report.Table {
	t := report.NewTable("facility_number", "facility_name", "licensee", "risk_score", "report_date",
		"type_a_violation", "type_b_violation", "complaint_investigation", "report_url")
	for _, r := range reports {
		t.Append(r.Target.Number, r.Target.Name, r.Target.Licensee, strconv.Itoa(r.Target.RiskScore), r.Date,
			boolCell(r.TypeA), boolCell(r.TypeB), boolCell(r.Complaint), r.URL)
	}
	return t
}

// boolCell writes flags as True/False
func boolCell(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
