package links

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// ReportLimit caps the number of facility cards in the HTML report
const ReportLimit = 200

// Card is one facility in the HTML report
type Card struct {
	Name      string
	Score     int
	Licensee  string
	Address   string
	City      string
	Zip       string
	County    string
	Status    string
	Capacity  string
	Licensed  string
	Closed    string
	Months    string
	Phone     string
	MapsURL   string
	CCLDURL   string
	SOSURL    string
	NewsURL   string
	SearchURL string
}

// ScoreClass is the CSS class carrying the risk colour
func (c Card) ScoreClass() string {
	if c.Score > 10 {
		return "score-10"
	}
	return fmt.Sprintf("score-%d", c.Score)
}

// ReportData is the template input for the investigation report
type ReportData struct {
	Generated time.Time
	Total     int
	MinScore  int
	MaxScore  int
	Cards     []Card
}

// NewReportData builds the report model from an enriched priority table
func NewReportData(enriched *report.Table, now time.Time) ReportData {
	data := ReportData{Generated: now}
	for i, rec := range enriched.Records() {
		score := rec.Int(report.ColRiskScore)
		if i == 0 || score < data.MinScore {
			data.MinScore = score
		}
		if score > data.MaxScore {
			data.MaxScore = score
		}
		data.Total++
		if len(data.Cards) >= ReportLimit {
			continue
		}
		data.Cards = append(data.Cards, Card{
			Name:      rec.Get(facility.ColName),
			Score:     score,
			Licensee:  rec.Get(facility.ColLicensee),
			Address:   rec.Get(facility.ColAddress),
			City:      rec.Get(facility.ColCity),
			Zip:       rec.Get(facility.ColZip),
			County:    rec.Get(facility.ColCounty),
			Status:    rec.Get(facility.ColStatus),
			Capacity:  rec.Get(facility.ColCapacity),
			Licensed:  rec.Get(facility.ColLicenseFirst),
			Closed:    rec.Get(facility.ColClosed),
			Months:    rec.Get(report.ColMonthsOperated),
			Phone:     rec.Get(facility.ColTelephone),
			MapsURL:   rec.Get(report.ColMapsURL),
			CCLDURL:   rec.Get(ColCCLD),
			SOSURL:    rec.Get(ColSOS),
			NewsURL:   rec.Get(ColNews),
			SearchURL: rec.Get(ColInvestigation),
		})
	}
	return data
}

var reportTemplate = template.Must(template.New("report").Funcs(sprig.FuncMap()).Parse(reportHTML))

// RenderReport writes the investigation report to w
func RenderReport(w io.Writer, data ReportData) error {
	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render investigation report: %w", err)
	}
	return nil
}

// WriteReport renders the report to path
func WriteReport(path string, data ReportData) error {
	var buf bytes.Buffer
	if err := RenderReport(&buf, data); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>California Daycare Fraud Investigation Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background: #f5f5f5; }
        h1 { color: #333; }
        .facility { background: white; padding: 15px; margin: 10px 0; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .facility.score-10 { border-left: 5px solid #ff0000; }
        .facility.score-9 { border-left: 5px solid #ff4444; }
        .facility.score-8 { border-left: 5px solid #ff8800; }
        .facility.score-7 { border-left: 5px solid #ffaa00; }
        .facility.score-6 { border-left: 5px solid #ffcc00; }
        .facility.score-5 { border-left: 5px solid #ffee00; }
        .name { font-size: 18px; font-weight: bold; color: #333; }
        .risk { font-size: 14px; color: #ff0000; font-weight: bold; }
        .detail { margin: 5px 0; color: #666; }
        .links { margin-top: 10px; }
        .links a { display: inline-block; padding: 5px 10px; margin: 2px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; font-size: 12px; }
        .links a:hover { background: #0055aa; }
        .links a.maps { background: #34a853; }
        .links a.ccld { background: #ff5722; }
        .links a.sos { background: #9c27b0; }
        .links a.news { background: #ea4335; }
        .links a.google { background: #fbbc05; color: #333; }
        .summary { background: #fff3cd; padding: 15px; border-radius: 8px; margin-bottom: 20px; }
        .filters { margin-bottom: 20px; }
        .filters button { padding: 8px 15px; margin: 2px; cursor: pointer; }
    </style>
</head>
<body>
    <h1>California Daycare Fraud Investigation Report</h1>
    <div class="summary">
        <strong>Generated:</strong> {{ .Generated.Format "2006-01-02 15:04" }}<br>
        <strong>Total High-Risk Facilities:</strong> {{ .Total }}<br>
        <strong>Risk Score Range:</strong> {{ .MinScore }} - {{ .MaxScore }}
    </div>

    <div class="filters">
        <strong>Filter by Risk Score:</strong>
        <button onclick="filterByScore(0)">Show All</button>
        <button onclick="filterByScore(10)">Score 10</button>
        <button onclick="filterByScore(9)">Score 9</button>
        <button onclick="filterByScore(8)">Score 8+</button>
        <button onclick="filterByScore(7)">Score 7+</button>
    </div>

    <div id="facilities">
{{- range .Cards }}
        <div class="facility {{ .ScoreClass }}" data-score="{{ .Score }}">
            <div class="name">{{ .Name }}</div>
            <div class="risk">Risk Score: {{ .Score }}</div>
            <div class="detail"><strong>Licensee:</strong> {{ .Licensee }}</div>
            <div class="detail"><strong>Address:</strong> {{ .Address | default "N/A" }}, {{ .City }}, CA {{ .Zip }}</div>
            <div class="detail"><strong>County:</strong> {{ .County | default "N/A" }}</div>
            <div class="detail"><strong>Status:</strong> {{ .Status | default "N/A" }} | <strong>Capacity:</strong> {{ .Capacity | default "N/A" }}</div>
            <div class="detail"><strong>Licensed:</strong> {{ .Licensed | default "N/A" }} | <strong>Closed:</strong> {{ .Closed | default "N/A" }}</div>
            <div class="detail"><strong>Operated:</strong> {{ .Months | default "N/A" }} months</div>
            <div class="detail"><strong>Phone:</strong> {{ .Phone | default "N/A" }}</div>
            <div class="links">
                <a href="{{ .MapsURL | default "#" }}" target="_blank" class="maps">Google Maps</a>
                <a href="{{ .CCLDURL | default "#" }}" target="_blank" class="ccld">CCLD Inspections</a>
                <a href="{{ .SOSURL }}" target="_blank" class="sos">CA SOS Business</a>
                <a href="{{ .NewsURL }}" target="_blank" class="news">News Search</a>
                <a href="{{ .SearchURL }}" target="_blank" class="google">Investigation Search</a>
            </div>
        </div>
{{- end }}
    </div>

    <script>
        function filterByScore(minScore) {
            document.querySelectorAll('.facility').forEach(el => {
                const score = parseInt(el.dataset.score);
                el.style.display = (minScore === 0 || score >= minScore) ? 'block' : 'none';
            });
        }
    </script>
</body>
</html>
`
