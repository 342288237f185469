package networks

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/Masterminds/sprig/v3"

	"github.com/sawpanic/daycarewatch/internal/report"
)

var palette = []string{
	"#e94560", "#3498db", "#2ecc71", "#9b59b6", "#f39c12",
	"#1abc9c", "#e74c3c", "#34495e", "#16a085", "#d35400",
	"#f1c40f", "#8e44ad", "#c0392b", "#27ae60", "#2980b9",
}

func color(i int) string {
	return palette[i%len(palette)]
}

// Marker is a circle drawn on the map
type Marker struct {
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
	Radius int     `json:"radius"`
	Color  string  `json:"color"`
	Popup  string  `json:"popup"` // pre-escaped HTML
}

// Line joins two points of the same network
type Line struct {
	From   Point  `json:"from"`
	To     Point  `json:"to"`
	Color  string `json:"color"`
	Weight int    `json:"weight"`
	Dash   string `json:"dash"`
}

// Stat is a headline number in the info panel
type Stat struct {
	Label string
	Value int
}

// Page is one self-contained map view
type Page struct {
	File        string
	Title       string
	Heading     string
	Description string
	Note        string
	Stats       []Stat
	Markers     []Marker
	Lines       []Line
}

type navLink struct {
	File  string
	Label string
}

var navLinks = []navLink{
	{report.FileInvestigationReport, "Investigation Report"},
	{report.FilePhoneNetworkMap, "Phone Networks"},
	{report.FileAddressNetworkMap, "Address Networks"},
	{report.FileOwnerNetworkMap, "Owner Networks"},
}

// connect returns lines between every pair of points
func connect(points []Point, color string, weight int, dash string) []Line {
	var lines []Line
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			lines = append(lines, Line{From: points[i], To: points[j], Color: color, Weight: weight, Dash: dash})
		}
	}
	return lines
}

var pageTemplate = template.Must(template.New("map").Funcs(sprig.FuncMap()).Parse(pageHTML))

// Render writes the page as HTML
func (p *Page) Render(w io.Writer) error {
	data := struct {
		*Page
		Nav    []navLink
		Center Point
	}{p, navLinks, CaliforniaCenter}
	if err := pageTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("render %s: %w", p.File, err)
	}
	return nil
}

// WriteFile renders the page into dir under its file name
func (p *Page) WriteFile(dir string) (string, error) {
	var buf bytes.Buffer
	if err := p.Render(&buf); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, p.File)
	return path, os.WriteFile(path, buf.Bytes(), 0o644)
}

var popupTemplates = template.Must(template.New("popups").Funcs(sprig.FuncMap()).Parse(popupHTML))

// popup renders a named popup template to a string
func popup(name string, data interface{}) string {
	var buf bytes.Buffer
	if err := popupTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return template.HTMLEscapeString(err.Error())
	}
	return buf.String()
}

const popupHTML = `
{{define "facility"}}<div style="font-family: Arial; font-size: 12px; min-width: 220px;">
<b style="color: {{.Color}};">{{.Name}}</b><br>
<b>Licensee:</b> {{.Licensee}}<br>
<b>Address:</b> {{.Address}}, {{.City}}<br>
<b>Status:</b> {{.Status}}<br>
{{if .Capacity}}<b>Capacity:</b> {{.Capacity}}<br>{{end}}
{{if .Score}}<b>Risk Score:</b> {{.Score}}<br>{{end}}
<b>Phone:</b> {{.Phone}}<br>
{{if .Licensed}}<b>Licensed:</b> {{.Licensed}}<br>{{end}}
{{if .ShowFlags}}<b>Flags:</b> {{.Flags | default "None"}}<br>{{end}}
<hr style="margin: 5px 0;">
<span style="color: {{.Color}}; font-weight: bold;">{{.Footer}}</span>
</div>{{end}}

{{define "phone"}}<div style="font-family: Arial; width: 320px;">
<div style="background: {{.Color}}; padding: 10px; color: #fff;">
<div style="font-size: 13px; font-weight: 700;">Phone Network Cluster</div>
<div style="font-size: 18px; font-weight: 700;">{{.Phone}}</div>
</div>
<div style="padding: 8px;">
<div>At this location: <b>{{.AtLocation}}</b> &middot; Total in network: <b>{{.NetworkSize}}</b></div>
{{range .Facilities}}<div style="margin-top: 6px;">
<div style="font-weight: 600;">{{.Name}}</div>
<span style="color: {{.StatusColor}};">{{.Status}}</span>
Risk: <span style="color: {{.RiskColor}}; font-weight: 600;">{{.Risk}}</span>
{{.City}}
</div>{{end}}
{{if gt .More 0}}<div style="color: #8b949e;">+ {{.More}} more facilities...</div>{{end}}
</div>
<div style="background: #fdecea; padding: 6px; color: #f85149;">Multiple facilities sharing one phone number is a fraud indicator</div>
</div>{{end}}
`

const pageHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
body { margin: 0; font-family: Arial, sans-serif; }
.site-nav { position: fixed; top: 0; left: 0; right: 0; z-index: 9999; background: #161b22; padding: 15px 20px; border-bottom: 3px solid #e94560; display: flex; justify-content: center; }
.nav-links { display: flex; gap: 15px; flex-wrap: wrap; justify-content: center; }
.nav-links a { padding: 10px 24px; border-radius: 8px; text-decoration: none; font-weight: 600; color: white; background: rgba(255,255,255,0.1); }
.nav-links a.active { background: #e94560; }
#map { position: fixed; top: 65px; bottom: 0; left: 0; right: 0; }
.info-panel { position: fixed; top: 80px; left: 20px; z-index: 9998; background: rgba(22,27,34,0.95); color: #c9d1d9; border-radius: 10px; padding: 16px 20px; max-width: 340px; }
.info-panel h3 { margin: 0 0 12px 0; color: #fff; }
.info-panel p { font-size: 12px; line-height: 1.5; }
.stats-row { display: flex; gap: 15px; margin: 12px 0; }
.stat { text-align: center; flex: 1; }
.stat-value { font-size: 20px; font-weight: 700; color: #fff; }
.stat-label { font-size: 10px; color: #8b949e; }
@media (max-width: 768px) { .info-panel { top: auto; bottom: 20px; left: 10px; right: 10px; max-width: none; } }
</style>
</head>
<body>
<nav class="site-nav"><div class="nav-links">
{{- range .Nav}}
<a href="{{.File}}"{{if eq .File $.File}} class="active"{{end}}>{{.Label}}</a>
{{- end}}
</div></nav>
<div class="info-panel">
<h3>{{.Heading}}</h3>
<p>{{.Description}}</p>
<div class="stats-row">
{{- range .Stats}}
<div class="stat"><div class="stat-value">{{.Value}}</div><div class="stat-label">{{.Label}}</div></div>
{{- end}}
</div>
{{with .Note}}<p style="color: #8b949e;">{{.}}</p>{{end}}
</div>
<div id="map"></div>
<script>
var map = L.map('map').setView([{{.Center.Lat}}, {{.Center.Lng}}], 6);
L.tileLayer('https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png', {
  attribution: '&copy; OpenStreetMap contributors &copy; CARTO', maxZoom: 19
}).addTo(map);
var lines = {{.Lines}};
var markers = {{.Markers}};
(lines || []).forEach(function (l) {
  L.polyline([[l.from.lat, l.from.lng], [l.to.lat, l.to.lng]],
    {color: l.color, weight: l.weight, opacity: 0.6, dashArray: l.dash}).addTo(map);
});
(markers || []).forEach(function (m) {
  L.circleMarker([m.lat, m.lng], {radius: m.radius, color: m.color, fillColor: m.color, fillOpacity: 0.8, weight: 2})
    .bindPopup(m.popup, {maxWidth: 340}).addTo(map);
});
</script>
</body>
</html>
`
