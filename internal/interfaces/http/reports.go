package http

import (
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
	"github.com/sawpanic/daycarewatch/internal/scoring"
)

const (
	defaultPriorityLimit = 100
	maxPriorityLimit     = 5000
)

// servable artifact extensions
var artifactTypes = map[string]bool{".csv": true, ".html": true, ".json": true, ".xlsx": true}

type reportHandlers struct {
	dir string
}

type artifact struct {
	Name    string
	Size    int64
	ModTime time.Time
}

func (h *reportHandlers) artifacts() ([]artifact, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		return nil, err
	}
	var out []artifact
	for _, e := range entries {
		if e.IsDir() || !artifactTypes[strings.ToLower(filepath.Ext(e.Name()))] || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, artifact{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

var indexTemplate = template.Must(template.New("index").Funcs(sprig.FuncMap()).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>daycarewatch workspace</title>
<style>body { font-family: Arial, sans-serif; margin: 30px; } td, th { padding: 4px 12px; text-align: left; }</style>
</head>
<body>
<h1>Workspace artifacts</h1>
{{- if .}}
<table>
<tr><th>File</th><th>Size</th><th>Modified</th></tr>
{{- range .}}
<tr><td><a href="/reports/{{.Name}}">{{.Name}}</a></td><td>{{.Size}}</td><td>{{.ModTime | date "2006-01-02 15:04"}}</td></tr>
{{- end}}
</table>
{{- else}}
<p>No artifacts yet. Run <code>daycarewatch run</code> first.</p>
{{- end}}
</body>
</html>
`))

// Index lists the workspace artifacts
func (h *reportHandlers) Index(w http.ResponseWriter, r *http.Request) {
	list, err := h.artifacts()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "workspace_unreadable", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, list); err != nil {
		log.Warn().Err(err).Msg("failed to render index")
	}
}

// File serves one artifact by base name
func (h *reportHandlers) File(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		writeError(w, r, http.StatusBadRequest, "invalid_name", "report name must be a plain file name")
		return
	}
	if !artifactTypes[strings.ToLower(filepath.Ext(name))] {
		writeError(w, r, http.StatusNotFound, "report_not_found", "not a report artifact")
		return
	}

	f, err := os.Open(filepath.Join(h.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, r, http.StatusNotFound, "report_not_found", name+" has not been generated")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "report_unreadable", err.Error())
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		writeError(w, r, http.StatusNotFound, "report_not_found", name+" is not a file")
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// PriorityItem is one row of the priority investigation list
type PriorityItem struct {
	FacilityNumber   string   `json:"facility_number"`
	Name             string   `json:"facility_name"`
	Licensee         string   `json:"licensee"`
	Address          string   `json:"address"`
	City             string   `json:"city"`
	Zip              string   `json:"zip"`
	County           string   `json:"county"`
	Capacity         int      `json:"capacity"`
	Status           string   `json:"status"`
	LicenseFirstDate string   `json:"license_first_date,omitempty"`
	ClosedDate       string   `json:"closed_date,omitempty"`
	MonthsOperated   *float64 `json:"months_operated,omitempty"`
	Telephone        string   `json:"telephone"`
	RiskScore        int      `json:"risk_score"`
	MapsURL          string   `json:"google_maps_url"`
}

// PriorityResponse is the /api/priority body
type PriorityResponse struct {
	Total int            `json:"total"`
	Count int            `json:"count"`
	Items []PriorityItem `json:"items"`
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// Priority returns the priority list, optionally filtered by min_score and
// capped by limit
func (h *reportHandlers) Priority(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPriorityLimit)
	if err != nil || limit < 1 || limit > maxPriorityLimit {
		writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and "+strconv.Itoa(maxPriorityLimit))
		return
	}
	minScore, err := queryInt(r, "min_score", 0)
	if err != nil || minScore < 0 || minScore > scoring.MaxRiskScore {
		writeError(w, r, http.StatusBadRequest, "invalid_min_score", "min_score must be between 0 and "+strconv.Itoa(scoring.MaxRiskScore))
		return
	}

	t, err := report.ReadFile(filepath.Join(h.dir, report.FilePriority))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, r, http.StatusNotFound, "priority_not_found", "no priority list yet (run the pipeline)")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "priority_unreadable", err.Error())
		return
	}

	resp := PriorityResponse{Items: []PriorityItem{}}
	for _, rec := range t.Records() {
		a := scoring.AssessmentFromRecord(rec)
		if a.Score < minScore {
			continue
		}
		resp.Total++
		if len(resp.Items) < limit {
			resp.Items = append(resp.Items, priorityItem(&a))
		}
	}
	resp.Count = len(resp.Items)
	writeJSON(w, http.StatusOK, resp)
}

func priorityItem(a *scoring.Assessment) PriorityItem {
	f := &a.Facility
	item := PriorityItem{
		FacilityNumber:   f.Number,
		Name:             f.Name,
		Licensee:         f.Licensee,
		Address:          f.Address,
		City:             f.City,
		Zip:              f.Zip,
		County:           f.County,
		Capacity:         f.Capacity,
		Status:           f.Status,
		LicenseFirstDate: facility.FormatDate(f.LicenseFirstDate),
		ClosedDate:       facility.FormatDate(f.ClosedDate),
		Telephone:        f.Telephone,
		RiskScore:        a.Score,
		MapsURL:          a.MapsURL,
	}
	if a.HasMonths {
		m := a.Months
		item.MonthsOperated = &m
	}
	return item
}

// Summary returns risk_summary.json
func (h *reportHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := scoring.ReadSummary(filepath.Join(h.dir, report.FileRiskSummary))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeError(w, r, http.StatusNotFound, "summary_not_found", "no risk summary yet (run the pipeline)")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "summary_unreadable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s)
}
