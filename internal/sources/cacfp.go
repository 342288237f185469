package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// CACFP endpoints
const (
	CACFPCountyURL = "https://cacfp.dss.ca.gov/Centers/PartialCounty"
	CACFPImpactURL = "https://www.cdss.ca.gov/Portals/13/CACFP/CACFP%202023-24%20Impact%20Report.xlsx"
)

// Counties are the 58 California counties
var Counties = []string{
	"Alameda", "Alpine", "Amador", "Butte", "Calaveras", "Colusa", "Contra Costa",
	"Del Norte", "El Dorado", "Fresno", "Glenn", "Humboldt", "Imperial", "Inyo",
	"Kern", "Kings", "Lake", "Lassen", "Los Angeles", "Madera", "Marin", "Mariposa",
	"Mendocino", "Merced", "Modoc", "Mono", "Monterey", "Napa", "Nevada", "Orange",
	"Placer", "Plumas", "Riverside", "Sacramento", "San Benito", "San Bernardino",
	"San Diego", "San Francisco", "San Joaquin", "San Luis Obispo", "San Mateo",
	"Santa Barbara", "Santa Clara", "Santa Cruz", "Shasta", "Sierra", "Siskiyou",
	"Solano", "Sonoma", "Stanislaus", "Sutter", "Tehama", "Trinity", "Tulare",
	"Tuolumne", "Ventura", "Yolo", "Yuba",
}

var addressPattern = regexp.MustCompile(`(?i)(\d+\s+[\w\s]+(?:Street|St|Avenue|Ave|Boulevard|Blvd|Road|Rd|Drive|Dr|Lane|Ln|Way|Court|Ct)[\w\s,]*(?:CA|California)\s*\d{5})`)

// CountyURL builds the site directory URL for a county
func CountyURL(base, county string) string {
	return base + "?countyName=" + strings.ReplaceAll(county, " ", "+")
}

// CountyProbe is what one county directory page looked like
type CountyProbe struct {
	County         string `json:"county"`
	URL            string `json:"url"`
	AddressesFound int    `json:"addresses_found"`
	TextLength     int    `json:"raw_text_length"`
	Error          string `json:"error,omitempty"`
}

// CACFP talks to the food program directory and the CDSS impact report
type CACFP struct {
	client      *http.Client
	countyURL   string
	impactURL   string
	concurrency int
}

// CACFPOption customizes a CACFP client
type CACFPOption func(*CACFP)

// WithCACFPEndpoints overrides the directory and impact report URLs
func WithCACFPEndpoints(countyURL, impactURL string) CACFPOption {
	return func(c *CACFP) {
		if countyURL != "" {
			c.countyURL = countyURL
		}
		if impactURL != "" {
			c.impactURL = impactURL
		}
	}
}

// NewCACFP creates a client. Directory pages go through client; pass the
// CDSS client for the impact report to DownloadImpact.
func NewCACFP(client *http.Client, concurrency int, opts ...CACFPOption) *CACFP {
	if concurrency <= 0 {
		concurrency = 1
	}
	c := &CACFP{client: client, countyURL: CACFPCountyURL, impactURL: CACFPImpactURL, concurrency: concurrency}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProbeCounties fetches the directory page of every county. Failures are
// recorded on the probe rather than returned.
func (c *CACFP) ProbeCounties(ctx context.Context, counties []string) []CountyProbe {
	if len(counties) == 0 {
		counties = Counties
	}
	probes := make([]CountyProbe, len(counties))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, county := range counties {
		g.Go(func() error {
			probes[i] = c.probe(gctx, county)
			return nil
		})
	}
	_ = g.Wait()
	return probes
}

func (c *CACFP) probe(ctx context.Context, county string) CountyProbe {
	p := CountyProbe{County: county, URL: CountyURL(c.countyURL, county)}

	body, err := get(ctx, c.client, p.URL)
	if err != nil {
		p.Error = err.Error()
		log.Warn().Err(err).Str("county", county).Msg("CACFP county probe failed")
		return p
	}
	text, err := PageText(bytes.NewReader(body))
	if err != nil {
		p.Error = err.Error()
		return p
	}
	p.AddressesFound = len(addressPattern.FindAllString(text, -1))
	p.TextLength = len([]rune(text))
	return p
}

// ProbeTable renders county probes
func ProbeTable(probes []CountyProbe) *report.Table {
	t := report.NewTable("county", "url", "addresses_found", "raw_text_length", "error")
	for _, p := range probes {
		t.Append(p.County, p.URL, strconv.Itoa(p.AddressesFound), strconv.Itoa(p.TextLength), p.Error)
	}
	return t
}

// get fetches url and requires a 200
func get(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	return body, nil
}

// Sheet summarizes one worksheet of the impact report
type Sheet struct {
	Name    string   `json:"name"`
	Rows    int      `json:"rows"` // data rows below the header
	Columns int      `json:"columns"`
	Header  []string `json:"header"`
}

// DownloadImpact saves the CACFP impact report into dir and lists its sheets
func (c *CACFP) DownloadImpact(ctx context.Context, client *http.Client, dir string) (string, []Sheet, error) {
	if client == nil {
		client = c.client
	}
	path := filepath.Join(dir, report.FileCACFPImpact)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, err
	}
	if err := downloadFile(ctx, client, c.impactURL, path); err != nil {
		return "", nil, fmt.Errorf("failed to download impact report: %w", err)
	}
	sheets, err := ReadSheets(path)
	if err != nil {
		return path, nil, err
	}
	return path, sheets, nil
}

// ReadSheets lists the worksheets of an xlsx workbook with row and column counts
func ReadSheets(path string) ([]Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	var sheets []Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		s := Sheet{Name: name}
		if len(rows) > 0 {
			s.Header = rows[0]
			s.Columns = len(rows[0])
			s.Rows = len(rows) - 1
		}
		sheets = append(sheets, s)
	}
	return sheets, nil
}

// Site is a food program participant
type Site struct {
	Name    string
	Address string
	City    string
}

// ReadSites loads a participant list with name, address and city columns
func ReadSites(path string) ([]Site, error) {
	t, err := report.ReadFile(path)
	if err != nil {
		return nil, err
	}
	for i, h := range t.Header {
		t.Header[i] = facility.NormalizeHeader(h)
	}
	if !t.HasColumn("name") {
		return nil, fmt.Errorf("%s: missing name column", path)
	}
	var sites []Site
	for _, rec := range t.Records() {
		if strings.TrimSpace(rec.Get("name")) == "" {
			continue
		}
		sites = append(sites, Site{Name: rec.Get("name"), Address: rec.Get("address"), City: rec.Get("city")})
	}
	return sites, nil
}

// Candidate is a flagged facility checked against the participant list
type Candidate struct {
	Number   string
	Name     string
	Licensee string
	City     string
	Score    int
}

// SiteMatch pairs a participant with a flagged facility
type SiteMatch struct {
	Site       Site
	Candidate  Candidate
	MatchedOn  string // facility_name or licensee
	Similarity float64
}

// MatchSites pairs each site with its most similar flagged facility when the
// name similarity reaches threshold. Matches are ordered by score, then
// similarity.
func MatchSites(sites []Site, candidates []Candidate, threshold float64) []SiteMatch {
	var matches []SiteMatch
	for _, s := range sites {
		best := SiteMatch{Site: s}
		for _, c := range candidates {
			if sim := facility.NameSimilarity(s.Name, c.Name); sim > best.Similarity {
				best.Candidate, best.MatchedOn, best.Similarity = c, "facility_name", sim
			}
			if sim := facility.NameSimilarity(s.Name, c.Licensee); sim > best.Similarity {
				best.Candidate, best.MatchedOn, best.Similarity = c, "licensee", sim
			}
		}
		if best.Similarity >= threshold {
			matches = append(matches, best)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Candidate.Score != matches[j].Candidate.Score {
			return matches[i].Candidate.Score > matches[j].Candidate.Score
		}
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

// MatchTable renders site matches
func MatchTable(matches []SiteMatch) *report.Table {
	t := report.NewTable("site_name", "site_address", "site_city", "facility_number", "facility_name",
		"licensee", "facility_city", "fraud_score", "matched_on", "similarity")
	for _, m := range matches {
		t.Append(m.Site.Name, m.Site.Address, m.Site.City, m.Candidate.Number, m.Candidate.Name,
			m.Candidate.Licensee, m.Candidate.City, strconv.Itoa(m.Candidate.Score), m.MatchedOn,
			strconv.FormatFloat(m.Similarity, 'f', 3, 64))
	}
	return t
}
