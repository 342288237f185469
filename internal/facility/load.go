package facility

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNoData is returned when no registry extract is present in the workspace
var ErrNoData = errors.New("no facility data in workspace (run fetch first)")

// Canonical column names after header normalization
const (
	ColType           = "facility_type"
	ColNumber         = "facility_number"
	ColName           = "facility_name"
	ColLicensee       = "licensee"
	ColAdministrator  = "facility_administrator"
	ColTelephone      = "facility_telephone_number"
	ColAddress        = "facility_address"
	ColCity           = "facility_city"
	ColState          = "facility_state"
	ColZip            = "facility_zip"
	ColCounty         = "county_name"
	ColRegionalOffice = "regional_office"
	ColCapacity       = "facility_capacity"
	ColStatus         = "facility_status"
	ColLicenseFirst   = "license_first_date"
	ColClosed         = "closed_date"
)

// NormalizeHeader lower-cases a column name and replaces spaces with underscores
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

// columnIndex resolves canonical columns to positions in a header row
type columnIndex struct {
	headers []string
	pos     map[string]int
}

func newColumnIndex(header []string) *columnIndex {
	idx := &columnIndex{headers: make([]string, len(header)), pos: make(map[string]int)}
	for i, h := range header {
		n := NormalizeHeader(h)
		idx.headers[i] = n
		if _, dup := idx.pos[n]; !dup {
			idx.pos[n] = i
		}
	}
	return idx
}

// find returns the exact column, or the first column containing fallback
func (c *columnIndex) find(name, fallback string) int {
	if i, ok := c.pos[name]; ok {
		return i
	}
	if fallback == "" {
		return -1
	}
	for i, h := range c.headers {
		if strings.Contains(h, fallback) {
			return i
		}
	}
	return -1
}

func (c *columnIndex) value(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ReadCSV parses a registry extract into facilities tagged with dataset
func ReadCSV(r io.Reader, dataset Dataset) ([]Facility, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx := newColumnIndex(header)

	cols := map[string]int{
		ColType:           idx.find(ColType, ""),
		ColNumber:         idx.find(ColNumber, ""),
		ColName:           idx.find(ColName, ""),
		ColLicensee:       idx.find(ColLicensee, ""),
		ColAdministrator:  idx.find(ColAdministrator, ""),
		ColTelephone:      idx.find(ColTelephone, "telephone"),
		ColAddress:        idx.find(ColAddress, ""),
		ColCity:           idx.find(ColCity, ""),
		ColState:          idx.find(ColState, ""),
		ColZip:            idx.find(ColZip, ""),
		ColCounty:         idx.find(ColCounty, "county"),
		ColRegionalOffice: idx.find(ColRegionalOffice, ""),
		ColCapacity:       idx.find(ColCapacity, "capacity"),
		ColStatus:         idx.find(ColStatus, "status"),
		ColLicenseFirst:   idx.find(ColLicenseFirst, ""),
		ColClosed:         idx.find(ColClosed, ""),
	}

	var facilities []Facility
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		raw := make(map[string]string, len(row))
		for i, v := range row {
			if i < len(idx.headers) {
				raw[idx.headers[i]] = v
			}
		}

		f := Facility{
			Dataset:        dataset,
			Type:           idx.value(row, cols[ColType]),
			Number:         NormalizeFacilityNumber(idx.value(row, cols[ColNumber])),
			Name:           idx.value(row, cols[ColName]),
			Licensee:       idx.value(row, cols[ColLicensee]),
			Administrator:  idx.value(row, cols[ColAdministrator]),
			Telephone:      idx.value(row, cols[ColTelephone]),
			Address:        idx.value(row, cols[ColAddress]),
			City:           idx.value(row, cols[ColCity]),
			State:          idx.value(row, cols[ColState]),
			Zip:            idx.value(row, cols[ColZip]),
			County:         idx.value(row, cols[ColCounty]),
			RegionalOffice: idx.value(row, cols[ColRegionalOffice]),
			Capacity:       ParseCapacity(idx.value(row, cols[ColCapacity])),
			Status:         idx.value(row, cols[ColStatus]),
			Raw:            raw,
		}
		f.LicenseFirstDate = ParseDate(idx.value(row, cols[ColLicenseFirst]))
		f.ClosedDate = ParseDate(idx.value(row, cols[ColClosed]))
		facilities = append(facilities, f)
	}

	return facilities, nil
}

// ReadFile parses a registry extract from disk
func ReadFile(path string, dataset Dataset) ([]Facility, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	facilities, err := ReadCSV(file, dataset)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return facilities, nil
}

// LoadWorkspace reads every downloaded registry extract found in dir
func LoadWorkspace(dir string) ([]Facility, error) {
	var all []Facility
	found := 0
	for _, ds := range Datasets {
		path := filepath.Join(dir, ds.RawFile())
		facilities, err := ReadFile(path, ds)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		found++
		all = append(all, facilities...)
	}
	if found == 0 {
		return nil, ErrNoData
	}
	return all, nil
}

// ParseCapacity converts a capacity cell to an int; anything unparseable is 0
func ParseCapacity(s string) int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f)
	}
	return 0
}

// NormalizeFacilityNumber strips a trailing ".0" left by spreadsheet exports
func NormalizeFacilityNumber(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, ".0") {
		if _, err := strconv.Atoi(strings.TrimSuffix(s, ".0")); err == nil {
			return strings.TrimSuffix(s, ".0")
		}
	}
	return s
}

var dateLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	"2006-01-02",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"01/02/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseDate parses the registry's date formats; unparseable input yields nil
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// FormatDate renders a date the way the reports print it
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
