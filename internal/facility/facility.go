package facility

import (
	"math"
	"strings"
	"time"
)

// Dataset identifies which registry extract a facility came from
type Dataset string

const (
	DatasetCenters Dataset = "child_care_centers"
	DatasetHomes   Dataset = "family_child_care_homes"
)

// Datasets lists the registry extracts in download order
var Datasets = []Dataset{DatasetCenters, DatasetHomes}

// RawFile returns the workspace file name a dataset is saved under
func (d Dataset) RawFile() string {
	return "raw_" + string(d) + ".csv"
}

// Status values used by the licensing registry
const (
	StatusLicensed  = "LICENSED"
	StatusClosed    = "CLOSED"
	StatusInactive  = "INACTIVE"
	StatusPending   = "PENDING"
	StatusProbation = "ON PROBATION"
)

// Facility is one row of the community care licensing registry
type Facility struct {
	Dataset          Dataset    `json:"dataset" db:"dataset"`
	Type             string     `json:"facility_type" db:"facility_type"`
	Number           string     `json:"facility_number" db:"facility_number"`
	Name             string     `json:"facility_name" db:"facility_name"`
	Licensee         string     `json:"licensee" db:"licensee"`
	Administrator    string     `json:"facility_administrator" db:"facility_administrator"`
	Telephone        string     `json:"facility_telephone_number" db:"facility_telephone_number"`
	Address          string     `json:"facility_address" db:"facility_address"`
	City             string     `json:"facility_city" db:"facility_city"`
	State            string     `json:"facility_state" db:"facility_state"`
	Zip              string     `json:"facility_zip" db:"facility_zip"`
	County           string     `json:"county_name" db:"county_name"`
	RegionalOffice   string     `json:"regional_office" db:"regional_office"`
	Capacity         int        `json:"facility_capacity" db:"facility_capacity"`
	Status           string     `json:"facility_status" db:"facility_status"`
	LicenseFirstDate *time.Time `json:"license_first_date,omitempty" db:"license_first_date"`
	ClosedDate       *time.Time `json:"closed_date,omitempty" db:"closed_date"`

	// Raw keeps every original column keyed by normalized header
	Raw map[string]string `json:"-" db:"-"`
}

// StatusUpper returns the trimmed, upper-cased licensing status
func (f *Facility) StatusUpper() string {
	return strings.ToUpper(strings.TrimSpace(f.Status))
}

// IsLicensed reports whether the facility currently holds an active license
func (f *Facility) IsLicensed() bool {
	return f.StatusUpper() == StatusLicensed
}

// LicenseYear returns the year of first licensure, or 0 when unknown
func (f *Facility) LicenseYear() int {
	if f.LicenseFirstDate == nil {
		return 0
	}
	return f.LicenseFirstDate.Year()
}

// IsCovidEra reports whether the first license was issued in 2020-2022
func (f *Facility) IsCovidEra() bool {
	y := f.LicenseYear()
	return y >= 2020 && y <= 2022
}

// MonthsOperated returns (closed - first licensed) in 30-day months rounded to
// one decimal. ok is false when either date is missing.
func (f *Facility) MonthsOperated() (months float64, ok bool) {
	if f.LicenseFirstDate == nil || f.ClosedDate == nil {
		return 0, false
	}
	days := math.Floor(f.ClosedDate.Sub(*f.LicenseFirstDate).Hours() / 24)
	return math.Round(days/30*10) / 10, true
}

// Zip5 returns the first five characters of the ZIP code
func (f *Facility) Zip5() string {
	z := strings.TrimSpace(f.Zip)
	if len(z) > 5 {
		return z[:5]
	}
	return z
}

// Get returns the raw value of a column by its normalized header name
func (f *Facility) Get(column string) string {
	if f.Raw == nil {
		return ""
	}
	return f.Raw[column]
}
