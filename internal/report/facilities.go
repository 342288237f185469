package report

import (
	"strconv"

	"github.com/sawpanic/daycarewatch/internal/facility"
)

// FacilityColumns is the column order used for every facility-level artifact
var FacilityColumns = []string{
	facility.ColType,
	facility.ColNumber,
	facility.ColName,
	facility.ColLicensee,
	facility.ColAdministrator,
	facility.ColTelephone,
	facility.ColAddress,
	facility.ColCity,
	facility.ColState,
	facility.ColZip,
	facility.ColCounty,
	facility.ColRegionalOffice,
	facility.ColCapacity,
	facility.ColStatus,
	facility.ColLicenseFirst,
	facility.ColClosed,
	ColDataset,
}

// ColDataset records which registry extract a row came from
const ColDataset = "dataset"

// NewFacilityTable creates a table with the facility columns followed by extra
func NewFacilityTable(extra ...string) *Table {
	header := make([]string, 0, len(FacilityColumns)+len(extra))
	header = append(header, FacilityColumns...)
	header = append(header, extra...)
	return NewTable(header...)
}

// FacilityRow renders the facility columns of f
func FacilityRow(f *facility.Facility) []string {
	return []string{
		f.Type,
		f.Number,
		f.Name,
		f.Licensee,
		f.Administrator,
		f.Telephone,
		f.Address,
		f.City,
		f.State,
		f.Zip,
		f.County,
		f.RegionalOffice,
		strconv.Itoa(f.Capacity),
		f.Status,
		facility.FormatDate(f.LicenseFirstDate),
		facility.FormatDate(f.ClosedDate),
		string(f.Dataset),
	}
}

// AppendFacility adds f followed by extra column values
func (t *Table) AppendFacility(f *facility.Facility, extra ...string) {
	row := FacilityRow(f)
	t.Append(append(row, extra...)...)
}

// FacilityFromRecord rebuilds a facility from an artifact row
func FacilityFromRecord(r Record) facility.Facility {
	return facility.Facility{
		Dataset:          facility.Dataset(r.Get(ColDataset)),
		Type:             r.Get(facility.ColType),
		Number:           facility.NormalizeFacilityNumber(r.Get(facility.ColNumber)),
		Name:             r.Get(facility.ColName),
		Licensee:         r.Get(facility.ColLicensee),
		Administrator:    r.Get(facility.ColAdministrator),
		Telephone:        r.Get(facility.ColTelephone),
		Address:          r.Get(facility.ColAddress),
		City:             r.Get(facility.ColCity),
		State:            r.Get(facility.ColState),
		Zip:              r.Get(facility.ColZip),
		County:           r.Get(facility.ColCounty),
		RegionalOffice:   r.Get(facility.ColRegionalOffice),
		Capacity:         facility.ParseCapacity(r.Get(facility.ColCapacity)),
		Status:           r.Get(facility.ColStatus),
		LicenseFirstDate: facility.ParseDate(r.Get(facility.ColLicenseFirst)),
		ClosedDate:       facility.ParseDate(r.Get(facility.ColClosed)),
		Raw:              map[string]string(r),
	}
}
