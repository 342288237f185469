package facility

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `Facility Type,Facility Number,Facility Name,Licensee,Facility Administrator,Facility Telephone Number,Facility Address,Facility City,Facility State,Facility Zip,County Name,Regional Office,Facility Capacity,Facility Status,License First Date,Closed Date
DAY CARE CENTER,197400001,LITTLE STARS ACADEMY,"SMITH, JANE",JANE SMITH,(213) 555-0101,123 Main St.,Los Angeles,CA,90001,LOS ANGELES,LA,12,LICENSED,3/15/2021,
DAY CARE CENTER,197400002.0,BRIGHT FUTURE KIDS,BRIGHT FUTURE LLC,,213-555-0101,"123 MAIN ST, ",LOS ANGELES,CA,90001-1234,LOS ANGELES,LA,n/a,CLOSED,1/10/2020,6/10/2021
`

func TestReadCSV(t *testing.T) {
	facilities, err := ReadCSV(strings.NewReader(sampleCSV), DatasetCenters)
	require.NoError(t, err)
	require.Len(t, facilities, 2)

	first := facilities[0]
	assert.Equal(t, DatasetCenters, first.Dataset)
	assert.Equal(t, "197400001", first.Number)
	assert.Equal(t, "LITTLE STARS ACADEMY", first.Name)
	assert.Equal(t, "SMITH, JANE", first.Licensee)
	assert.Equal(t, 12, first.Capacity)
	assert.True(t, first.IsLicensed())
	require.NotNil(t, first.LicenseFirstDate)
	assert.Equal(t, 2021, first.LicenseYear())
	assert.Nil(t, first.ClosedDate)
	assert.Equal(t, "LOS ANGELES", first.Get("county_name"))

	second := facilities[1]
	assert.Equal(t, "197400002", second.Number, "spreadsheet float suffix is dropped")
	assert.Equal(t, 0, second.Capacity, "unparseable capacity becomes 0")
	assert.Equal(t, "90001", second.Zip5())
	months, ok := second.MonthsOperated()
	require.True(t, ok)
	assert.InDelta(t, 17.2, months, 0.001)
}

func TestReadCSV_FallbackColumns(t *testing.T) {
	data := "Name,Total Capacity,County,License Status\nA,8,Fresno,PENDING\n"
	facilities, err := ReadCSV(strings.NewReader(data), DatasetHomes)
	require.NoError(t, err)
	require.Len(t, facilities, 1)
	assert.Equal(t, 8, facilities[0].Capacity)
	assert.Equal(t, "Fresno", facilities[0].County)
	assert.Equal(t, "PENDING", facilities[0].Status)
}

func TestReadCSV_Empty(t *testing.T) {
	facilities, err := ReadCSV(strings.NewReader(""), DatasetHomes)
	require.NoError(t, err)
	assert.Empty(t, facilities)
}

func TestLoadWorkspace(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadWorkspace(dir)
	assert.ErrorIs(t, err, ErrNoData)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DatasetHomes.RawFile()), []byte(sampleCSV), 0o644))
	facilities, err := LoadWorkspace(dir)
	require.NoError(t, err)
	assert.Len(t, facilities, 2)
	assert.Equal(t, DatasetHomes, facilities[0].Dataset)
}

func TestCovidEraAndMonths(t *testing.T) {
	d := func(s string) *time.Time { return ParseDate(s) }

	tests := []struct {
		name       string
		first      *time.Time
		closed     *time.Time
		covid      bool
		wantMonths float64
		wantOK     bool
	}{
		{"covid open", d("2020-06-01"), nil, true, 0, false},
		{"pre covid", d("2019-12-31"), d("2020-12-31"), false, 12.2, true},
		{"post covid", d("2023-01-01"), nil, false, 0, false},
		{"no dates", nil, nil, false, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Facility{LicenseFirstDate: tt.first, ClosedDate: tt.closed}
			assert.Equal(t, tt.covid, f.IsCovidEra())
			months, ok := f.MonthsOperated()
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.wantMonths, months, 0.001)
		})
	}
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{"3/5/2021", "03/05/2021", "2021-03-05", "2021-03-05 00:00:00", "3/5/2021 12:00:00 AM"} {
		got := ParseDate(s)
		require.NotNil(t, got, s)
		assert.Equal(t, "2021-03-05", FormatDate(got), s)
	}
	assert.Nil(t, ParseDate("not a date"))
	assert.Nil(t, ParseDate(""))
}
