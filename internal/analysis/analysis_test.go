package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

func fac(number, name, licensee string, capacity int, status, county string) facility.Facility {
	return facility.Facility{
		Dataset:  facility.DatasetHomes,
		Number:   number,
		Name:     name,
		Licensee: licensee,
		Capacity: capacity,
		Status:   status,
		County:   county,
	}
}

func TestLowCapacity(t *testing.T) {
	facilities := []facility.Facility{
		fac("1", "A", "L1", 8, "LICENSED", "LOS ANGELES"),
		fac("2", "B", "L2", 6, "CLOSED", "LOS ANGELES"),
		fac("3", "C", "L3", 0, "LICENSED", "LOS ANGELES"), // unknown capacity
		fac("4", "D", "L4", 14, "LICENSED", "ORANGE"),     // at threshold
		fac("5", "E", "L5", 12, "PENDING", "Orange "),
	}

	tests := []struct {
		name       string
		opts       LowCapacityOptions
		analyzed   int
		low        int
		suspicious int
		licensed   int
		min, max   int
	}{
		{"all counties", LowCapacityOptions{}, 5, 3, 2, 1, 6, 12},
		{"county filter", LowCapacityOptions{Counties: []string{"orange"}}, 2, 1, 1, 0, 12, 12},
		{"lower threshold", LowCapacityOptions{Threshold: 8}, 5, 1, 1, 0, 6, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := LowCapacity(facilities, tt.opts)
			assert.Equal(t, tt.analyzed, res.Analyzed)
			assert.Len(t, res.LowCapacity, tt.low)
			assert.Len(t, res.Suspicious, tt.suspicious)
			assert.Len(t, res.Licensed, tt.licensed)
			assert.Equal(t, tt.min, res.MinCapacity)
			assert.Equal(t, tt.max, res.MaxCapacity)
		})
	}

	res := LowCapacity(facilities, LowCapacityOptions{})
	require.NotEmpty(t, res.ByCounty)
	assert.Equal(t, "LOS ANGELES", res.ByCounty[0].Key)
	assert.Equal(t, 2, res.ByCounty[0].N)
	assert.Equal(t, 3, FacilityTable(res.LowCapacity).Len())
}

func TestLowCapacity_ByTypeCountsFacilityType(t *testing.T) {
	withType := func(number, typ string, capacity int) facility.Facility {
		f := fac(number, "N"+number, "L"+number, capacity, "LICENSED", "KERN")
		f.Type = typ
		return f
	}
	facilities := []facility.Facility{
		withType("1", "FAMILY CHILD CARE HOME", 6),
		withType("2", "FAMILY CHILD CARE HOME", 8),
		withType("3", "INFANT CENTER", 10),
		withType("4", "", 4),
		withType("5", "INFANT CENTER", 20),
	}

	res := LowCapacity(facilities, LowCapacityOptions{})
	assert.Equal(t, []report.Count{{Key: "FAMILY CHILD CARE HOME", N: 2}, {Key: "INFANT CENTER", N: 1}}, res.ByType)
	assert.Equal(t, []report.Count{{Key: string(facility.DatasetHomes), N: 4}}, res.ByDataset)
}

func TestDuplicatePhones(t *testing.T) {
	withPhone := func(number, licensee, phone string) facility.Facility {
		f := fac(number, "DAYCARE "+number, licensee, 8, "LICENSED", "LOS ANGELES")
		f.Telephone = phone
		return f
	}
	facilities := []facility.Facility{
		withPhone("1", "SMITH, ANN", "(310) 555-1212"),
		withPhone("2", "JONES, BOB", "310-555-1212"),
		withPhone("3", "SMITH, ANN", "3105551212"),
		withPhone("4", "LEE, KIM", "(213) 555-0000"),
		withPhone("5", "LEE, KIM", "213.555.0000"),
		withPhone("6", "SOLO", "555-0000"), // too short to compare
		withPhone("7", "SOLO", "555-0000"),
	}

	res := DuplicatePhones(facilities)
	assert.Equal(t, 2, res.DuplicatedPhones)
	assert.Equal(t, 1, res.SuspiciousPhones)
	assert.Equal(t, []bool{true, true, true, false, false, false, false}, res.SharedPhone)
	assert.Len(t, res.Duplicates, 5)

	require.Len(t, res.Groups, 1)
	g := res.Groups[0]
	assert.Equal(t, "3105551212", g.Phone)
	assert.Equal(t, 3, g.FacilityCount)
	assert.Equal(t, 2, g.UniqueLicensee)
	assert.Equal(t, SuspicionHigh, g.Suspicion)

	table := res.DuplicatesTable(map[string]int{"1": 7})
	recs := table.Records()
	require.Len(t, recs, 5)
	assert.Equal(t, "7", recs[0].Get(ColRiskScore))
	assert.Equal(t, "3105551212", recs[0].Get(ColPhoneClean))
	assert.Equal(t, "0", recs[1].Get(ColRiskScore))

	groups := res.GroupsTable().Records()
	require.Len(t, groups, 1)
	assert.Equal(t, "SMITH, ANN; JONES, BOB", groups[0].Get("licensees"))
}

func TestIsGenericName(t *testing.T) {
	tests := []struct {
		licensee string
		want     bool
	}{
		{"A & B CARE", true},
		{"sunshine learning center", true},
		{"LITTLE ANGELS DAYCARE", true},
		{"ABC PRESCHOOL", true},
		{"KIDZ KORNER", true},
		{"STAR ACADEMY LLC", true},
		{"BRIGHT FUTURE KIDS", true},
		{"GARCIA, MARIA", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.licensee, func(t *testing.T) {
			assert.Equal(t, tt.want, IsGenericName(tt.licensee))
		})
	}
}

func TestLicenseePatterns(t *testing.T) {
	var facilities []facility.Facility
	for _, l := range []string{"GARCIA, MARIA", "GARCIA, MARIA", "GARCIA, MARIA LLC", "NGUYEN, TAM"} {
		facilities = append(facilities, fac("x", "n", l, 8, "LICENSED", "LA"))
	}
	for i := 0; i < 5; i++ {
		facilities = append(facilities, fac("y", "n", "SUNSHINE KIDS CENTER NUMBER ONE", 8, "LICENSED", "LA"))
	}
	facilities = append(facilities, fac("z", "n", "LITTLE STARS PRESCHOOL AND LEARNING", 8, "LICENSED", "LA"))

	res := LicenseePatterns(facilities)

	require.Len(t, res.People, 1)
	assert.Equal(t, "GARCIA, MARIA", res.People[0].Person)
	assert.Equal(t, 3, res.People[0].FacilityCount)
	assert.Equal(t, []string{"GARCIA, MARIA", "GARCIA, MARIA LLC"}, res.People[0].BusinessNames)

	assert.Equal(t, 1, res.GenericCount)
	assert.True(t, res.GenericName[len(facilities)-1])

	require.Len(t, res.Prefixes, 1)
	assert.Equal(t, "SUNSHINE KIDS", res.Prefixes[0].Key)
	assert.Equal(t, 5, res.Prefixes[0].N)
	assert.Len(t, res.DisplayPrefixes(15), 1)
}

func TestGeographicClusters(t *testing.T) {
	var facilities []facility.Facility
	add := func(zip, city string, n, year int) {
		for i := 0; i < n; i++ {
			f := fac("n", "name", "lic", 10, "LICENSED", "LOS ANGELES")
			f.Zip = zip
			f.City = city
			f.LicenseFirstDate = facility.ParseDate("2021-03-01")
			if year != 2021 {
				f.LicenseFirstDate = facility.ParseDate("2015-03-01")
			}
			facilities = append(facilities, f)
		}
	}
	add("90001", "LOS ANGELES", 20, 2021)
	for _, z := range []string{"90002", "90003", "90004", "90005", "90006", "90007", "90008", "90009"} {
		add(z, "LOS ANGELES", 1, 2015)
	}
	add("", "NOWHERE", 3, 2021)

	res := GeographicClusters(facilities)
	require.Len(t, res.Clusters, 9)
	assert.Equal(t, "90001", res.Clusters[0].Zip)
	assert.Equal(t, 200, res.Clusters[0].TotalCapacity)

	require.Len(t, res.HighConcentration, 1)
	assert.Equal(t, "90001", res.HighConcentration[0].Zip)
	assert.Greater(t, res.Threshold, res.Mean)

	require.Len(t, res.CovidHotspots, 1)
	assert.Equal(t, Hotspot{Zip: "90001", City: "LOS ANGELES", Count: 20}, res.CovidHotspots[0])

	assert.Equal(t, 9, res.Table().Len())
}

func TestMeanStdDev(t *testing.T) {
	mean, sd := meanStdDev([]ZipCluster{{FacilityCount: 2}, {FacilityCount: 4}, {FacilityCount: 6}})
	assert.Equal(t, 4.0, mean)
	assert.Equal(t, 2.0, sd)

	mean, sd = meanStdDev([]ZipCluster{{FacilityCount: 3}})
	assert.Equal(t, 3.0, mean)
	assert.Zero(t, sd)
}
