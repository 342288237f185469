package analysis

import (
	"math"
	"sort"
	"strconv"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// ZipCluster aggregates the facilities in one ZIP code
type ZipCluster struct {
	Zip           string `json:"zip"`
	FacilityCount int    `json:"facility_count"`
	TotalCapacity int    `json:"total_capacity"`
	County        string `json:"county"`
	City          string `json:"city"`
}

// Hotspot is a ZIP with many COVID-era licenses
type Hotspot struct {
	Zip   string `json:"zip"`
	City  string `json:"city"`
	Count int    `json:"count"`
}

// GeoResult is the outcome of the geographic clustering analysis
type GeoResult struct {
	Clusters          []ZipCluster
	Mean              float64
	StdDev            float64
	Threshold         float64 // mean + 2 standard deviations
	HighConcentration []ZipCluster
	CovidHotspots     []Hotspot
}

const hotspotLimit = 20

// GeographicClusters counts facilities per ZIP and flags ZIPs more than two
// standard deviations above the mean.
func GeographicClusters(facilities []facility.Facility) *GeoResult {
	byZip := make(map[string]*ZipCluster)
	var order []string
	covid := make(map[string]int)

	for i := range facilities {
		f := &facilities[i]
		if f.Zip == "" {
			continue
		}
		c, ok := byZip[f.Zip]
		if !ok {
			c = &ZipCluster{Zip: f.Zip, County: f.County, City: f.City}
			byZip[f.Zip] = c
			order = append(order, f.Zip)
		}
		c.FacilityCount++
		c.TotalCapacity += f.Capacity

		if f.IsCovidEra() {
			covid[f.Zip]++
		}
	}

	res := &GeoResult{}
	for _, z := range order {
		res.Clusters = append(res.Clusters, *byZip[z])
	}
	sort.SliceStable(res.Clusters, func(i, j int) bool {
		return res.Clusters[i].FacilityCount > res.Clusters[j].FacilityCount
	})

	res.Mean, res.StdDev = meanStdDev(res.Clusters)
	res.Threshold = res.Mean + 2*res.StdDev
	for _, c := range res.Clusters {
		if float64(c.FacilityCount) > res.Threshold {
			res.HighConcentration = append(res.HighConcentration, c)
		}
	}

	for _, c := range report.SortCounts(covid) {
		if len(res.CovidHotspots) >= hotspotLimit {
			break
		}
		res.CovidHotspots = append(res.CovidHotspots, Hotspot{Zip: c.Key, City: byZip[c.Key].City, Count: c.N})
	}

	return res
}

// meanStdDev returns the mean and sample standard deviation of facility counts
func meanStdDev(clusters []ZipCluster) (float64, float64) {
	n := float64(len(clusters))
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, c := range clusters {
		sum += float64(c.FacilityCount)
	}
	mean := sum / n
	if n < 2 {
		return mean, 0
	}
	var sq float64
	for _, c := range clusters {
		d := float64(c.FacilityCount) - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / (n - 1))
}

// Table renders the per-ZIP artifact
func (r *GeoResult) Table() *report.Table {
	t := report.NewTable("zip", "facility_count", "total_capacity", "county", "city")
	for _, c := range r.Clusters {
		t.Append(c.Zip, strconv.Itoa(c.FacilityCount), strconv.Itoa(c.TotalCapacity), c.County, c.City)
	}
	return t
}
