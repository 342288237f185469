package analysis

import (
	"strings"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// DefaultCapacityThreshold flags facilities licensed for fewer than 14 children.
// Family child care homes are typically licensed for 6-14.
const DefaultCapacityThreshold = 14

// LowCapacityOptions controls the low-capacity screen
type LowCapacityOptions struct {
	Threshold int
	Counties  []string // empty means all counties
}

// LowCapacityResult is the outcome of the low-capacity screen
type LowCapacityResult struct {
	Threshold   int
	Analyzed    int // facilities after the county filter
	LowCapacity []facility.Facility
	Suspicious  []facility.Facility // low capacity and not LICENSED
	Licensed    []facility.Facility // low capacity and LICENSED
	ByCounty    []report.Count
	ByType      []report.Count // facility_type, blanks not counted
	ByDataset   []report.Count
	ByStatus    []report.Count
	MinCapacity int
	MaxCapacity int
}

// LowCapacity selects facilities with 0 < capacity < threshold. A capacity of 0
// means the registry had no usable value and is excluded.
func LowCapacity(facilities []facility.Facility, opts LowCapacityOptions) *LowCapacityResult {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultCapacityThreshold
	}

	var wanted map[string]bool
	if len(opts.Counties) > 0 {
		wanted = make(map[string]bool, len(opts.Counties))
		for _, c := range opts.Counties {
			wanted[strings.ToUpper(strings.TrimSpace(c))] = true
		}
	}

	res := &LowCapacityResult{Threshold: opts.Threshold}
	byCounty := make(map[string]int)
	byType := make(map[string]int)
	byDataset := make(map[string]int)
	byStatus := make(map[string]int)

	for i := range facilities {
		f := &facilities[i]
		if wanted != nil && !wanted[strings.ToUpper(strings.TrimSpace(f.County))] {
			continue
		}
		res.Analyzed++

		if f.Capacity <= 0 || f.Capacity >= opts.Threshold {
			continue
		}

		res.LowCapacity = append(res.LowCapacity, *f)
		byCounty[f.County]++
		if t := strings.TrimSpace(f.Type); t != "" {
			byType[t]++
		}
		byDataset[string(f.Dataset)]++
		byStatus[f.Status]++

		if f.IsLicensed() {
			res.Licensed = append(res.Licensed, *f)
		} else {
			res.Suspicious = append(res.Suspicious, *f)
		}

		if res.MinCapacity == 0 || f.Capacity < res.MinCapacity {
			res.MinCapacity = f.Capacity
		}
		if f.Capacity > res.MaxCapacity {
			res.MaxCapacity = f.Capacity
		}
	}

	res.ByCounty = report.SortCounts(byCounty)
	res.ByType = report.SortCounts(byType)
	res.ByDataset = report.SortCounts(byDataset)
	res.ByStatus = report.SortCounts(byStatus)
	return res
}

// FacilityTable renders a facility slice as an artifact
func FacilityTable(facilities []facility.Facility) *report.Table {
	t := report.NewFacilityTable()
	for i := range facilities {
		t.AppendFacility(&facilities[i])
	}
	return t
}
