package networks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
	"github.com/sawpanic/daycarewatch/internal/scoring"
)

const (
	ownerMinFacilities = 3
	ownerLimit         = 50
	ownerJitter        = 0.02
	minMappedPoints    = 2
)

// largeOperators are school districts, national chains and similar licensees
// whose many facilities are expected
var largeOperators = []string{
	"LAUSD", "LOS ANGELES UNIFIED", "BRIGHT HORIZONS", "KINDERCARE",
	"YMCA", "BOYS & GIRLS CLUB", "HEAD START", "COMMUNITY CHILD CARE COUNCIL",
	"CHILDREN'S WORLD", "LA PETITE", "CHILDTIME", "TUTOR TIME",
	"PRIMROSE", "GODDARD", "MONTESSORI", "LEARNING TREE",
	"STATE PRESCHOOL", "SCHOOL DISTRICT", "UNIFIED SCHOOL",
	"COUNTY OFFICE OF EDUCATION", "PTSA", "PTA",
}

// IsLargeOperator reports whether a licensee is a known large operator
func IsLargeOperator(licensee string) bool {
	upper := strings.ToUpper(licensee)
	for _, op := range largeOperators {
		if strings.Contains(upper, op) {
			return true
		}
	}
	return false
}

// OwnerGroup is a licensee running several high-risk facilities
type OwnerGroup struct {
	Licensee   string
	Facilities []scoring.Indicator
	AvgScore   float64
}

// OwnerGroups groups high-risk facilities by normalized licensee, skipping
// large operators. Groups of three or more are ordered by size, then average
// score, and capped at 50.
func OwnerGroups(highRisk []scoring.Indicator) []OwnerGroup {
	byLicensee := make(map[string][]scoring.Indicator)
	for _, in := range highRisk {
		key := facility.NormalizeLicensee(in.Facility.Licensee)
		if key == "" || IsLargeOperator(key) {
			continue
		}
		byLicensee[key] = append(byLicensee[key], in)
	}

	var groups []OwnerGroup
	for licensee, facilities := range byLicensee {
		if len(facilities) < ownerMinFacilities {
			continue
		}
		sum := 0
		for _, f := range facilities {
			sum += f.Score
		}
		groups = append(groups, OwnerGroup{
			Licensee:   licensee,
			Facilities: facilities,
			AvgScore:   float64(sum) / float64(len(facilities)),
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if len(a.Facilities) != len(b.Facilities) {
			return len(a.Facilities) > len(b.Facilities)
		}
		if a.AvgScore != b.AvgScore {
			return a.AvgScore > b.AvgScore
		}
		return a.Licensee < b.Licensee
	})
	if len(groups) > ownerLimit {
		groups = groups[:ownerLimit]
	}
	return groups
}

type facilityPopup struct {
	Color     string
	Name      string
	Licensee  string
	Address   string
	City      string
	Status    string
	Capacity  string
	Score     int
	Phone     string
	Licensed  string
	ShowFlags bool
	Flags     string
	Footer    string
}

// OwnerPage maps owner groups. Facilities are placed at their city centroid;
// groups with fewer than two placed facilities are left out.
func OwnerPage(groups []OwnerGroup, jitter *Jitter) *Page {
	page := &Page{
		File:    report.FileOwnerNetworkMap,
		Title:   "Owner Networks",
		Heading: "Multi-Facility Licensee Analysis",
		Description: "Individuals or entities operating 3+ flagged childcare facilities, " +
			"excluding school districts and national chains.",
		Note: "Lines connect facilities operated by the same licensee. Larger circles indicate more facilities.",
	}

	owners, placed := 0, 0
	for _, g := range groups {
		type spot struct {
			p  Point
			in scoring.Indicator
		}
		var spots []spot
		for _, in := range g.Facilities {
			if p, ok := CityPoint(in.Facility.City); ok {
				spots = append(spots, spot{jitter.Offset(p, ownerJitter), in})
			}
		}
		if len(spots) < minMappedPoints {
			continue
		}

		c := color(owners)
		owners++
		radius := 8 + min(len(g.Facilities), 10)
		points := make([]Point, 0, len(spots))
		for _, s := range spots {
			f := &s.in.Facility
			page.Markers = append(page.Markers, Marker{
				Lat: s.p.Lat, Lng: s.p.Lng, Radius: radius, Color: c,
				Popup: popup("facility", facilityPopup{
					Color:     c,
					Name:      f.Name,
					Licensee:  f.Licensee,
					Address:   f.Address,
					City:      f.City,
					Status:    f.Status,
					Score:     s.in.Score,
					Phone:     f.Telephone,
					ShowFlags: true,
					Flags:     strings.Join(flagNames(s.in.Flags), ", "),
					Footer:    fmt.Sprintf("This licensee operates %d facilities", len(g.Facilities)),
				}),
			})
			points = append(points, s.p)
			placed++
		}
		page.Lines = append(page.Lines, connect(points, c, 2, "5, 5")...)
	}

	page.Stats = []Stat{{"Licensee Networks", owners}, {"Facilities", placed}}
	return page
}

func flagNames(flags []scoring.Flag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}
