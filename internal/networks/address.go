package networks

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
	"github.com/sawpanic/daycarewatch/internal/scoring"
)

const (
	addressLimit  = 100
	addressJitter = 0.001
)

// AddressGroup is a street address shared by facilities of different licensees
type AddressGroup struct {
	Address    string
	Facilities []scoring.Indicator
}

// AddressGroups groups duplicate-address facilities by normalized street
// address and keeps addresses shared by two or more distinct licensees, in
// address order, up to 100.
func AddressGroups(duplicates []scoring.Indicator) []AddressGroup {
	byAddress := make(map[string][]scoring.Indicator)
	for _, in := range duplicates {
		key := facility.NormalizeAddress(in.Facility.Address)
		if key == "" {
			continue
		}
		byAddress[key] = append(byAddress[key], in)
	}

	keys := make([]string, 0, len(byAddress))
	for k := range byAddress {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var groups []AddressGroup
	for _, k := range keys {
		facilities := byAddress[k]
		if len(facilities) < 2 || !differentLicensees(facilities) {
			continue
		}
		groups = append(groups, AddressGroup{Address: k, Facilities: facilities})
		if len(groups) == addressLimit {
			break
		}
	}
	return groups
}

func differentLicensees(facilities []scoring.Indicator) bool {
	seen := make(map[string]bool)
	for _, in := range facilities {
		if l := facility.NormalizeLicensee(in.Facility.Licensee); l != "" {
			seen[l] = true
		}
	}
	return len(seen) > 1
}

// AddressPage maps address groups at their city centroid, Los Angeles when
// the city is unknown
func AddressPage(groups []AddressGroup, jitter *Jitter) *Page {
	page := &Page{
		File:        report.FileAddressNetworkMap,
		Title:       "Address Networks",
		Heading:     "Shared Address Analysis",
		Description: "Physical addresses where facilities with different licensees are registered.",
		Note:        "Each colour is one address. Markers are spread slightly so they do not overlap.",
	}

	placed := 0
	for i, g := range groups {
		c := color(i)
		for _, in := range g.Facilities {
			f := &in.Facility
			base, ok := CityPoint(f.City)
			if !ok {
				base = LosAngeles
			}
			p := jitter.Offset(base, addressJitter)
			capacity := ""
			if f.Capacity > 0 {
				capacity = strconv.Itoa(f.Capacity)
			}
			page.Markers = append(page.Markers, Marker{
				Lat: p.Lat, Lng: p.Lng, Radius: 10, Color: c,
				Popup: popup("facility", facilityPopup{
					Color:    c,
					Name:     f.Name,
					Licensee: f.Licensee,
					Address:  f.Address,
					City:     f.City,
					Status:   f.Status,
					Capacity: capacity,
					Phone:    f.Telephone,
					Licensed: facility.FormatDate(f.LicenseFirstDate),
					Footer:   fmt.Sprintf("%d facilities at this address", len(g.Facilities)),
				}),
			})
			placed++
		}
	}

	page.Stats = []Stat{{"Shared Addresses", len(groups)}, {"Facilities", placed}}
	return page
}
