package networks

import (
	"sort"
	"strings"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

const (
	phoneJitter       = 0.002
	phonePopupLimit   = 5
	phoneNameLength   = 40
	phoneMinFacilites = 2
	phoneSameZipMin   = 3
)

// PhoneRow is a facility from the shared-phone artifact
type PhoneRow struct {
	Facility  facility.Facility
	Phone     string // digits only
	RiskScore int
}

// PhoneRowsFromTable reads DUPLICATE_PHONE_FACILITIES.csv rows
func PhoneRowsFromTable(t *report.Table) []PhoneRow {
	var rows []PhoneRow
	for _, rec := range t.Records() {
		f := report.FacilityFromRecord(rec)
		phone := rec.Get(report.ColPhoneClean)
		if phone == "" {
			phone = facility.CleanPhone(f.Telephone)
		}
		rows = append(rows, PhoneRow{Facility: f, Phone: phone, RiskScore: rec.Int(report.ColRiskScore)})
	}
	return rows
}

// PhoneLocation is one ZIP code within a phone network
type PhoneLocation struct {
	Zip        string
	Point      Point
	Facilities []PhoneRow
}

// PhoneNetwork is a phone number shared across locations
type PhoneNetwork struct {
	Phone      string
	Facilities []PhoneRow
	Locations  []PhoneLocation
}

// Geocoder places a facility by ZIP, falling back to its city
type Geocoder struct {
	Gazetteer Gazetteer
}

// Locate returns the ZIP centroid, else the city centroid
func (g Geocoder) Locate(f *facility.Facility) (Point, bool) {
	if p, ok := g.Gazetteer.Lookup(f.Zip5()); ok {
		return p, true
	}
	return CityPoint(f.City)
}

// PhoneNetworks groups geocoded facilities by phone. A phone is kept when it
// has two or more facilities spread over several ZIP codes, or three or more
// in one. Each ZIP becomes one location placed at its first facility.
func PhoneNetworks(rows []PhoneRow, geo Geocoder, jitter *Jitter) []PhoneNetwork {
	type placed struct {
		row PhoneRow
		p   Point
	}
	byPhone := make(map[string][]placed)
	for _, r := range rows {
		if !facility.ValidPhone(r.Phone) {
			continue
		}
		p, ok := geo.Locate(&r.Facility)
		if !ok {
			continue
		}
		byPhone[r.Phone] = append(byPhone[r.Phone], placed{r, jitter.Offset(p, phoneJitter)})
	}

	phones := make([]string, 0, len(byPhone))
	for p := range byPhone {
		phones = append(phones, p)
	}
	sort.Strings(phones)

	var networks []PhoneNetwork
	for _, phone := range phones {
		members := byPhone[phone]
		if len(members) < phoneMinFacilites {
			continue
		}

		zips := make(map[string]int)
		var net PhoneNetwork
		net.Phone = phone
		for _, m := range members {
			net.Facilities = append(net.Facilities, m.row)
			zip := m.row.Facility.Zip5()
			i, ok := zips[zip]
			if !ok {
				i = len(net.Locations)
				zips[zip] = i
				net.Locations = append(net.Locations, PhoneLocation{Zip: zip, Point: m.p})
			}
			net.Locations[i].Facilities = append(net.Locations[i].Facilities, m.row)
		}
		if len(net.Locations) < 2 && len(members) < phoneSameZipMin {
			continue
		}
		networks = append(networks, net)
	}
	return networks
}

// RiskColor shades a risk score
func RiskColor(score int) string {
	switch {
	case score >= 8:
		return "#f85149"
	case score >= 6:
		return "#fd7e14"
	case score >= 4:
		return "#ffc107"
	default:
		return "#3fb950"
	}
}

type phoneFacility struct {
	Name        string
	Status      string
	StatusColor string
	Risk        int
	RiskColor   string
	City        string
}

type phonePopup struct {
	Color       string
	Phone       string
	AtLocation  int
	NetworkSize int
	Facilities  []phoneFacility
	More        int
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

// PhonePage maps phone networks with lines between their locations
func PhonePage(networks []PhoneNetwork) *Page {
	page := &Page{
		File:        report.FilePhoneNetworkMap,
		Title:       "Phone Networks",
		Heading:     "Shared Phone Number Networks",
		Description: "Facilities in different locations that list the same phone number.",
		Note:        "Lines connect locations sharing a phone number. Circle size grows with the facilities at a location.",
	}

	total := 0
	for i, net := range networks {
		c := color(i)
		total += len(net.Facilities)

		points := make([]Point, len(net.Locations))
		for j, loc := range net.Locations {
			points[j] = loc.Point
		}
		page.Lines = append(page.Lines, connect(points, c, 3, "10, 5")...)

		for _, loc := range net.Locations {
			pp := phonePopup{
				Color:       c,
				Phone:       loc.Facilities[0].Facility.Telephone,
				AtLocation:  len(loc.Facilities),
				NetworkSize: len(net.Facilities),
			}
			for k, r := range loc.Facilities {
				if k == phonePopupLimit {
					pp.More = len(loc.Facilities) - phonePopupLimit
					break
				}
				statusColor := "#3fb950"
				if strings.EqualFold(r.Facility.Status, facility.StatusClosed) {
					statusColor = "#f85149"
				}
				pp.Facilities = append(pp.Facilities, phoneFacility{
					Name:        truncate(r.Facility.Name, phoneNameLength),
					Status:      r.Facility.Status,
					StatusColor: statusColor,
					Risk:        r.RiskScore,
					RiskColor:   RiskColor(r.RiskScore),
					City:        r.Facility.City,
				})
			}
			page.Markers = append(page.Markers, Marker{
				Lat: loc.Point.Lat, Lng: loc.Point.Lng, Radius: 8 + 2*len(loc.Facilities), Color: c,
				Popup: popup("phone", pp),
			})
		}
	}

	page.Stats = []Stat{{"Phone Networks", len(networks)}, {"Facilities", total}}
	return page
}
