package analysis

import (
	"sort"
	"strconv"
	"strings"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

const (
	// SharedPhoneMinFacilities is how many facilities must share a phone to flag it
	SharedPhoneMinFacilities = 3
	// sharedPhoneReportLimit caps the phone groups written to the summary artifact
	sharedPhoneReportLimit = 50

	SuspicionHigh   = "HIGH - Different licensees!"
	SuspicionMedium = "Medium - Same licensee"
)

// PhoneGroup is a phone number shared by several facilities
type PhoneGroup struct {
	Phone          string   `json:"phone"`
	FacilityCount  int      `json:"facility_count"`
	UniqueLicensee int      `json:"unique_licensees"`
	Licensees      []string `json:"licensees"`
	Facilities     []string `json:"facilities"`
	Suspicion      string   `json:"suspicion_level"`
}

// PhoneResult is the outcome of the shared-phone analysis
type PhoneResult struct {
	DuplicatedPhones int // phones used by more than one facility
	SuspiciousPhones int // phones used by SharedPhoneMinFacilities or more
	Groups           []PhoneGroup
	// SharedPhone is indexed like the input and marks facilities on a suspicious phone
	SharedPhone []bool
	// Duplicates lists every facility whose phone is used more than once
	Duplicates []PhoneFacility
}

// PhoneFacility is a facility with its cleaned phone number
type PhoneFacility struct {
	Facility   facility.Facility
	PhoneClean string
}

// DuplicatePhones finds facilities sharing a phone number. Several facilities on
// one line, especially under different licensee names, suggests one operator.
func DuplicatePhones(facilities []facility.Facility) *PhoneResult {
	clean := make([]string, len(facilities))
	byPhone := make(map[string][]int)
	for i := range facilities {
		p := facility.CleanPhone(facilities[i].Telephone)
		clean[i] = p
		if facility.ValidPhone(p) {
			byPhone[p] = append(byPhone[p], i)
		}
	}

	res := &PhoneResult{SharedPhone: make([]bool, len(facilities))}

	type phoneCount struct {
		phone string
		n     int
	}
	var suspicious []phoneCount
	for phone, idx := range byPhone {
		if len(idx) > 1 {
			res.DuplicatedPhones++
		}
		if len(idx) >= SharedPhoneMinFacilities {
			suspicious = append(suspicious, phoneCount{phone, len(idx)})
			for _, i := range idx {
				res.SharedPhone[i] = true
			}
		}
	}
	res.SuspiciousPhones = len(suspicious)

	for i := range facilities {
		if idx := byPhone[clean[i]]; len(idx) > 1 {
			res.Duplicates = append(res.Duplicates, PhoneFacility{Facility: facilities[i], PhoneClean: clean[i]})
		}
	}

	sort.Slice(suspicious, func(i, j int) bool {
		if suspicious[i].n != suspicious[j].n {
			return suspicious[i].n > suspicious[j].n
		}
		return suspicious[i].phone < suspicious[j].phone
	})
	if len(suspicious) > sharedPhoneReportLimit {
		suspicious = suspicious[:sharedPhoneReportLimit]
	}

	for _, pc := range suspicious {
		idx := byPhone[pc.phone]
		var licensees, names []string
		seen := make(map[string]bool)
		for _, i := range idx {
			l := facilities[i].Licensee
			if !seen[l] {
				seen[l] = true
				licensees = append(licensees, l)
			}
			names = append(names, facilities[i].Name)
		}

		g := PhoneGroup{
			Phone:          pc.phone,
			FacilityCount:  pc.n,
			UniqueLicensee: len(licensees),
			Licensees:      firstN(licensees, 5),
			Facilities:     firstN(names, 5),
			Suspicion:      SuspicionMedium,
		}
		if len(licensees) > 1 {
			g.Suspicion = SuspicionHigh
		}
		res.Groups = append(res.Groups, g)
	}

	sort.SliceStable(res.Groups, func(i, j int) bool {
		if res.Groups[i].UniqueLicensee != res.Groups[j].UniqueLicensee {
			return res.Groups[i].UniqueLicensee > res.Groups[j].UniqueLicensee
		}
		return res.Groups[i].FacilityCount > res.Groups[j].FacilityCount
	})

	return res
}

// GroupsTable renders the shared-phone summary artifact
func (r *PhoneResult) GroupsTable() *report.Table {
	t := report.NewTable("phone", "facility_count", "unique_licensees", "licensees", "suspicion_level", "facilities")
	for _, g := range r.Groups {
		t.Append(g.Phone, strconv.Itoa(g.FacilityCount), strconv.Itoa(g.UniqueLicensee),
			strings.Join(g.Licensees, "; "), g.Suspicion, strings.Join(g.Facilities, "; "))
	}
	return t
}

// DuplicatesTable renders every facility on a shared phone
func (r *PhoneResult) DuplicatesTable(riskScores map[string]int) *report.Table {
	t := report.NewFacilityTable(ColPhoneClean, ColRiskScore)
	for i := range r.Duplicates {
		d := &r.Duplicates[i]
		score := ""
		if riskScores != nil {
			score = strconv.Itoa(riskScores[d.Facility.Number])
		}
		t.AppendFacility(&d.Facility, d.PhoneClean, score)
	}
	return t
}

// Extra artifact columns
const (
	ColPhoneClean = report.ColPhoneClean
	ColRiskScore  = report.ColRiskScore
)

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
