package analysis

import (
	"regexp"
	"sort"

	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// genericNamePatterns match licensee names common among shell operators
var genericNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z]\s*&\s*[A-Z]\s`),
	regexp.MustCompile(`LEARNING CENTER`),
	regexp.MustCompile(`CHILD DEVELOPMENT`),
	regexp.MustCompile(`LITTLE\s*(ONES|ANGELS|STARS|KIDS)`),
	regexp.MustCompile(`^(ABC|123)`),
	regexp.MustCompile(`KIDZ|KIDDS|KIDDZ`),
	regexp.MustCompile(`ACADEMY\s*LLC`),
	regexp.MustCompile(`BRIGHT\s*(START|FUTURE|HORIZON)`),
}

const (
	personMinFacilities = 3
	prefixMinFacilities = 5
)

// IsGenericName reports whether a licensee matches a generic naming pattern
func IsGenericName(licensee string) bool {
	clean := facility.NormalizeLicensee(licensee)
	if clean == "" {
		return false
	}
	for _, re := range genericNamePatterns {
		if re.MatchString(clean) {
			return true
		}
	}
	return false
}

// PersonGroup is an individual behind several facilities
type PersonGroup struct {
	Person        string   `json:"person_name"`
	FacilityCount int      `json:"facility_count"`
	BusinessNames []string `json:"business_names"`
}

// LicenseeResult is the outcome of the licensee name analysis
type LicenseeResult struct {
	People       []PersonGroup
	GenericName  []bool // indexed like the input
	GenericCount int
	// Prefixes are two-word licensee prefixes shared by prefixMinFacilities or more
	Prefixes []report.Count
}

// LicenseePatterns looks for people running several facilities under varying
// business names, generic shell-style names, and families of related entities.
func LicenseePatterns(facilities []facility.Facility) *LicenseeResult {
	res := &LicenseeResult{GenericName: make([]bool, len(facilities))}

	type person struct {
		count int
		names []string
		seen  map[string]bool
	}
	people := make(map[string]*person)
	prefixes := make(map[string]int)

	for i := range facilities {
		f := &facilities[i]

		if p := facility.PersonName(f.Licensee); p != "" {
			grp, ok := people[p]
			if !ok {
				grp = &person{seen: make(map[string]bool)}
				people[p] = grp
			}
			grp.count++
			if !grp.seen[f.Licensee] {
				grp.seen[f.Licensee] = true
				grp.names = append(grp.names, f.Licensee)
			}
		}

		if IsGenericName(f.Licensee) {
			res.GenericName[i] = true
			res.GenericCount++
		}

		if prefix := facility.LicenseePrefix(f.Licensee); prefix != "" {
			prefixes[prefix]++
		}
	}

	for name, grp := range people {
		if grp.count >= personMinFacilities {
			res.People = append(res.People, PersonGroup{Person: name, FacilityCount: grp.count, BusinessNames: grp.names})
		}
	}
	sort.Slice(res.People, func(i, j int) bool {
		if res.People[i].FacilityCount != res.People[j].FacilityCount {
			return res.People[i].FacilityCount > res.People[j].FacilityCount
		}
		return res.People[i].Person < res.People[j].Person
	})

	for _, c := range report.SortCounts(prefixes) {
		if c.N >= prefixMinFacilities {
			res.Prefixes = append(res.Prefixes, c)
		}
	}

	return res
}

// DisplayPrefixes returns the prefixes among the first limit that are longer
// than three characters
func (r *LicenseeResult) DisplayPrefixes(limit int) []report.Count {
	var out []report.Count
	for i, c := range r.Prefixes {
		if i >= limit {
			break
		}
		if len(c.Key) > 3 {
			out = append(out, c)
		}
	}
	return out
}
