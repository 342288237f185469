// Package links builds the verification links attached to flagged facilities
// and renders the investigation report.
package links

import (
	"strings"

	"github.com/sawpanic/daycarewatch/internal/facility"
)

const (
	mapsBase     = "https://www.google.com/maps/search/"
	sosBase      = "https://bizfileonline.sos.ca.gov/search/business?searchType=Business+Name&searchCriteria="
	ccldBase     = "https://www.ccld.dss.ca.gov/carefacilitysearch/FacDetail/"
	searchBase   = "https://www.google.com/search?q="
	linkedinBase = "https://www.linkedin.com/search/results/all/?keywords="
)

// sosSuffixes are removed from licensee names before a business entity search
var sosSuffixes = []string{", INC.", ", INC", " INC.", " INC", " LLC", ", LLC", " L.L.C.", " CORP", " CORPORATION"}

// Quote percent-encodes s leaving only unreserved characters and '/' intact.
// Spaces become %20, which is what the search sites expect in a path or query.
func Quote(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("_.-~/", c) >= 0
}

// MapsURL returns a Google Maps search for the street address
func MapsURL(address, city string) string {
	return mapsBase + Quote(address+", "+city+", CA")
}

// FacilityMapsURL returns the Maps link for f, or "" when it has no usable address
func FacilityMapsURL(f *facility.Facility) string {
	addr := strings.TrimSpace(f.Address)
	if facility.IsBlank(addr) || addr == "UNAVAILABLE" {
		return ""
	}
	return MapsURL(f.Address, f.City)
}

// SOSSearchURL returns a California Secretary of State business search for the licensee
func SOSSearchURL(licensee string) string {
	name := strings.TrimSpace(licensee)
	for _, suffix := range sosSuffixes {
		name = strings.ReplaceAll(name, suffix, "")
	}
	return sosBase + Quote(name)
}

// CCLDURL returns the licensing detail page, which lists inspection history
func CCLDURL(facilityNumber string) string {
	n := facility.NormalizeFacilityNumber(facilityNumber)
	if facility.IsBlank(n) {
		return ""
	}
	return ccldBase + n
}

// NewsSearchURL returns a Google News search for the facility
func NewsSearchURL(name, city string) string {
	q := `"` + name + `" ` + city + " California daycare"
	return searchBase + Quote(q) + "&tbm=nws"
}

// InvestigationSearchURL searches for prior fraud reporting on the licensee or facility
func InvestigationSearchURL(name, licensee string) string {
	q := `"` + licensee + `" OR "` + name + `" California daycare fraud OR investigation OR lawsuit`
	return searchBase + Quote(q)
}

// LinkedInURL returns a people search for licensees recorded as "LAST, FIRST".
// Organizations get "".
func LinkedInURL(licensee string) string {
	name, ok := facility.SwapLastFirst(licensee)
	if !ok {
		return ""
	}
	return linkedinBase + Quote(name)
}
