package facility

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	upper        = cases.Upper(language.Und)
	whitespaceRe = regexp.MustCompile(`\s+`)
	entitySuffix = regexp.MustCompile(`\s*(LLC|INC|CORP|L\.L\.C\.|INCORPORATED|CORPORATION)\s*$`)
	punctuation  = regexp.MustCompile(`[^\w\s]`)
)

// canonical folds compatibility characters and upper-cases s
func canonical(s string) string {
	return upper.String(norm.NFKC.String(s))
}

// NormalizeAddress upper-cases a street address, collapses whitespace and
// removes periods and commas so "123 Main St., Apt 4" == "123 MAIN ST APT 4"
func NormalizeAddress(address string) string {
	s := strings.TrimSpace(canonical(address))
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", "")
	return s
}

// FullAddress is the grouping key for co-located facilities: normalized street
// address plus city. Empty when the facility has no address.
func FullAddress(f *Facility) string {
	addr := NormalizeAddress(f.Address)
	if addr == "" {
		return ""
	}
	return addr + ", " + strings.TrimSpace(canonical(f.City))
}

// NormalizeLicensee is the grouping key for licensee names
func NormalizeLicensee(licensee string) string {
	return strings.TrimSpace(canonical(licensee))
}

// CleanPhone strips everything but digits
func CleanPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidPhone reports whether a cleaned phone number is long enough to compare
func ValidPhone(clean string) bool {
	return len(clean) >= 10
}

// personSuffixes are stripped before deciding whether a licensee is a person.
// Longer forms come first so " CORPORATION" is not cut down to "ORATION".
var personSuffixes = []string{" L.L.C.", " L.L.C", " LLC", " INC.", " INC", " CORPORATION", " CORP"}

// PersonName extracts a likely individual's name from a licensee: either a
// "LAST, FIRST" form or a short (<= 3 word) name once entity suffixes are gone.
// Returns "" when the licensee looks like an organization.
func PersonName(licensee string) string {
	if strings.TrimSpace(licensee) == "" {
		return ""
	}
	s := canonical(licensee)
	for _, suffix := range personSuffixes {
		s = strings.ReplaceAll(s, suffix, "")
	}
	if strings.Contains(s, ",") || len(strings.Fields(s)) <= 3 {
		return strings.TrimSpace(s)
	}
	return ""
}

// NormalizeName prepares a business name for fuzzy comparison
func NormalizeName(name string) string {
	s := strings.TrimSpace(canonical(name))
	if s == "" {
		return ""
	}
	s = entitySuffix.ReplaceAllString(s, "")
	s = punctuation.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NameSimilarity returns the SequenceMatcher ratio (0..1) of two normalized names
func NameSimilarity(a, b string) float64 {
	na, nb := NormalizeName(a), NormalizeName(b)
	if na == "" && nb == "" {
		return 1
	}
	m := difflib.NewMatcher(splitRunes(na), splitRunes(nb))
	return m.Ratio()
}

func splitRunes(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// LicenseePrefix returns the first two words of a normalized licensee
func LicenseePrefix(licensee string) string {
	words := strings.Fields(NormalizeLicensee(licensee))
	if len(words) > 2 {
		words = words[:2]
	}
	return strings.Join(words, " ")
}

// SwapLastFirst turns "LAST, FIRST" into "FIRST LAST"
func SwapLastFirst(name string) (string, bool) {
	if !strings.Contains(name, ",") {
		return "", false
	}
	parts := strings.Split(name, ",")
	if len(parts) < 2 {
		return "", false
	}
	return strings.TrimSpace(parts[1]) + " " + strings.TrimSpace(parts[0]), true
}

// IsBlank reports whether a registry cell carries no usable value
func IsBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "nan")
}
