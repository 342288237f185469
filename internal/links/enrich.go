package links

import (
	"github.com/sawpanic/daycarewatch/internal/facility"
	"github.com/sawpanic/daycarewatch/internal/report"
)

// Link columns appended by Enrich
const (
	ColSOS           = "sos_business_search"
	ColNews          = "google_news_search"
	ColInvestigation = "google_investigation_search"
	ColLinkedIn      = "linkedin_search"
	ColCCLD          = "ccld_inspection_history"
)

// LinkColumns lists the columns Enrich adds, in output order
var LinkColumns = []string{ColSOS, ColNews, ColInvestigation, ColLinkedIn, ColCCLD}

// Enrich returns a copy of the priority table with verification links added
// to every row. When the table has no facility_number column the numbers are
// looked up in facilities by name and licensee.
func Enrich(priority *report.Table, facilities []facility.Facility) *report.Table {
	header := append([]string{}, priority.Header...)
	lookup := !priority.HasColumn(facility.ColNumber)
	if lookup {
		header = append(header, facility.ColNumber)
	}
	header = append(header, LinkColumns...)

	var numbers map[[2]string]string
	if lookup {
		numbers = make(map[[2]string]string, len(facilities))
		for i := range facilities {
			key := [2]string{facilities[i].Name, facilities[i].Licensee}
			if _, ok := numbers[key]; !ok {
				numbers[key] = facilities[i].Number
			}
		}
	}

	out := report.NewTable(header...)
	for _, rec := range priority.Records() {
		name := rec.Get(facility.ColName)
		licensee := rec.Get(facility.ColLicensee)
		number := rec.Get(facility.ColNumber)

		row := make([]string, 0, len(header))
		for _, col := range priority.Header {
			row = append(row, rec.Get(col))
		}
		if lookup {
			number = numbers[[2]string{name, licensee}]
			row = append(row, number)
		}
		row = append(row,
			SOSSearchURL(licensee),
			NewsSearchURL(name, rec.Get(facility.ColCity)),
			InvestigationSearchURL(name, licensee),
			LinkedInURL(licensee),
			CCLDURL(number),
		)
		out.Append(row...)
	}
	return out
}
