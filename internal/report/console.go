package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Count is a value and how often it occurs
type Count struct {
	Key string `json:"key"`
	N   int    `json:"count"`
}

// SortCounts orders a tally by count descending, then key ascending
func SortCounts(tally map[string]int) []Count {
	counts := make([]Count, 0, len(tally))
	for k, n := range tally {
		counts = append(counts, Count{Key: k, N: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].N != counts[j].N {
			return counts[i].N > counts[j].N
		}
		return counts[i].Key < counts[j].Key
	})
	return counts
}

// Console prints human-readable stage summaries
type Console struct {
	w io.Writer
}

// NewConsole creates a console writing to w
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Section prints a banner heading
func (c *Console) Section(title string) {
	bar := strings.Repeat("=", 60)
	fmt.Fprintf(c.w, "\n%s\n%s\n%s\n", bar, title, bar)
}

// Subsection prints a smaller heading
func (c *Console) Subsection(title string) {
	fmt.Fprintf(c.w, "\n%s\n%s\n", title, strings.Repeat("-", 40))
}

// Printf prints a formatted line
func (c *Console) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.w, format+"\n", args...)
}

// Counts prints up to limit counts (limit <= 0 prints all)
func (c *Console) Counts(counts []Count, limit int) {
	for i, cnt := range counts {
		if limit > 0 && i >= limit {
			break
		}
		key := cnt.Key
		if key == "" {
			key = "(blank)"
		}
		fmt.Fprintf(c.w, "  %-40s %d\n", key, cnt.N)
	}
}

// Saved announces an artifact
func (c *Console) Saved(n int, path string) {
	fmt.Fprintf(c.w, "Saved %d rows to '%s'\n", n, path)
}
