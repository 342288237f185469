package sources

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// PageText returns the visible text of an HTML document, one space between
// text nodes. Script and style contents are dropped.
func PageText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var parts []string
	collectText(doc, &parts, 0)
	return strings.Join(parts, " "), nil
}

func collectText(n *html.Node, parts *[]string, depth int) {
	if depth > 200 {
		return
	}
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			*parts = append(*parts, text)
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts, depth+1)
	}
}

func nodeText(n *html.Node) string {
	var parts []string
	collectText(n, &parts, 0)
	return strings.Join(parts, "")
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// findAll returns every element below n with one of the given tag names
func findAll(n *html.Node, tags ...string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, t := range tags {
				if n.Data == t {
					out = append(out, n)
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

var reportDatePattern = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)

// ReportLink is an inspection report referenced from a facility detail page
type ReportLink struct {
	URL  string `json:"url"`
	Text string `json:"text"`
	Date string `json:"date,omitempty"`
}

// ParseInspectionLinks finds report links on a facility detail page: anchors
// pointing at the transparency API, and links inside dated table cells.
// Relative links are resolved against base.
func ParseInspectionLinks(r io.Reader, base string) ([]ReportLink, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var links []ReportLink
	for _, a := range findAll(doc, "a") {
		href := getAttr(a, "href")
		if href == "" {
			continue
		}
		if strings.Contains(href, "FacilityReports") || strings.Contains(strings.ToLower(href), "transparencyapi") {
			if !strings.HasPrefix(href, "http") {
				href = base + href
			}
			links = append(links, ReportLink{URL: href, Text: strings.TrimSpace(nodeText(a))})
		}
	}

	for _, table := range findAll(doc, "table") {
		for _, row := range findAll(table, "tr") {
			cells := findAll(row, "td", "th")
			if len(cells) < 2 {
				continue
			}
			for _, cell := range cells {
				text := strings.TrimSpace(nodeText(cell))
				if !reportDatePattern.MatchString(text) {
					continue
				}
				anchors := findAll(cell, "a")
				if len(anchors) == 0 {
					continue
				}
				if href := getAttr(anchors[0], "href"); href != "" {
					links = append(links, ReportLink{URL: href, Text: strings.TrimSpace(nodeText(anchors[0])), Date: text})
				}
			}
		}
	}
	return links, nil
}
