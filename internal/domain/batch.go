package domain

import "strings"

// BatchResult is the outcome of scanning many lines for links.
type BatchResult struct {
	// Total counts non-empty lines.
	Total int
	// Links holds the links found, in input order.
	Links []Link
	// Unmatched holds the original, untrimmed lines without a link.
	Unmatched []string
}

// Succeeded returns the number of lines that yielded a link.
func (r BatchResult) Succeeded() int {
	return r.Total - len(r.Unmatched)
}

// AllMatched reports whether every non-empty line yielded a link.
func (r BatchResult) AllMatched() bool {
	return len(r.Unmatched) == 0
}

// ProcessText splits text on newlines and scans each line.
func ProcessText(text string) BatchResult {
	return ProcessLines(strings.Split(text, "\n"))
}

// ProcessLines runs ExtractLink over lines. Blank lines are ignored entirely.
func ProcessLines(lines []string) BatchResult {
	var res BatchResult
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		res.Total++
		link, ok := ExtractLink(line)
		if !ok {
			res.Unmatched = append(res.Unmatched, line)
			continue
		}
		res.Links = append(res.Links, link)
	}
	return res
}
