package cota

import "strings"

// Record is one parsed input line: the canonical identity plus the original
// text, preserved verbatim for reporting.
type Record struct {
	Identity Identity
	Original string
}

// InvalidLine is an input line the extractor could not canonicalize.
type InvalidLine struct {
	Number int // 1-based
	Text   string
}

// ParseLines splits free-form input into canonical records. Blank lines are
// skipped; every other line is either a valid record or an invalid line with
// its 1-based number recorded.
func ParseLines(input string) ([]Record, []InvalidLine) {
	var records []Record
	var invalid []InvalidLine
	for i, raw := range strings.Split(input, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		id, ok := Extract(line)
		if !ok {
			invalid = append(invalid, InvalidLine{Number: i + 1, Text: line})
			continue
		}
		records = append(records, Record{Identity: id, Original: line})
	}
	return records, invalid
}

// ParseLinesLegacy applies the older reader semantics: blank lines and lines
// starting with '#' are ignored, and no invalid-line bookkeeping is kept.
func ParseLinesLegacy(input string) []Record {
	var records []Record
	for _, raw := range strings.Split(input, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if id, ok := Extract(line); ok {
			records = append(records, Record{Identity: id, Original: line})
		}
	}
	return records
}
