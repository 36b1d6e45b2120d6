package core

// csvparse.go turns decoded export text into RawRow values.
//
// The export is not RFC 4180 clean: quotes are used loosely and never escaped,
// so encoding/csv with LazyQuotes still mis-splits some lines. The scanner
// here treats every double quote as a toggle and drops it from the value,
// which is what the exporting system expects readers to do.

import (
	"strings"
)

// bom is the byte order mark as a decoded rune.
const bom = '\uFEFF'

// ParseRecords parses export text into rows keyed by header column name.
//
// Lines are split on CRLF or LF and blank lines are discarded. The first
// remaining line is the header. Fields beyond the header width are dropped,
// as are rows that end up with no fields.
func ParseRecords(text string) []RawRow {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil
	}

	headers := parseHeader(lines[0])
	rows := make([]RawRow, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if row := parseLine(line, headers); len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

// splitLines strips a leading BOM and returns the non-blank lines of text.
func splitLines(text string) []string {
	text = strings.TrimPrefix(text, string(bom))

	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := raw[:0]
	for _, line := range raw {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// headerLine returns the first non-blank line of text, or "".
func headerLine(text string) string {
	lines := splitLines(text)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

// parseHeader splits the header on commas. Header cells are never quoted
// around commas in practice, so no quote tracking is done here.
func parseHeader(line string) []string {
	parts := strings.Split(line, ",")
	headers := make([]string, len(parts))
	for i, p := range parts {
		headers[i] = stripQuotes(strings.TrimSpace(p))
	}
	return headers
}

// parseLine scans one data line. A double quote toggles the quoted state and
// is not part of the value; a comma ends the field only outside quotes.
func parseLine(line string, headers []string) RawRow {
	row := make(RawRow)
	var cur strings.Builder
	inQuote := false
	col := 0

	assign := func() {
		if col < len(headers) {
			row[headers[col]] = strings.TrimSpace(stripQuotes(cur.String()))
		}
		cur.Reset()
		col++
	}

	for _, c := range line {
		switch {
		case c == '"':
			inQuote = !inQuote
		case c == ',' && !inQuote:
			assign()
		default:
			cur.WriteRune(c)
		}
	}
	assign()

	return row
}

// stripQuotes removes one leading and one trailing double quote.
func stripQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	return strings.TrimSuffix(s, `"`)
}
