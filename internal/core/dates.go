package core

// dates.go parses the check-in / check-out cells of the reservation export.
//
// Exports write dates as Y/M/D or Y-M-D with or without zero padding
// ("2024/05/08", "2024-5-8"). Some systems append a time ("2024/05/08 15:00"),
// which is ignored. Dates are returned as UTC midnight so that day arithmetic
// never crosses a DST boundary; they represent calendar days, not instants.

import (
	"strings"
	"time"
)

// ISODateLayout is the key format of grid cells.
const ISODateLayout = "2006-01-02"

// ExportDateLayout is the format used when synthesizing export-style dates.
const ExportDateLayout = "2006/01/02"

// ParseStayDate parses a Y/M/D or Y-M-D date cell.
// Returns ok=false for empty input, fewer than three components, or a
// component that does not describe a real calendar day.
func ParseStayDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	parts := strings.Split(strings.ReplaceAll(s, "-", "/"), "/")
	if len(parts) < 3 {
		return time.Time{}, false
	}

	year, ok := leadingInt(parts[0])
	if !ok {
		return time.Time{}, false
	}
	month, ok := leadingInt(parts[1])
	if !ok {
		return time.Time{}, false
	}
	day, ok := leadingInt(parts[2])
	if !ok {
		return time.Time{}, false
	}

	if year < 1 || year > 9999 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 2024/02/30 to March 1st; reject instead.
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// leadingInt reads the decimal digits at the start of s, after leading
// whitespace. Trailing text ("08 15:00") is ignored.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t")
	n, digits := 0, 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
		digits++
		if digits > 9 {
			return 0, false
		}
	}
	return n, digits > 0
}

// StartOfDay returns midnight of t's calendar day in loc, expressed as a
// UTC calendar date comparable with ParseStayDate results.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatISODate formats a calendar day as a grid key.
func FormatISODate(t time.Time) string {
	return t.Format(ISODateLayout)
}
