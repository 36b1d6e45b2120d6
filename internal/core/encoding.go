package core

// encoding.go recovers reservation exports written in either UTF-8 or
// Shift_JIS.
//
// Property-management systems in Japan export Shift_JIS by default and UTF-8
// only on request, and files carry no charset marker. The strategy:
//
//  1. Decode as UTF-8, replacing invalid sequences with U+FFFD.
//  2. If the header line holds neither 予約区分 nor チェックイン日, the text
//     is assumed to be mojibake and the original bytes are decoded again as
//     Shift_JIS.
//
// This is a heuristic, not an encoding sniff. A valid UTF-8 file that simply
// lacks both columns is decoded a second time as Shift_JIS; its rows are then
// dropped by the required-column filter either way.

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
)

// Encoding names reported in FileStats.
const (
	EncodingUTF8     = "utf-8"
	EncodingShiftJIS = "shift_jis"
)

// headerMarkers are the column names that prove a header decoded correctly.
var headerMarkers = []string{ColStatus, ColCheckIn}

// DecodedFile is the parsed content of one export file.
type DecodedFile struct {
	Encoding string
	Rows     []RawRow
	// Valid holds the rows that carry both a status and a check-in date.
	Valid []RawRow
}

// DecodeFile decodes and parses one export, falling back to Shift_JIS when
// the UTF-8 header does not look like a reservation export.
func DecodeFile(data []byte) DecodedFile {
	text := string(sanitizeUTF8(data))
	enc := EncodingUTF8

	if !hasHeaderMarker(headerLine(text)) {
		if decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(data); err == nil {
			text = string(decoded)
			enc = EncodingShiftJIS
		}
	}

	rows := ParseRecords(text)
	return DecodedFile{
		Encoding: enc,
		Rows:     rows,
		Valid:    filterValidRows(rows),
	}
}

// hasHeaderMarker reports whether header contains at least one marker column.
func hasHeaderMarker(header string) bool {
	for _, m := range headerMarkers {
		if strings.Contains(header, m) {
			return true
		}
	}
	return false
}

// filterValidRows keeps rows with a non-empty status and check-in date.
func filterValidRows(rows []RawRow) []RawRow {
	valid := make([]RawRow, 0, len(rows))
	for _, row := range rows {
		if row[ColStatus] != "" && row[ColCheckIn] != "" {
			valid = append(valid, row)
		}
	}
	return valid
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
