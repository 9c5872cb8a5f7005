// Package csvcodec implements the CSV read/write conventions of the roster
// spreadsheet export and the attendance export file.
//
// encoding/csv is deliberately not used: the upstream sheet's export and the
// historical attendance files follow a simplified quoting convention (see
// ParseLine) that RFC 4180 handling would silently change.
package csvcodec

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLine splits one CSV line into trimmed fields. A double quote toggles
// quoted mode; a comma outside quotes ends the current field. The final field
// is always flushed, even when empty.
//
// A doubled quote inside a quoted field toggles mode twice and therefore
// drops out instead of collapsing to a literal quote. That matches the data
// source's observed behavior and is kept as-is; do not "fix" it to RFC 4180
// without verifying against a real sheet export.
//
// Malformed quoting never fails: the scanner degrades to whatever the state
// machine produces.
func ParseLine(line string) []string {
	var (
		fields   []string
		current  strings.Builder
		inQuotes bool
	)

	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}

// Encode renders rows as CSV text: a header line followed by one line per
// row, newline-joined. nil values render empty, strings have embedded quotes
// doubled, and any rendered value containing a comma is wrapped in quotes.
// Zero rows yield the empty string rather than a header-only file.
func Encode(headers []string, rows [][]any) string {
	if len(rows) == 0 {
		return ""
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(headers, ","))
	for _, row := range rows {
		fields := make([]string, 0, len(row))
		for _, v := range row {
			fields = append(fields, formatValue(v))
		}
		lines = append(lines, strings.Join(fields, ","))
	}
	return strings.Join(lines, "\n")
}

func formatValue(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case *string:
		if t == nil {
			return ""
		}
		s = strings.ReplaceAll(*t, `"`, `""`)
	case string:
		s = strings.ReplaceAll(t, `"`, `""`)
	case bool:
		s = strconv.FormatBool(t)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		s = fmt.Sprint(t)
	}
	if strings.Contains(s, ",") {
		return `"` + s + `"`
	}
	return s
}
