// File: internal/tabular/clean.go
// Brief: Shared number/date/string cleaning rules for extracted cell values.

package tabular

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var firstNumericRe = regexp.MustCompile(`-?\d+(\.\d+)?`)

// CleanNumber parses a raw cell as a float64, tolerating thousands
// separators, surrounding whitespace, a trailing percent sign,
// parenthesized negatives, and currency prefixes ("USD 3", "$99.99").
// Non-numeric characters are stripped and the first numeric run is
// captured. Returns ok=false for blank cells or cells with no digits.
func CleanNumber(raw string) (value float64, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSuffix(s, "%")
	s = strings.ReplaceAll(s, ",", "")
	stripped := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	match := firstNumericRe.FindString(stripped)
	if match == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}

// CleanDate parses a raw cell against the known set of layouts, returning
// the value normalized to RFC3339 date form (YYYY-MM-DD). ok=false for
// blank or unrecognized cells.
func CleanDate(raw string) (value string, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// CleanString trims surrounding whitespace and collapses internal runs of
// whitespace to a single space.
func CleanString(raw string) string {
	fields := strings.Fields(raw)
	return strings.Join(fields, " ")
}

// DataType names the cleaning rule applied to an extracted column.
type DataType string

const (
	DataTypeString DataType = "string"
	DataTypeNumber DataType = "number"
	DataTypeDate   DataType = "date"
)

// CleanValue dispatches to the cleaning rule named by dt, returning the
// cleaned string form and whether the value was recognized as that type.
// Numbers keep a trailing ".0" when integral ("3" in, "3.0" out) so
// numeric columns render uniformly as floats. A string DataType always
// succeeds.
func CleanValue(raw string, dt DataType) (string, bool) {
	switch dt {
	case DataTypeNumber:
		f, ok := CleanNumber(raw)
		if !ok {
			return "", false
		}
		s := strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s, true
	case DataTypeDate:
		return CleanDate(raw)
	default:
		return CleanString(raw), true
	}
}
