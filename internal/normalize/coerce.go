package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// dateLayouts are the accepted date formats, tried in order. Day and month
// may be one or two digits in the slash/dash/dot variants.
var dateLayouts = []string{
	"2006-01-02",
	"2/1/2006",
	"02/01/2006",
	"2-1-2006",
	"02-01-2006",
	"2.1.2006",
	"02.01.2006",
}

// nullMarkers are inputs that mean an explicitly absent date, not an error.
var nullMarkers = map[string]bool{
	"":      true,
	"-":     true,
	"-/-/-": true,
}

// ParseDate coerces raw text into a date. Parsing is total: every input
// yields either a valid instant or ok=false, never an error. A time
// component after an ISO date is discarded.
func ParseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if nullMarkers[s] {
		return time.Time{}, false
	}

	// ISO date optionally followed by a time component; keep the date part.
	if len(s) > 10 && (s[10] == ' ' || s[10] == 'T') {
		s = s[:10]
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Malformed input clears the field rather than failing the row.
	return time.Time{}, false
}

// ParseAmount coerces raw text into a fixed-precision decimal. The input
// follows the Chilean convention: "." as thousands separator, "," as decimal
// separator, optional "$" currency symbol. Empty or unparseable input yields
// ok=false, never an error.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return decimal.Decimal{}, false
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseInt coerces raw text into an integer, returning def when the input is
// empty or unparseable.
func ParseInt(raw string, def int64) int64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}
