package parse

import (
	"strings"
	"time"
)

// dateFormats is the ordered list of accepted layouts. First match wins, so
// the day-first layouts deliberately take precedence over month-first ones
// for ambiguous numeric dates.
var dateFormats = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"2006/01/02",
	"January 2, 2006",
	"2 January 2006",
	"02.01.2006",
}

// ParseDate parses heterogeneous date representations against the fixed
// layout list. It reports ok=false when no layout matches.
func ParseDate(value string) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// ISODate renders a parsed date in the canonical YYYY-MM-DD form.
func ISODate(t time.Time) string {
	return t.Format("2006-01-02")
}
