package tally

import (
	"strings"
	"time"
)

// Date layouts Tally emits, in observed frequency order. YYYYMMDD is the
// export default; the others show up in hand-configured TDL reports.
var dateLayouts = []string{
	"20060102",
	"2006-01-02",
	"2-Jan-2006",
	"2-Jan-06",
}

// ParseDate interprets a Tally date string. Unparsable or empty input
// falls back to today so a bad date never sinks a whole voucher; the
// caller decides whether that is worth a warning.
func ParseDate(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return midnight(now), false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return midnight(now), false
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TallyDate renders a date the way request envelopes want it (DD-MMM-YYYY).
func TallyDate(t time.Time) string {
	return t.Format("2-Jan-2006")
}

// FiscalYearStart returns April 1 of the Indian fiscal year containing t.
func FiscalYearStart(t time.Time) time.Time {
	year := t.Year()
	if t.Month() < time.April {
		year--
	}
	return time.Date(year, time.April, 1, 0, 0, 0, 0, time.UTC)
}
