package tally

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var qtyPattern = regexp.MustCompile(`^\s*([+-]?[0-9][0-9,]*(?:\.[0-9]+)?)\s*(.*)$`)

// ParseAmount turns a Tally numeric string into a decimal. Tally uses
// Indian-style comma grouping, and renders negatives either with a leading
// minus, a "(-)" marker, or by wrapping the whole value in parentheses.
// Anything unparsable (including empty) comes back as zero.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	negate := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = strings.TrimSpace(s[1 : len(s)-1])
		negate = true
	}
	s = strings.ReplaceAll(s, "(-)", "-")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	if negate {
		d = d.Neg()
	}
	return d
}

// ParseQuantity splits a Tally quantity string like "2 Nos" or
// "1,250.50 Mtr" into a magnitude and a unit. The unit may be empty.
func ParseQuantity(s string) (decimal.Decimal, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ""
	}
	m := qtyPattern.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, s
	}
	return ParseAmount(m[1]), strings.TrimSpace(m[2])
}

// ParseRate reads a rate string like "35,000.00/Nos", keeping only the
// numeric part before the unit separator.
func ParseRate(s string) decimal.Decimal {
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	return ParseAmount(s)
}
