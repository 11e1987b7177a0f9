package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Format renders d the French way: space-grouped thousands, comma decimals, fixed places.
func Format(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return b.String()
}

// Euro formats an amount with two decimals and the euro sign.
func Euro(d decimal.Decimal) string {
	return Format(d, 2) + " €"
}

// Quantity formats a quantity, dropping trailing zero decimals.
func Quantity(d decimal.Decimal) string {
	s := Format(d, 3)
	if strings.Contains(s, ",") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ",")
	}
	return s
}
