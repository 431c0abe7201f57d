package filing

import (
	"strings"

	"github.com/Veridata-Labs/fincorpus/core/pkg/decimal"
)

// currencySymbols stripped before numeric parsing.
var currencySymbols = []string{"$", "€", "£", "¥"}

// parseNumeric normalizes a reported value to a decimal: thousands separators
// and currency symbols are stripped, parenthesized values are negative.
// Returns nil when the value is not numeric; callers retain the raw string.
func parseNumeric(raw string) *decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	for _, sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.Parse(s)
	if err != nil {
		return nil
	}
	if negative {
		d = d.Neg()
	}
	return &d
}
