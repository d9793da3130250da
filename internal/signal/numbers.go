package signal

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// priceToken captures the numeric part of a vendor price ("$0.87071",
// "1,234.5", "0,8707", "68 000") and, in a second group, a trailing percent
// sign. Space groups must be exactly three digits.
const priceToken = `\$?\s*([0-9]{1,3}(?: [0-9]{3})+(?:[.,][0-9]+)?|[0-9][0-9.,']*)\s*(%?)`

var reDigits = regexp.MustCompile(`^[0-9]+$`)

// ParsePrice parses a vendor-formatted positive number. It tolerates
// thousands separators ("1,234.56", "1.234,56", "1'234.5", "68 000") and decimal commas
// ("0,8707"). A lone comma followed by exactly three digits with a non-zero
// integer part is read as a thousands separator ("1,234" == 1234).
func ParsePrice(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,")
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, false
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	switch {
	case dots > 0 && commas > 0:
		// the right-most separator is the decimal one
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case commas > 1:
		s = strings.ReplaceAll(s, ",", "")
	case commas == 1:
		intPart, frac, _ := strings.Cut(s, ",")
		if len(frac) == 3 && strings.TrimLeft(intPart, "0") != "" {
			s = intPart + frac
		} else {
			s = intPart + "." + frac
		}
	case dots > 1:
		s = strings.ReplaceAll(s, ".", "")
	}

	intPart, frac, _ := strings.Cut(s, ".")
	if !reDigits.MatchString(intPart) || (frac != "" && !reDigits.MatchString(frac)) {
		return 0, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return 0, false
	}
	return d.InexactFloat64(), true
}
