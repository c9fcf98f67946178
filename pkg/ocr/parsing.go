package ocr

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var centavosRE = regexp.MustCompile(`[.,]\d{2}$`)

// ParseValorFromMatch normalizes a matched substring into a decimal value in
// reais. SIAFI printouts use Brazilian grouping ("R$ 1.234,56"); a trailing
// two-digit decimal part is kept as centavos, everything else in the string
// is treated as grouping noise.
func ParseValorFromMatch(found string) (decimal.Decimal, error) {
	trim := strings.TrimSpace(found)
	if trim == "" {
		return decimal.Zero, fmt.Errorf("empty")
	}
	var intDigits, centavos string
	if centavosRE.MatchString(trim) {
		lastDot := strings.LastIndex(trim, ".")
		lastComma := strings.LastIndex(trim, ",")
		sep := lastDot
		if lastComma > lastDot {
			sep = lastComma
		}
		intDigits = onlyDigits(trim[:sep])
		centavos = trim[sep+1:]
	} else {
		intDigits = onlyDigits(trim)
		centavos = "00"
	}
	if intDigits == "" {
		return decimal.Zero, fmt.Errorf("no digits extracted from %q", found)
	}
	d, err := decimal.NewFromString(intDigits + "." + centavos)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse valor %q: %w", found, err)
	}
	return d.Abs(), nil
}
