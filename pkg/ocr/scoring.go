package ocr

import (
	"strings"

	"github.com/shopspring/decimal"
)

// BestValorFromMatches selects the best candidate using scoring priorities:
// an explicit R$ marker and a VALOR/TOTAL context outrank everything, then
// grouped/decimal formatting, then sheer size.
func BestValorFromMatches(matches []string) (decimal.Decimal, string, bool) {
	type cand struct {
		valor decimal.Decimal
		raw   string
		score int
	}
	scoreFor := func(raw string) int {
		s := 0
		low := strings.ToLower(raw)
		if strings.Contains(low, "r$") {
			s += 10
		}
		if strings.Contains(low, "valor") || strings.Contains(low, "total") {
			s += 8
		}
		if strings.Contains(raw, ".") || strings.Contains(raw, ",") {
			s += 5
		}
		if strings.HasSuffix(raw, ",00") || strings.HasSuffix(raw, ".00") {
			s += 3
		}
		if len(onlyDigits(raw)) >= 4 {
			s += 1
		}
		return s
	}
	var cands []cand
	for _, m := range matches {
		valor, err := ParseValorFromMatch(m)
		if err != nil || !valor.IsPositive() {
			continue
		}
		cands = append(cands, cand{valor: valor, raw: m, score: scoreFor(m)})
	}
	if len(cands) == 0 {
		return decimal.Zero, "", false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		replace := false
		if c.score > best.score {
			replace = true
		} else if c.score == best.score {
			if c.valor.GreaterThan(best.valor) {
				replace = true
			} else if c.valor.Equal(best.valor) && len(c.raw) > len(best.raw) {
				replace = true
			}
		}
		if replace {
			best = c
		}
	}
	return best.valor, best.raw, true
}
