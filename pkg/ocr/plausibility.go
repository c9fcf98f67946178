package ocr

import "strings"

// isPlausibleValor applies lightweight heuristics to decide whether a matched
// numeric substring likely represents a monetary amount rather than a UG
// code, NC number fragment or document id. Prefer strings that carry a
// currency marker or grouping separators; reject long bare digit runs and
// leading zeros (SIAFI ids are zero-padded, amounts are not).
func isPlausibleValor(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if strings.Contains(strings.ToLower(s), "r$") {
		return true
	}
	if strings.Contains(s, ".") || strings.Contains(s, ",") {
		d := onlyDigits(s)
		return len(d) >= 3 && d[0] != '0'
	}
	d := onlyDigits(s)
	if d == "" || d[0] == '0' {
		return false
	}
	if len(d) > 9 || len(d) < 2 {
		return false
	}
	// bare 7+ digit runs are usually ids unless they end like a round amount
	if len(d) >= 7 && !strings.HasSuffix(d, "00") {
		return false
	}
	return true
}
