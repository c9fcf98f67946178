package main

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var valorRE = regexp.MustCompile(`^\d+(?:\.\d{1,2})?$`)

// ParseValorBR parses a currency amount as typed by the seção: decimal comma
// or decimal point, at most two fractional digits, grouping dots tolerated
// ("1.500,50", "1500,50" and "1500.50" all mean 1500.50). The result is
// always positive.
func ParseValorBR(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("valor vazio")
	}
	// Brazilian grouped form: when a comma decimal is present, dots are
	// thousand separators.
	if strings.Contains(s, ",") && strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ".", "")
	}
	s = strings.Replace(s, ",", ".", 1)
	if !valorRE.MatchString(s) {
		return decimal.Zero, fmt.Errorf("valor %q mal formado", s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.New("valor deve ser positivo")
	}
	return d, nil
}
