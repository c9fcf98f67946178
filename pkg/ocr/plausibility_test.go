package ocr

import "testing"

func TestPlausibilityRejectsNCFragments(t *testing.T) {
	// zero-padded id fragments from "2025NC000123" must not look like money
	for _, s := range []string{"000123", "2025000123", "0100"} {
		if isPlausibleValor(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestPlausibilityAcceptsCurrencyForms(t *testing.T) {
	for _, s := range []string{"R$ 1.500,50", "1.234,56", "1500"} {
		if !isPlausibleValor(s) {
			t.Fatalf("expected %q to be accepted", s)
		}
	}
}
