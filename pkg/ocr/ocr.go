// Package ocr extracts the printed total from scanned credit-note documents
// (the SIAFI NC printout or the message that carried it). It is a
// single-pass pipeline: light imaging preprocess, one Tesseract run with a
// currency-oriented whitelist, then regex candidate extraction, plausibility
// filtering and scoring.
package ocr

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/shopspring/decimal"
)

// ExtractValorFromImage runs preprocessing + OCR on a scan and attempts to
// extract the document's total in reais. The confidence is a rough proxy in
// [0,1]; callers should treat anything under ~0.15 as noise.
func ExtractValorFromImage(path string) (decimal.Decimal, float64, string, error) {
	matches, text, err := FindAllMatches(path)
	if err != nil {
		return decimal.Zero, 0, "", err
	}
	if len(matches) == 0 {
		return decimal.Zero, 0, "", ErrNoValor
	}
	valor, raw, ok := BestValorFromMatches(matches)
	if !ok {
		return decimal.Zero, 0, "", ErrNoValor
	}
	// Confidence proxy based on substring length vs OCR text size, boosted
	// when the chosen raw carries explicit currency formatting.
	conf := float64(len(raw)) / float64(len(text)+1)
	if conf > 1 {
		conf = 1
	}
	lowRaw := strings.ToLower(raw)
	if strings.Contains(lowRaw, "r$") || strings.HasSuffix(lowRaw, ",00") || strings.HasSuffix(lowRaw, ".00") {
		if conf < 0.85 {
			conf = 0.85
		}
	}
	slog.Debug("OCR valor escolhido", "path", path, "candidates", matches, "raw", raw, "valor", valor)
	return valor, conf, raw, nil
}

var valorPatterns = []*regexp.Regexp{
	// labeled amounts first: "VALOR TOTAL: R$ 1.234,56", "TOTAL R$1.234,56"
	regexp.MustCompile(`(?i)(?:valor(?:\s+total)?|total)[:\s]*(?:R\$)?\s*([0-9\.,]+)`),
	regexp.MustCompile(`(?i)R\$\s*([0-9\.,]+)`),
	// Brazilian grouped form with centavos: 1.234,56
	regexp.MustCompile(`([0-9]{1,3}(?:\.[0-9]{3})+,[0-9]{2})`),
	// plain centavos form: 1234,56
	regexp.MustCompile(`([0-9]+,[0-9]{2})`),
	// bare digit runs, filtered hard by plausibility
	regexp.MustCompile(`([0-9]{4,})`),
}

// FindAllMatches OCRs the scan and returns every substring that looks like an
// amount, in the order found, plus the normalized OCR text (used for
// confidence estimation and logging).
func FindAllMatches(path string) ([]string, string, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open image: %w", err)
	}
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 15)
	if gray.Bounds().Dy() < 900 {
		gray = imaging.Resize(gray, 0, 1300, imaging.Lanczos)
	}
	bin := binarize(gray, 210)

	tmp := path
	if tmpFile, err := os.CreateTemp("", "ocr-*.png"); err == nil {
		tmp = tmpFile.Name()
		_ = tmpFile.Close()
		if err := imaging.Save(bin, tmp); err != nil {
			tmp = path
		}
	}

	client := gosseract.NewClient()
	defer client.Close()
	_ = client.SetLanguage("por")
	_ = client.SetWhitelist("0123456789RrSs$VALORTvalortNnCc.,:()/- ")
	client.SetImage(tmp)
	text, err := client.Text()
	if tmp != path {
		_ = os.Remove(tmp)
	}
	if err != nil {
		return nil, "", fmt.Errorf("ocr error: %w", err)
	}
	text = normalizeOCRText(text)
	slog.Debug("OCR raw", "path", path, "snippet", snippet(text, 180))

	var out []string
	seen := map[string]struct{}{}
	for _, re := range valorPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}
			s := strings.TrimSpace(m[1])
			if s == "" {
				continue
			}
			// Re-associate the currency marker when the full match carried it
			// but the capture group stripped it, so scoring sees the context.
			full := strings.ToLower(m[0])
			if strings.Contains(full, "r$") && !strings.Contains(strings.ToLower(s), "r$") {
				s = "R$" + s
			}
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			if !isPlausibleValor(s) {
				continue
			}
			out = append(out, s)
		}
	}
	return out, text, nil
}
