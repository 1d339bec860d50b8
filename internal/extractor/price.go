package extractor

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	currencyRe = regexp.MustCompile(`[€$£]`)
	numericRe  = regexp.MustCompile(`\d+\.?\d*`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// ParsePrice extracts a numeric price from a raw price string such as
// "12,99 €" or "€12.99". The comma decimal separator is normalized to a
// dot. Returns false when no numeric value is present.
func ParsePrice(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}

	cleaned := currencyRe.ReplaceAllString(raw, "")
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	match := numericRe.FindString(cleaned)
	if match == "" {
		return 0, false
	}

	price, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}

	return price, true
}

// CleanText collapses runs of whitespace (including newlines and tabs)
// into single spaces and trims the result.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}
