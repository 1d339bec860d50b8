package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{"german format with euro sign", "12,99 €", 12.99, true},
		{"euro sign prefix", "€12.99", 12.99, true},
		{"surrounding whitespace", "  24,50 €  ", 24.5, true},
		{"dollar sign", "$9.99", 9.99, true},
		{"pound sign", "£5", 5, true},
		{"bare integer", "7", 7, true},
		{"decimal without currency", "3.49", 3.49, true},
		{"price embedded in text", "nur 19,99 € statt 29,99 €", 19.99, true},
		{"empty string", "", 0, false},
		{"no digits", "Preis auf Anfrage", 0, false},
		{"only currency sign", "€", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePrice(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "Milbona Bio Joghurt", CleanText("  Milbona \n\t Bio   Joghurt "))
	assert.Equal(t, "", CleanText("   \n  "))
}
