package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		countryCode string
		want        string
	}{
		{"local trunk prefix", "0788123456", "250", "250788123456"},
		{"bare subscriber number", "788123456", "250", "250788123456"},
		{"already canonical", "250788123456", "250", "250788123456"},
		{"formatted input", "+250 788-123-456", "250", "250788123456"},
		{"spaces and dashes local", "078 812 34 56", "250", "250788123456"},
		{"empty input", "", "250", ""},
		{"only punctuation", "+-() ", "250", ""},
		{"unrecognized shape passes through", "12345", "250", "12345"},
		{"long foreign number passes through", "4477123456789", "250", "4477123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input, tt.countryCode))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"0788123456",
		"788123456",
		"250788123456",
		"+250 788 123 456",
		"12345",
		"",
		"0000000000",
	}

	for _, in := range inputs {
		once := Normalize(in, "250")
		twice := Normalize(once, "250")
		assert.Equal(t, once, twice, "normalize must be idempotent for %q", in)
	}
}
