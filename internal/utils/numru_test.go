package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFloatRU(t *testing.T) {
	ok := map[string]float64{
		"1 234,50":           1234.5,
		"197 ,00":            197,
		"2 345,6 ₽":          2345.6,
		"(12,5)":             -12.5,
		"1.234,50":           1234.5,
		"1,234.50":           1234.5,
		"15":                 15,
		"\u00a0 3\u202f000 ": 3000,
	}
	for in, want := range ok {
		got, parsed := ParseFloatRU(in)
		assert.True(t, parsed, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}

	for _, in := range []string{"", "  ", "-", "шт", "."} {
		_, parsed := ParseFloatRU(in)
		assert.False(t, parsed, "%q", in)
	}
}
