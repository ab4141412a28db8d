package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		minor    int64
		expected string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{9800, "98.00"},
		{-200, "-2.00"},
		{123456, "1234.56"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.minor))
		})
	}
}

func TestFromDecimal(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		tests := []struct {
			value    string
			expected int64
		}{
			{"100", 10000},
			{"2.5", 250},
			{"0.01", 1},
			{"-12.34", -1234},
		}

		for _, tt := range tests {
			t.Run(tt.value, func(t *testing.T) {
				got, err := FromDecimal(decimal.RequireFromString(tt.value))

				require.NoError(t, err)
				assert.Equal(t, tt.expected, got)
			})
		}
	})

	t.Run("fraction of a cent", func(t *testing.T) {
		_, err := FromDecimal(decimal.RequireFromString("1.005"))

		require.Error(t, err, "sub-cent amounts must not be rounded silently")
	})

	t.Run("round trip", func(t *testing.T) {
		got, err := FromDecimal(ToDecimal(9800))

		require.NoError(t, err)
		assert.Equal(t, int64(9800), got)
	})
}
