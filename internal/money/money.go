// Package money converts between stored minor units (cents) and decimal major units.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Digits after the decimal point of the major unit
const scale = 2

func ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -scale)
}

// Format minor units for humans, e.g. 9800 -> "98.00"
func Format(minor int64) string {
	return ToDecimal(minor).StringFixed(scale)
}

// FromDecimal converts major units to minor units.
// Values with fractions of a cent are rejected, never rounded.
func FromDecimal(d decimal.Decimal) (int64, error) {
	minor := d.Shift(scale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", d.String(), scale)
	}
	if !minor.Equal(decimal.NewFromInt(minor.IntPart())) {
		return 0, fmt.Errorf("amount %s is out of range", d.String())
	}
	return minor.IntPart(), nil
}
