package model

import (
	"github.com/shopspring/decimal"
)

// ParseCents converts decimal string amounts (dollars) to cents (int64).
// The Storefront API returns MoneyV2.amount in major units (e.g., "99.0" = $99.00).
// Parsed with decimal arithmetic so "0.29" never becomes 28 cents.
// Examples: "99.00" → 9900, "1234.56" → 123456, "" → 0
func ParseCents(s string) int64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.Shift(2).Round(0).IntPart()
}

// FormatCents renders cents as a dollar string: 2719 → "$27.19".
func FormatCents(cents int64) string {
	return "$" + decimal.New(cents, -2).StringFixed(2)
}

// Cents returns a pointer to v. Used by the static pricing table where
// nil means "call for pricing".
func Cents(v int64) *int64 {
	return &v
}
