// Package money renders integer minor-unit amounts for display. Arithmetic on
// balances always stays in int64 minor units.
package money

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/shipwallet-backend/pkg/enums"
)

// Display renders amountMinor in major units with the currency's precision, e.g. "1250.50".
func Display(amountMinor int64, currency enums.Currency) string {
	exp := currency.MinorExponent()
	return decimal.New(amountMinor, -exp).StringFixed(exp)
}

// FromMajor converts a major-unit string (as typed by an operator) into minor units.
// Fractions finer than the currency precision are rejected.
func FromMajor(value string, currency enums.Currency) (int64, bool) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, false
	}
	exp := currency.MinorExponent()
	scaled := d.Shift(exp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, false
	}
	return scaled.IntPart(), true
}
