package enums

import "fmt"

// Currency is an ISO-4217 code; wallets hold a single currency.
type Currency string

const (
	CurrencyIDR Currency = "IDR"
	CurrencyUSD Currency = "USD"
	CurrencySGD Currency = "SGD"
)

var validCurrencies = []Currency{
	CurrencyIDR,
	CurrencyUSD,
	CurrencySGD,
}

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the currency is recognized.
func (c Currency) IsValid() bool {
	for _, candidate := range validCurrencies {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCurrency converts a raw string into a Currency.
func ParseCurrency(value string) (Currency, error) {
	for _, candidate := range validCurrencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid currency %q", value)
}

// MinorExponent returns the number of minor-unit decimal places for display.
func (c Currency) MinorExponent() int32 {
	switch c {
	case CurrencyIDR:
		return 0
	default:
		return 2
	}
}
