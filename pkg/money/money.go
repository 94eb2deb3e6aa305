// Package money provides decimal helpers for monetary amounts.
//
// All monetary fields in this codebase are shopspring decimals in EGP major
// units with two decimal places. Binary floating point is never used for
// arithmetic on money; float64 appears only at the configuration boundary
// and is converted once via FromFloat.
package money

import "github.com/shopspring/decimal"

// DefaultCurrency is the platform settlement currency.
const DefaultCurrency = "EGP"

// Round2 rounds d to two decimal places using round-half-away-from-zero,
// the rounding mode decimal.Decimal.Round implements. Every amount is
// passed through Round2 before persistence.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// FromFloat converts a configuration-supplied float into a 2-place decimal.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

// Sum adds the given decimals without intermediate rounding.
func Sum(ds ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range ds {
		total = total.Add(d)
	}
	return total
}

// MustFromString parses s into a decimal and panics on malformed input.
// Intended for literals in tests and fixtures only.
func MustFromString(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
