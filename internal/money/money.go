// Package money wraps exact decimal arithmetic for monetary values.
// Every amount entering the ledger or the matcher is converted to a
// decimal here; floats appear only at the persistence and JSON edges.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is an exact base-10 monetary value.
type Amount = decimal.Decimal

// Zero is the zero amount.
var Zero = decimal.Zero

// FromFloat converts a float at the persistence boundary, rounding to cents.
func FromFloat(v float64) Amount {
	return decimal.NewFromFloat(v).Round(2)
}

// FromInt builds an amount from whole units.
func FromInt(v int64) Amount {
	return decimal.NewFromInt(v)
}

// Parse converts a decimal string such as "1234.56".
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for trusted literals; it panics on malformed input.
func MustParse(s string) Amount {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// WithinPercent reports whether a lies within pct percent of b.
// A zero b matches only a zero a.
func WithinPercent(a, b Amount, pct float64) bool {
	if b.IsZero() {
		return a.IsZero()
	}
	tolerance := b.Abs().Mul(decimal.NewFromFloat(pct / 100))
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// ToFloat converts back to a float at the persistence boundary.
func ToFloat(a Amount) float64 {
	f, _ := a.Float64()
	return f
}
