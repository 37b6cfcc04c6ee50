// Package money holds the validated amount type accepted by the ledger engine.
// Amounts are positive integers in minor units (two decimal places).
package money

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/banking-ledger-engine/internal/domain/shared"
)

// Scale is the number of decimal places carried by one minor unit
const Scale = 2

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// Amount is a strictly positive quantity of minor units
type Amount int64

// FromMinorUnits validates a raw minor-unit value
func FromMinorUnits(v int64) (Amount, error) {
	if v <= 0 {
		return 0, shared.ErrInvalidAmount
	}
	return Amount(v), nil
}

// FromDecimal converts a decimal major-unit value into minor units.
// More than two fractional digits, non-positive values and overflow are rejected.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if !d.IsPositive() {
		return 0, shared.ErrInvalidAmount
	}
	minor := d.Shift(Scale)
	if !minor.IsInteger() {
		return 0, shared.NewError(shared.KindInvalidAmount,
			fmt.Sprintf("amount %s has more than %d decimal places", d.String(), Scale), nil)
	}
	if minor.GreaterThan(maxMinorUnits) {
		return 0, shared.NewError(shared.KindInvalidAmount, "amount is too large", nil)
	}
	return Amount(minor.IntPart()), nil
}

// Parse reads a decimal string such as "12.50"
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, shared.NewError(shared.KindInvalidAmount, "amount is not a number", err)
	}
	return FromDecimal(d)
}

// Validate re-checks the positivity invariant for values built by conversion
func (a Amount) Validate() error {
	if a <= 0 {
		return shared.ErrInvalidAmount
	}
	return nil
}

// MinorUnits returns the raw integer value
func (a Amount) MinorUnits() int64 {
	return int64(a)
}

// Decimal returns the major-unit representation
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// FormatMinorUnits renders a balance held in minor units, e.g. 1050 -> "10.50"
func FormatMinorUnits(v int64) string {
	return decimal.New(v, -Scale).StringFixed(Scale)
}
