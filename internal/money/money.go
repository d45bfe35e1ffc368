// Package money holds fixed-point currency amounts. Balances, stakes and
// payouts are integers in minor units (cents) end to end; decimal strings
// only appear at the transport and config boundaries.
package money

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places in one display unit
const Scale = 2

// Amount is a quantity of currency in minor units
type Amount int64

// Zero is the zero amount
const Zero Amount = 0

var (
	// ErrInvalidAmount is returned for malformed, non-finite or sub-cent input
	ErrInvalidAmount = errors.New("money: invalid amount")

	maxAmount = decimal.New(math.MaxInt64, -Scale)
)

// Cents builds an amount from a minor-unit count
func Cents(c int64) Amount { return Amount(c) }

// Units builds an amount from whole display units
func Units(u int64) Amount { return Amount(u * 100) }

// Parse reads a decimal string such as "12.5" or "0.01"
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d)
}

// FromFloat converts a display-unit float, rejecting NaN, infinities and
// values with more precision than one minor unit.
func FromFloat(f float64) (Amount, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: non-finite", ErrInvalidAmount)
	}
	return FromDecimal(decimal.NewFromFloat(f))
}

// FromDecimal converts a display-unit decimal
func FromDecimal(d decimal.Decimal) (Amount, error) {
	if d.Abs().GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: %s out of range", ErrInvalidAmount, d)
	}
	minor := d.Shift(Scale)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s has sub-cent precision", ErrInvalidAmount, d)
	}
	return Amount(minor.IntPart()), nil
}

// Decimal returns the amount in display units
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

// String renders the amount with exactly two decimals
func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// Float64 returns the display value for presentation layers
func (a Amount) Float64() float64 {
	f, _ := a.Decimal().Float64()
	return f
}

// MarshalJSON encodes the amount as a JSON number in display units
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MulDiv returns floor(a * num / den) without intermediate overflow.
// den must be positive and a, num non-negative.
func MulDiv(a Amount, num, den int64) Amount {
	if den <= 0 {
		panic("money: MulDiv with non-positive denominator")
	}
	var x big.Int
	x.Mul(big.NewInt(int64(a)), big.NewInt(num))
	x.Quo(&x, big.NewInt(den))
	return Amount(x.Int64())
}

// Rate is a proportion in basis points (1/100 of a percent)
type Rate int64

// Whole is a rate of 100%
const Whole Rate = 10_000

// RateFromPercent converts a percentage such as 2.5 into basis points
func RateFromPercent(p float64) (Rate, error) {
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 || p > 100 {
		return 0, fmt.Errorf("money: percentage %v out of range", p)
	}
	bps := decimal.NewFromFloat(p).Shift(2)
	if !bps.IsInteger() {
		return 0, fmt.Errorf("money: percentage %v finer than one basis point", p)
	}
	return Rate(bps.IntPart()), nil
}

// Percent returns the rate as a percentage
func (r Rate) Percent() float64 {
	f, _ := decimal.New(int64(r), -2).Float64()
	return f
}

// Keep returns floor(a * (1 - r)), the part of a left after the rate is taken
func (r Rate) Keep(a Amount) Amount {
	return MulDiv(a, int64(Whole-r), int64(Whole))
}

// Split divides a into what is kept and what the rate takes. The taken part
// absorbs rounding so kept + taken == a.
func (r Rate) Split(a Amount) (kept, taken Amount) {
	kept = r.Keep(a)
	return kept, a - kept
}
