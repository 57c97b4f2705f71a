package money

import (
	"github.com/shopspring/decimal"
)

// DefaultScale is the number of decimals used when no profile is supplied.
const DefaultScale int32 = 2

var hundred = decimal.NewFromInt(100)

// Zero returns the zero amount.
func Zero() decimal.Decimal {
	return decimal.Zero
}

// New parses a decimal literal and panics on malformed input. Intended for
// fixtures and constants, never for user input.
func New(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

// Add returns a + b.
func Add(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b)
}

// Sub returns a - b.
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b)
}

// MulInt multiplies an amount by an integer quantity.
func MulInt(v decimal.Decimal, n int) decimal.Decimal {
	return v.Mul(decimal.NewFromInt(int64(n)))
}

// MulRate applies a percentage rate: v * rate / 100.
func MulRate(v, rate decimal.Decimal) decimal.Decimal {
	return v.Mul(rate).Div(hundred)
}

// RateFactor returns 1 + rate/100.
func RateFactor(rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Add(rate.Div(hundred))
}

// Round applies banker's rounding (half to even) at the given scale.
func Round(v decimal.Decimal, scale int32) decimal.Decimal {
	return v.RoundBank(scale)
}

// Sum adds all values together.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// NonNegative clamps negative amounts to zero.
func NonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Ptr returns a pointer to v, handy for optional price fields.
func Ptr(v decimal.Decimal) *decimal.Decimal {
	return &v
}
