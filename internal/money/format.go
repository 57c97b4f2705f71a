package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Position controls where the currency symbol is rendered.
type Position string

const (
	PositionLeft       Position = "left"
	PositionLeftSpace  Position = "left_space"
	PositionRight      Position = "right"
	PositionRightSpace Position = "right_space"
)

// ParsePosition maps a configuration value onto a Position, defaulting to left.
func ParsePosition(value string) Position {
	switch Position(strings.ToLower(strings.TrimSpace(value))) {
	case PositionLeftSpace:
		return PositionLeftSpace
	case PositionRight:
		return PositionRight
	case PositionRightSpace:
		return PositionRightSpace
	default:
		return PositionLeft
	}
}

// Profile describes how amounts are rounded and displayed for a store currency.
type Profile struct {
	Currency          string
	Symbol            string
	Position          Position
	ThousandSeparator string
	DecimalSeparator  string
	Decimals          int32
}

// DefaultProfile returns the USD profile used when nothing is configured.
func DefaultProfile() Profile {
	return Profile{
		Currency:          "USD",
		Symbol:            "$",
		Position:          PositionLeft,
		ThousandSeparator: ",",
		DecimalSeparator:  ".",
		Decimals:          DefaultScale,
	}
}

// NewProfile builds a profile for a currency code, resolving the symbol from
// the symbol table. Decimals are clamped to 0..4.
func NewProfile(currency string, pos Position, thousand, dec string, decimals int) Profile {
	if decimals < 0 {
		decimals = 0
	}
	if decimals > 4 {
		decimals = 4
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = "USD"
	}
	return Profile{
		Currency:          code,
		Symbol:            Symbol(code),
		Position:          pos,
		ThousandSeparator: thousand,
		DecimalSeparator:  dec,
		Decimals:          int32(decimals),
	}
}

// Scale returns the rounding scale of the profile.
func (p Profile) Scale() int32 {
	return p.Decimals
}

// Round rounds v with banker's rounding to the profile scale.
func (p Profile) Round(v decimal.Decimal) decimal.Decimal {
	return Round(v, p.Decimals)
}

// Format renders v with the profile's symbol, separators and position.
func (p Profile) Format(v decimal.Decimal) string {
	number := p.FormatNumber(v.Abs())
	var out string
	switch p.Position {
	case PositionLeftSpace:
		out = p.Symbol + " " + number
	case PositionRight:
		out = number + p.Symbol
	case PositionRightSpace:
		out = number + " " + p.Symbol
	default:
		out = p.Symbol + number
	}
	if p.Round(v).IsNegative() {
		return "-" + out
	}
	return out
}

// FormatNumber renders v without a currency symbol.
func (p Profile) FormatNumber(v decimal.Decimal) string {
	fixed := v.StringFixedBank(p.Decimals)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, fracPart, _ := strings.Cut(fixed, ".")
	grouped := groupThousands(intPart, p.ThousandSeparator)
	out := grouped
	if p.Decimals > 0 {
		out = grouped + p.DecimalSeparator + fracPart
	}
	if negative {
		return "-" + out
	}
	return out
}

func groupThousands(digits, sep string) string {
	if len(digits) <= 3 || sep == "" {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
