package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var symbols = map[string]string{
	"USD": "$", "EUR": "€", "GBP": "£", "JPY": "¥", "CNY": "¥", "INR": "₹",
	"AUD": "A$", "CAD": "C$", "CHF": "CHF", "KRW": "₩", "RUB": "₽", "BRL": "R$",
	"MXN": "Mex$", "PLN": "zł", "SEK": "kr", "NOK": "kr", "DKK": "kr", "HKD": "HK$",
	"SGD": "S$", "NZD": "NZ$", "ZAR": "R", "THB": "฿", "PHP": "₱", "IDR": "Rp",
	"MYR": "RM", "AED": "د.إ", "SAR": "﷼", "TRY": "₺", "ILS": "₪", "CZK": "Kč",
	"HUF": "Ft", "RON": "lei", "TWD": "NT$", "VND": "₫", "CLP": "CLP$", "COP": "COP$",
	"ARS": "ARS$", "PEN": "S/", "EGP": "E£", "NGN": "₦", "PKR": "₨", "BDT": "৳",
}

// Symbol returns the display symbol for an ISO currency code. Unknown codes
// render as "$".
func Symbol(code string) string {
	if s, ok := symbols[strings.ToUpper(code)]; ok {
		return s
	}
	return "$"
}

// RoundingMethod is applied after a currency conversion.
type RoundingMethod string

const (
	RoundNone           RoundingMethod = "none"
	RoundUp             RoundingMethod = "up"
	RoundDown           RoundingMethod = "down"
	RoundNearest        RoundingMethod = "nearest"
	RoundNearestHalf    RoundingMethod = "nearest_half"
	RoundNearestQuarter RoundingMethod = "nearest_quarter"
)

// ErrZeroRate is returned when a source currency has no usable exchange rate.
var ErrZeroRate = errors.New("money: exchange rate must be positive")

// Currency is a store currency with its exchange rate relative to the base
// currency.
type Currency struct {
	Profile
	ExchangeRate decimal.Decimal
	Markup       decimal.Decimal
	Rounding     RoundingMethod
	Enabled      bool
}

// BaseCurrency wraps a profile as the store's base currency (rate 1).
func BaseCurrency(p Profile) Currency {
	return Currency{
		Profile:      p,
		ExchangeRate: decimal.NewFromInt(1),
		Markup:       decimal.Zero,
		Rounding:     RoundNone,
		Enabled:      true,
	}
}

// Convert moves amount from one currency to another:
// amount / from.rate * to.rate * (1 + to.markup/100), then rounded with the
// target currency's rounding method.
func Convert(amount decimal.Decimal, from, to Currency) (decimal.Decimal, error) {
	if !from.ExchangeRate.IsPositive() {
		return decimal.Zero, ErrZeroRate
	}
	base := amount.Div(from.ExchangeRate)
	converted := base.Mul(to.ExchangeRate).Mul(RateFactor(to.Markup))
	return to.ApplyRounding(converted), nil
}

// ApplyRounding rounds a converted amount according to the currency's method.
func (c Currency) ApplyRounding(v decimal.Decimal) decimal.Decimal {
	switch c.Rounding {
	case RoundUp:
		return v.Ceil()
	case RoundDown:
		return v.Floor()
	case RoundNearest:
		return v.RoundBank(0)
	case RoundNearestHalf:
		return roundToFraction(v, 2)
	case RoundNearestQuarter:
		return roundToFraction(v, 4)
	default:
		return v
	}
}

func roundToFraction(v decimal.Decimal, parts int64) decimal.Decimal {
	n := decimal.NewFromInt(parts)
	return v.Mul(n).RoundBank(0).Div(n)
}
