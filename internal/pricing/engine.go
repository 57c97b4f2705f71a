package pricing

import (
	"github.com/shopspring/decimal"
)

// Summary aggregates computed pricing components for a cart or an order.
type Summary struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Fees     decimal.Decimal `json:"fees"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Compute fills Total from the other components:
// subtotal + shipping + fees + tax - discount.
func Compute(s Summary) Summary {
	s.Total = s.Subtotal.Add(s.Shipping).Add(s.Fees).Add(s.Tax).Sub(s.Discount)
	return s
}

// ComputeClamped behaves like Compute but never yields a negative total.
func ComputeClamped(s Summary) Summary {
	s = Compute(s)
	if s.Total.IsNegative() {
		s.Total = decimal.Zero
	}
	return s
}
