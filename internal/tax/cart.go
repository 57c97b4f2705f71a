package tax

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/location"
)

// Item is a taxable line of a cart or order.
type Item struct {
	Key     string
	Amount  decimal.Decimal
	Class   string
	Taxable bool
}

// CartResult holds per-item and shipping taxes for a whole cart.
type CartResult struct {
	Items         map[string][]Calculated `json:"items"`
	ItemTotal     decimal.Decimal         `json:"item_total"`
	Shipping      []Calculated            `json:"shipping"`
	ShippingTotal decimal.Decimal         `json:"shipping_total"`
	Lines         []Calculated            `json:"lines"`
	Total         decimal.Decimal         `json:"total"`
}

// ItemTaxes returns the per-rate amounts of one item keyed by rate id.
func (r CartResult) ItemTaxes(key string) map[uuid.UUID]decimal.Decimal {
	out := make(map[uuid.UUID]decimal.Decimal)
	for _, t := range r.Items[key] {
		out[t.RateID] = out[t.RateID].Add(t.Amount)
	}
	return out
}

// CalculateCart taxes every item and the shipping cost at the destination and
// merges the results into one line per rate.
func (c Calculator) CalculateCart(items []Item, shippingCost decimal.Decimal, dest location.Destination) CartResult {
	res := CartResult{
		Items:         make(map[string][]Calculated, len(items)),
		ItemTotal:     decimal.Zero,
		ShippingTotal: decimal.Zero,
		Total:         decimal.Zero,
	}
	merged := make(map[uuid.UUID]int)
	add := func(t Calculated) {
		if i, ok := merged[t.RateID]; ok {
			res.Lines[i].Amount = res.Lines[i].Amount.Add(t.Amount)
			return
		}
		merged[t.RateID] = len(res.Lines)
		res.Lines = append(res.Lines, t)
	}
	for _, item := range items {
		if !item.Taxable {
			continue
		}
		taxes := c.Calculate(item.Amount, dest, item.Class)
		if len(taxes) == 0 {
			continue
		}
		res.Items[item.Key] = taxes
		res.ItemTotal = res.ItemTotal.Add(Total(taxes))
		for _, t := range taxes {
			add(t)
		}
	}
	res.Shipping = c.CalculateShipping(shippingCost, dest)
	res.ShippingTotal = Total(res.Shipping)
	for _, t := range res.Shipping {
		add(t)
	}
	res.Total = res.ItemTotal.Add(res.ShippingTotal)
	return res
}
