package tax

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/location"
	"github.com/noah-isme/toko-engine/internal/money"
)

// BasedOn selects which address locates the customer for tax purposes.
type BasedOn string

const (
	BasedOnShipping BasedOn = "shipping"
	BasedOnBilling  BasedOn = "billing"
	BasedOnBase     BasedOn = "base"
)

// ParseBasedOn defaults to shipping for unknown values.
func ParseBasedOn(v string) BasedOn {
	switch BasedOn(strings.ToLower(strings.TrimSpace(v))) {
	case BasedOnBilling:
		return BasedOnBilling
	case BasedOnBase:
		return BasedOnBase
	default:
		return BasedOnShipping
	}
}

// Settings is the narrow tax configuration.
type Settings struct {
	Enabled          bool
	PricesIncludeTax bool
	BasedOn          BasedOn
	Base             location.Destination
	Scale            int32
}

// Location resolves the taxable destination from the configured basis. Missing
// addresses fall back to billing, then the shop base.
func (s Settings) Location(billing, shipping *location.Address) location.Destination {
	switch s.BasedOn {
	case BasedOnBase:
		return s.Base
	case BasedOnBilling:
		if billing != nil {
			return billing.Destination()
		}
	default:
		if shipping != nil {
			return shipping.Destination()
		}
		if billing != nil {
			return billing.Destination()
		}
	}
	return s.Base
}

// Calculated is the tax produced by one rate.
type Calculated struct {
	RateID   uuid.UUID       `json:"rate_id"`
	Label    string          `json:"label"`
	Rate     decimal.Decimal `json:"rate"`
	Priority int             `json:"priority"`
	Compound bool            `json:"compound"`
	Amount   decimal.Decimal `json:"amount"`
}

// Total sums calculated taxes.
func Total(taxes []Calculated) decimal.Decimal {
	total := decimal.Zero
	for _, t := range taxes {
		total = total.Add(t.Amount)
	}
	return total
}

// Label is "Tax" with no taxes, the single rate's label with one, else "Taxes".
func Label(taxes []Calculated) string {
	switch len(taxes) {
	case 0:
		return "Tax"
	case 1:
		return taxes[0].Label
	default:
		return "Taxes"
	}
}

// Calculator applies a read-only snapshot of the tax table. It is pure: equal
// inputs always produce equal outputs.
type Calculator struct {
	Settings Settings
	Rates    []Rate
}

func (c Calculator) scale() int32 {
	if c.Settings.Scale < 0 {
		return money.DefaultScale
	}
	return c.Settings.Scale
}

// RatesFor returns rates of the class matching the destination, ordered by
// priority then sort order.
func (c Calculator) RatesFor(dest location.Destination, class string) []Rate {
	class = NormaliseClass(class)
	out := make([]Rate, 0, len(c.Rates))
	for _, r := range c.Rates {
		if NormaliseClass(r.Class) != class {
			continue
		}
		if r.Matches(dest) {
			out = append(out, r)
		}
	}
	sortRates(out)
	return out
}

func sortRates(rates []Rate) {
	sort.SliceStable(rates, func(i, j int) bool {
		if rates[i].Priority != rates[j].Priority {
			return rates[i].Priority < rates[j].Priority
		}
		return rates[i].SortOrder < rates[j].SortOrder
	})
}

// Calculate computes the taxes on amount. Priority groups run in ascending
// order; compound rates are based on amount plus the tax of all lower groups.
// Each per-rate tax is rounded half-to-even to the configured scale.
func (c Calculator) Calculate(amount decimal.Decimal, dest location.Destination, class string) []Calculated {
	if !c.Settings.Enabled {
		return nil
	}
	return c.apply(amount, c.RatesFor(dest, class), c.Settings.PricesIncludeTax)
}

func (c Calculator) apply(amount decimal.Decimal, rates []Rate, inclusive bool) []Calculated {
	if len(rates) == 0 {
		return nil
	}
	out := make([]Calculated, 0, len(rates))
	running := decimal.Zero
	for start := 0; start < len(rates); {
		end := start
		for end < len(rates) && rates[end].Priority == rates[start].Priority {
			end++
		}
		groupTax := decimal.Zero
		for _, r := range rates[start:end] {
			base := amount
			if r.Compound {
				base = amount.Add(running)
			}
			var taxAmount decimal.Decimal
			if inclusive {
				taxAmount = base.Sub(base.Div(money.RateFactor(r.Rate)))
			} else {
				taxAmount = money.MulRate(base, r.Rate)
			}
			taxAmount = money.Round(taxAmount, c.scale())
			groupTax = groupTax.Add(taxAmount)
			out = append(out, Calculated{
				RateID:   r.ID,
				Label:    r.Label(),
				Rate:     r.Rate,
				Priority: r.Priority,
				Compound: r.Compound,
				Amount:   taxAmount,
			})
		}
		running = running.Add(groupTax)
		start = end
	}
	return out
}

// CalculateShipping taxes a shipping cost with every matching rate flagged for
// shipping, regardless of class. Shipping costs are always tax-exclusive.
func (c Calculator) CalculateShipping(cost decimal.Decimal, dest location.Destination) []Calculated {
	if !c.Settings.Enabled || !cost.IsPositive() {
		return nil
	}
	out := make([]Calculated, 0)
	rates := make([]Rate, 0, len(c.Rates))
	for _, r := range c.Rates {
		if r.Shipping && r.Matches(dest) {
			rates = append(rates, r)
		}
	}
	sortRates(rates)
	for _, r := range rates {
		out = append(out, Calculated{
			RateID:   r.ID,
			Label:    r.Label(),
			Rate:     r.Rate,
			Priority: r.Priority,
			Amount:   money.Round(money.MulRate(cost, r.Rate), c.scale()),
		})
	}
	return out
}
