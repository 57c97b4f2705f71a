package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/catalog"
	"github.com/noah-isme/toko-engine/internal/money"
)

// SaleActive reports whether a sale price applies at now given its window.
func SaleActive(sale *decimal.Decimal, from, to *time.Time, now time.Time) bool {
	if sale == nil {
		return false
	}
	if from != nil && now.Before(*from) {
		return false
	}
	if to != nil && now.After(*to) {
		return false
	}
	return true
}

// EffectivePrice returns the sale price when its window covers now, otherwise
// the regular price. Nil means the product has no price.
func EffectivePrice(p catalog.Product, now time.Time) *decimal.Decimal {
	return pick(p.RegularPrice, p.SalePrice, p.SaleFrom, p.SaleTo, now)
}

// VariationEffectivePrice applies the same rule to a variation and delegates to
// the parent when the variation carries no prices at all.
func VariationEffectivePrice(parent catalog.Product, v catalog.Variation, now time.Time) *decimal.Decimal {
	if v.RegularPrice == nil && v.SalePrice == nil {
		return EffectivePrice(parent, now)
	}
	return pick(v.RegularPrice, v.SalePrice, v.SaleFrom, v.SaleTo, now)
}

func pick(regular, sale *decimal.Decimal, from, to *time.Time, now time.Time) *decimal.Decimal {
	if SaleActive(sale, from, to, now) {
		v := *sale
		return &v
	}
	if regular != nil {
		v := *regular
		return &v
	}
	return nil
}

// IsOnSale reports whether the product currently sells below its regular price.
func IsOnSale(p catalog.Product, now time.Time) bool {
	if !SaleActive(p.SalePrice, p.SaleFrom, p.SaleTo, now) {
		return false
	}
	if p.RegularPrice == nil {
		return true
	}
	return p.SalePrice.LessThan(*p.RegularPrice)
}

// IsPurchasable reports whether a product can be added to a cart: published,
// priced, and either in stock or accepting backorders.
func IsPurchasable(p catalog.Product, now time.Time) bool {
	if !p.IsPublished() {
		return false
	}
	if EffectivePrice(p, now) == nil {
		return false
	}
	return p.StockStatus != catalog.OutOfStock || p.Backorders.Allowed()
}

// TieredPrice returns the price of the highest tier whose minimum quantity is
// satisfied, or base when none is.
func TieredPrice(base decimal.Decimal, quantity int, tiers []catalog.PriceTier) decimal.Decimal {
	if len(tiers) == 0 {
		return base
	}
	sorted := append([]catalog.PriceTier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinQuantity < sorted[j].MinQuantity })
	price := base
	for _, tier := range sorted {
		if quantity >= tier.MinQuantity {
			price = tier.Price
		}
	}
	return price
}

// IncludeTax returns p * (1 + rate/100).
func IncludeTax(p, rate decimal.Decimal) decimal.Decimal {
	return p.Mul(money.RateFactor(rate))
}

// ExcludeTax returns p / (1 + rate/100).
func ExcludeTax(p, rate decimal.Decimal) decimal.Decimal {
	return p.Div(money.RateFactor(rate))
}

// SalePercentage returns (regular - sale) / regular * 100 rounded to whole
// percent. ok is false when regular is not positive.
func SalePercentage(regular, sale decimal.Decimal) (decimal.Decimal, bool) {
	if !regular.IsPositive() {
		return decimal.Zero, false
	}
	pct := regular.Sub(sale).Div(regular).Mul(decimal.NewFromInt(100))
	return money.Round(pct, 0), true
}

// Range is the min/max effective price across a set of products.
type Range struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// PriceRange returns the range of effective prices. ok is false when no
// product carries a price.
func PriceRange(products []catalog.Product, now time.Time) (Range, bool) {
	var (
		r     Range
		found bool
	)
	for _, p := range products {
		price := EffectivePrice(p, now)
		if price == nil {
			continue
		}
		if !found {
			r = Range{Min: *price, Max: *price}
			found = true
			continue
		}
		r.Min = money.Min(r.Min, *price)
		r.Max = money.Max(r.Max, *price)
	}
	return r, found
}

// FormatRange renders "$a – $b", or a single price when both ends are equal.
func FormatRange(profile money.Profile, r Range) string {
	if r.Min.Equal(r.Max) {
		return profile.Format(r.Min)
	}
	return profile.Format(r.Min) + " – " + profile.Format(r.Max)
}
