package pricing_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/catalog"
	"github.com/noah-isme/toko-engine/internal/money"
	"github.com/noah-isme/toko-engine/internal/pricing"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestEffectivePriceHonoursSaleWindow(t *testing.T) {
	from := now.Add(-time.Hour)
	to := now.Add(time.Hour)
	p := catalog.Product{RegularPrice: money.Ptr(dec("100")), SalePrice: money.Ptr(dec("80")), SaleFrom: &from, SaleTo: &to}

	require.True(t, pricing.EffectivePrice(p, now).Equal(dec("80")))
	require.True(t, pricing.EffectivePrice(p, to.Add(time.Second)).Equal(dec("100")))
	require.True(t, pricing.EffectivePrice(p, from.Add(-time.Second)).Equal(dec("100")))

	p.SaleFrom, p.SaleTo = nil, nil
	require.True(t, pricing.EffectivePrice(p, now).Equal(dec("80")))

	require.Nil(t, pricing.EffectivePrice(catalog.Product{}, now))
}

func TestVariationPriceDelegatesToParent(t *testing.T) {
	parent := catalog.Product{RegularPrice: money.Ptr(dec("40"))}
	v := catalog.Variation{}
	require.True(t, pricing.VariationEffectivePrice(parent, v, now).Equal(dec("40")))

	v.RegularPrice = money.Ptr(dec("45"))
	require.True(t, pricing.VariationEffectivePrice(parent, v, now).Equal(dec("45")))
}

func TestIsPurchasable(t *testing.T) {
	p := catalog.Product{
		ID:           uuid.New(),
		Status:       catalog.StatusPublish,
		RegularPrice: money.Ptr(dec("10")),
		StockStatus:  catalog.InStock,
		Backorders:   catalog.BackordersNo,
	}
	require.True(t, pricing.IsPurchasable(p, now))

	p.StockStatus = catalog.OutOfStock
	require.False(t, pricing.IsPurchasable(p, now))
	p.Backorders = catalog.BackordersNotify
	require.True(t, pricing.IsPurchasable(p, now))

	p.Status = catalog.StatusDraft
	require.False(t, pricing.IsPurchasable(p, now))

	p.Status = catalog.StatusPublish
	p.RegularPrice = nil
	require.False(t, pricing.IsPurchasable(p, now))
}

func TestTieredPrice(t *testing.T) {
	tiers := []catalog.PriceTier{
		{MinQuantity: 10, Price: dec("8")},
		{MinQuantity: 5, Price: dec("9")},
	}
	require.True(t, pricing.TieredPrice(dec("10"), 1, tiers).Equal(dec("10")))
	require.True(t, pricing.TieredPrice(dec("10"), 5, tiers).Equal(dec("9")))
	require.True(t, pricing.TieredPrice(dec("10"), 12, tiers).Equal(dec("8")))
}

func TestIncludeExcludeRoundTrip(t *testing.T) {
	for _, tc := range []struct{ price, rate string }{
		{"100", "10"}, {"19.99", "7.25"}, {"0.01", "20"}, {"1234.56", "21"},
	} {
		p := dec(tc.price)
		back := pricing.ExcludeTax(pricing.IncludeTax(p, dec(tc.rate)), dec(tc.rate))
		require.True(t, money.Round(back, 2).Equal(p), "%s @ %s -> %s", tc.price, tc.rate, back)
	}
	require.True(t, pricing.IncludeTax(dec("100"), dec("10")).Equal(dec("110")))
}

func TestSalePercentage(t *testing.T) {
	pct, ok := pricing.SalePercentage(dec("80"), dec("60"))
	require.True(t, ok)
	require.True(t, pct.Equal(dec("25")))

	_, ok = pricing.SalePercentage(decimal.Zero, dec("5"))
	require.False(t, ok)
}

func TestPriceRangeFormatting(t *testing.T) {
	products := []catalog.Product{
		{RegularPrice: money.Ptr(dec("20"))},
		{RegularPrice: money.Ptr(dec("5"))},
		{},
	}
	r, ok := pricing.PriceRange(products, now)
	require.True(t, ok)
	require.Equal(t, "$5.00 – $20.00", pricing.FormatRange(money.DefaultProfile(), r))

	r, _ = pricing.PriceRange(products[:1], now)
	require.Equal(t, "$20.00", pricing.FormatRange(money.DefaultProfile(), r))
}

func TestComputeClamped(t *testing.T) {
	s := pricing.ComputeClamped(pricing.Summary{Subtotal: dec("10"), Discount: dec("15")})
	require.True(t, s.Total.IsZero())

	s = pricing.Compute(pricing.Summary{Subtotal: dec("100"), Shipping: dec("5"), Fees: dec("2"), Tax: dec("10"), Discount: dec("7")})
	require.True(t, s.Total.Equal(dec("110")))
}
