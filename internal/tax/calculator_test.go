package tax_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/location"
	"github.com/noah-isme/toko-engine/internal/tax"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var us = location.NewDestination("US", "CA", "90210", "Beverly Hills")

func settings(inclusive bool) tax.Settings {
	return tax.Settings{Enabled: true, PricesIncludeTax: inclusive, BasedOn: tax.BasedOnShipping, Scale: 2}
}

func TestSimpleExclusiveTax(t *testing.T) {
	calc := tax.Calculator{
		Settings: settings(false),
		Rates:    []tax.Rate{{ID: uuid.New(), Country: "US", Rate: dec("10"), Priority: 1, Name: "VAT"}},
	}
	taxes := calc.Calculate(dec("100.00"), us, "")
	require.Len(t, taxes, 1)
	require.True(t, tax.Total(taxes).Equal(dec("10.00")))
	require.Equal(t, "VAT", tax.Label(taxes))
}

func TestInclusiveTaxExtraction(t *testing.T) {
	calc := tax.Calculator{
		Settings: settings(true),
		Rates:    []tax.Rate{{ID: uuid.New(), Country: "US", Rate: dec("10"), Priority: 1}},
	}
	taxes := calc.Calculate(dec("110.00"), us, tax.Standard)
	total := tax.Total(taxes)
	require.True(t, total.Equal(dec("10.00")), total.String())
	require.True(t, dec("110.00").Sub(total).Equal(dec("100.00")))
}

func TestCompoundTaxSeesLowerGroups(t *testing.T) {
	calc := tax.Calculator{
		Settings: settings(false),
		Rates: []tax.Rate{
			{ID: uuid.New(), Country: "US", Rate: dec("10"), Priority: 2, Compound: true},
			{ID: uuid.New(), Country: "US", Rate: dec("5"), Priority: 1},
		},
	}
	taxes := calc.Calculate(dec("100.00"), us, "")
	require.Len(t, taxes, 2)
	require.True(t, taxes[0].Amount.Equal(dec("5.00")))
	require.True(t, taxes[1].Amount.Equal(dec("10.50")))
	require.True(t, tax.Total(taxes).Equal(dec("15.50")))
	require.True(t, dec("100").Add(tax.Total(taxes)).Equal(dec("115.50")))
	require.Equal(t, "Taxes", tax.Label(taxes))
}

func TestCompoundIgnoresSamePriority(t *testing.T) {
	calc := tax.Calculator{
		Settings: settings(false),
		Rates: []tax.Rate{
			{ID: uuid.New(), Rate: dec("5"), Priority: 1},
			{ID: uuid.New(), Rate: dec("10"), Priority: 1, Compound: true},
		},
	}
	taxes := calc.Calculate(dec("100"), us, "")
	require.True(t, taxes[1].Amount.Equal(dec("10.00")))
}

func TestRateMatching(t *testing.T) {
	calc := tax.Calculator{
		Settings: settings(false),
		Rates: []tax.Rate{
			{ID: uuid.New(), Country: "US", State: "CA", Postcode: "9*", Rate: dec("7.25"), Priority: 1},
			{ID: uuid.New(), Country: "US", State: "NY", Rate: dec("4"), Priority: 1},
			{ID: uuid.New(), Country: "US", City: "beverly hills", Rate: dec("1"), Priority: 2},
			{ID: uuid.New(), Country: "GB", Rate: dec("20"), Priority: 1},
			{ID: uuid.New(), Rate: dec("3"), Priority: 3, Class: "reduced-rate"},
		},
	}
	require.Len(t, calc.RatesFor(us, "standard"), 2)
	require.Len(t, calc.RatesFor(location.NewDestination("US", "CA", "80210", ""), ""), 0)
	require.Len(t, calc.RatesFor(location.NewDestination("FR", "", "", ""), "reduced-rate"), 1)
}

func TestTaxesDisabled(t *testing.T) {
	calc := tax.Calculator{
		Settings: tax.Settings{Enabled: false, Scale: 2},
		Rates:    []tax.Rate{{ID: uuid.New(), Rate: dec("10"), Shipping: true}},
	}
	require.Empty(t, calc.Calculate(dec("100"), us, ""))
	require.Empty(t, calc.CalculateShipping(dec("10"), us))
}

func TestShippingTax(t *testing.T) {
	calc := tax.Calculator{
		Settings: settings(true),
		Rates: []tax.Rate{
			{ID: uuid.New(), Country: "US", Rate: dec("10"), Shipping: true},
			{ID: uuid.New(), Country: "US", Rate: dec("5"), Shipping: false},
			{ID: uuid.New(), Country: "US", Rate: dec("2"), Shipping: true, Class: "reduced-rate"},
		},
	}
	taxes := calc.CalculateShipping(dec("10.00"), us)
	require.Len(t, taxes, 2)
	require.True(t, tax.Total(taxes).Equal(dec("1.20")))
}

func TestCartCalculationMergesLines(t *testing.T) {
	rateID := uuid.New()
	calc := tax.Calculator{
		Settings: settings(false),
		Rates:    []tax.Rate{{ID: rateID, Country: "US", Rate: dec("10"), Shipping: true, Priority: 1}},
	}
	res := calc.CalculateCart([]tax.Item{
		{Key: "a", Amount: dec("20"), Taxable: true},
		{Key: "b", Amount: dec("30"), Taxable: true},
		{Key: "c", Amount: dec("50"), Taxable: false},
	}, dec("5"), us)

	require.True(t, res.ItemTotal.Equal(dec("5.00")))
	require.True(t, res.ShippingTotal.Equal(dec("0.50")))
	require.True(t, res.Total.Equal(dec("5.50")))
	require.Len(t, res.Lines, 1)
	require.True(t, res.Lines[0].Amount.Equal(dec("5.50")))
	require.True(t, res.ItemTaxes("a")[rateID].Equal(dec("2.00")))
	require.Empty(t, res.Items["c"])
}

func TestLocationBasis(t *testing.T) {
	billing := &location.Address{Country: "GB", Postcode: "SW1A 1AA", City: "London", Address1: "x"}
	shipping := &location.Address{Country: "US", State: "CA", Postcode: "90210", City: "LA", Address1: "y"}
	base := location.NewDestination("DE", "", "10115", "Berlin")

	s := tax.Settings{BasedOn: tax.BasedOnShipping, Base: base}
	require.Equal(t, "US", s.Location(billing, shipping).Country)
	require.Equal(t, "GB", s.Location(billing, nil).Country)

	s.BasedOn = tax.BasedOnBilling
	require.Equal(t, "GB", s.Location(billing, shipping).Country)

	s.BasedOn = tax.BasedOnBase
	require.Equal(t, "DE", s.Location(billing, shipping).Country)
}

func TestFormatRateAndClasses(t *testing.T) {
	require.Equal(t, "10%", tax.FormatRate(dec("10")))
	require.Equal(t, "7.25%", tax.FormatRate(dec("7.25")))
	require.Len(t, tax.DefaultClasses(), 3)
	require.Equal(t, "Tax", tax.Label(nil))
}
