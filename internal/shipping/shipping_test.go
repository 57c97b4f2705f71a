package shipping_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/location"
	"github.com/noah-isme/toko-engine/internal/shipping"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func usZone() shipping.Zone {
	return shipping.Zone{
		ID:        uuid.New(),
		Name:      "United States",
		Order:     1,
		Locations: []shipping.Location{{Code: "US", Type: shipping.LocationCountry}},
		Methods: []shipping.MethodInstance{
			{InstanceID: 1, MethodID: shipping.MethodFlatRate, Enabled: true, Order: 1, Settings: shipping.Settings{Cost: dec("5.99")}},
			{InstanceID: 2, MethodID: shipping.MethodFreeShipping, Enabled: true, Order: 2, Settings: shipping.Settings{MinAmount: decPtr("50.00")}},
		},
	}
}

func pkg(subtotal string, dest location.Destination) shipping.Package {
	return shipping.Package{
		Items:        []shipping.PackageItem{{ProductID: uuid.New(), Quantity: 1, Weight: dec("1"), LineTotal: dec(subtotal)}},
		ContentsCost: dec(subtotal),
		Destination:  dest,
	}
}

func TestFreeShippingThreshold(t *testing.T) {
	calc := shipping.Calculator{Zones: []shipping.Zone{usZone()}}
	dest := location.NewDestination("US", "CA", "90210", "")

	rates, err := calc.Rates(pkg("49.99", dest))
	require.NoError(t, err)
	require.Len(t, rates, 1)
	require.Equal(t, "flat_rate:1", rates[0].ID)

	rates, err = calc.Rates(pkg("50.00", dest))
	require.NoError(t, err)
	require.Len(t, rates, 2)
	require.Equal(t, "free_shipping:2", rates[0].ID)
	require.True(t, rates[0].Cost.IsZero())
	require.Equal(t, "Free shipping", rates[0].Label)
	require.Equal(t, shipping.PackageID, rates[0].PackageID)
}

func TestFreeShippingRequiresCoupon(t *testing.T) {
	m := shipping.MethodInstance{InstanceID: 3, MethodID: shipping.MethodFreeShipping, Enabled: true, Settings: shipping.Settings{RequiresCoupon: true}}
	p := pkg("10", location.NewDestination("US", "", "", ""))

	_, ok := m.Evaluate(p)
	require.False(t, ok)

	p.HasFreeShippingCoupon = true
	r, ok := m.Evaluate(p)
	require.True(t, ok)
	require.True(t, r.Cost.IsZero())
}

func TestZoneSpecificity(t *testing.T) {
	na := shipping.Zone{
		Name:      "North America",
		Locations: []shipping.Location{{Code: "NA", Type: shipping.LocationContinent}},
	}
	ca := shipping.Zone{
		Name:      "California",
		Order:     5,
		Locations: []shipping.Location{{Code: "US:CA", Type: shipping.LocationState}},
	}
	bh := shipping.Zone{
		Name:      "Beverly Hills",
		Order:     9,
		Locations: []shipping.Location{{Code: "902*", Type: shipping.LocationPostcode}},
	}
	rest := shipping.Zone{Name: "Rest of world", Order: 0}
	zones := []shipping.Zone{rest, na, usZone(), ca, bh}

	z, err := shipping.MatchZone(zones, location.NewDestination("US", "CA", "90210", ""))
	require.NoError(t, err)
	require.Equal(t, "Beverly Hills", z.Name)

	z, err = shipping.MatchZone(zones, location.NewDestination("US", "CA", "94105", ""))
	require.NoError(t, err)
	require.Equal(t, "California", z.Name)

	z, err = shipping.MatchZone(zones, location.NewDestination("US", "NY", "10001", ""))
	require.NoError(t, err)
	require.Equal(t, "United States", z.Name)

	z, err = shipping.MatchZone(zones, location.NewDestination("CA", "ON", "", ""))
	require.NoError(t, err)
	require.Equal(t, "North America", z.Name)

	z, err = shipping.MatchZone(zones, location.NewDestination("JP", "", "", ""))
	require.NoError(t, err)
	require.Equal(t, "Rest of world", z.Name)
}

func TestMatchZoneErrors(t *testing.T) {
	_, err := shipping.MatchZone([]shipping.Zone{usZone()}, location.NewDestination("", "", "", ""))
	require.ErrorIs(t, err, shipping.ErrInvalidDestination)

	_, err = shipping.MatchZone([]shipping.Zone{usZone()}, location.NewDestination("DE", "", "", ""))
	require.ErrorIs(t, err, shipping.ErrNoShippingZone)
	require.Equal(t, "No shipping zone found for this address", err.Error())
}

func TestNoMethodsAvailable(t *testing.T) {
	z := usZone()
	z.Methods[0].Enabled = false
	calc := shipping.Calculator{Zones: []shipping.Zone{z}}
	_, err := calc.Rates(pkg("10", location.NewDestination("US", "", "", "")))
	require.ErrorIs(t, err, shipping.ErrNoShippingMethodsAvailable)
}

func TestFlatRateFormula(t *testing.T) {
	settings := shipping.Settings{
		Cost:              dec("5"),
		CostPerItem:       dec("1"),
		CostPerWeightUnit: dec("0.5"),
		ClassCosts:        map[string]decimal.Decimal{"bulky": dec("10"), "small": dec("2")},
		NoClassCost:       dec("3"),
	}
	p := shipping.Package{
		Items: []shipping.PackageItem{
			{Quantity: 2, Weight: dec("2"), ShippingClass: "bulky"},
			{Quantity: 1, Weight: dec("1"), ShippingClass: "small"},
			{Quantity: 3, Weight: dec("0"), ShippingClass: ""},
			{Quantity: 1, Weight: dec("0"), ShippingClass: ""},
		},
	}
	m := shipping.MethodInstance{InstanceID: 7, MethodID: shipping.MethodFlatRate, Enabled: true, Settings: settings}

	// base 5 + items 7 + weight 2.5 + classes 10 + 2 + 3
	r, ok := m.Evaluate(p)
	require.True(t, ok)
	require.True(t, r.Cost.Equal(dec("29.5")), r.Cost.String())
	require.True(t, r.Taxable)

	m.Settings.CalcType = shipping.CalcPerOrder
	r, _ = m.Evaluate(p)
	require.True(t, r.Cost.Equal(dec("24.5")), r.Cost.String())

	// per item: bulky 2x10 + small 1x2 + none 4x3
	m.Settings.CalcType = shipping.CalcPerItem
	r, _ = m.Evaluate(p)
	require.True(t, r.Cost.Equal(dec("48.5")), r.Cost.String())
}

func TestLocalPickupMeta(t *testing.T) {
	m := shipping.MethodInstance{
		InstanceID: 4,
		MethodID:   shipping.MethodLocalPickup,
		Enabled:    true,
		Settings:   shipping.Settings{Cost: dec("0"), PickupLocation: "Main St store", TaxStatus: shipping.TaxNone},
	}
	r, ok := m.Evaluate(pkg("10", location.NewDestination("US", "", "", "")))
	require.True(t, ok)
	require.Equal(t, "local_pickup:4", r.ID)
	require.Equal(t, "Local pickup", r.Label)
	require.Equal(t, "Main St store", r.Meta["pickup_location"])
	require.False(t, r.Taxable)
}

func TestRatesSortedStableByCost(t *testing.T) {
	z := shipping.Zone{
		Methods: []shipping.MethodInstance{
			{InstanceID: 1, MethodID: shipping.MethodFlatRate, Enabled: true, Order: 1, Title: "Express", Settings: shipping.Settings{Cost: dec("15")}},
			{InstanceID: 2, MethodID: shipping.MethodLocalPickup, Enabled: true, Order: 2, Settings: shipping.Settings{Cost: dec("5")}},
			{InstanceID: 3, MethodID: shipping.MethodFlatRate, Enabled: true, Order: 3, Settings: shipping.Settings{Cost: dec("5")}},
		},
	}
	rates, err := shipping.Calculator{Zones: []shipping.Zone{z}}.Rates(pkg("1", location.NewDestination("FR", "", "", "")))
	require.NoError(t, err)
	require.Equal(t, []string{"local_pickup:2", "flat_rate:3", "flat_rate:1"}, []string{rates[0].ID, rates[1].ID, rates[2].ID})
	require.Equal(t, "Express", rates[2].Label)

	found, ok := shipping.FindRate(rates, "flat_rate:3")
	require.True(t, ok)
	require.True(t, found.Cost.Equal(dec("5")))
}
