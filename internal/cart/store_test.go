package cart_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/cart"
	"github.com/noah-isme/toko-engine/internal/catalog"
	"github.com/noah-isme/toko-engine/internal/coupon"
	"github.com/noah-isme/toko-engine/internal/lock"
	"github.com/noah-isme/toko-engine/internal/ratelimit"
	"github.com/noah-isme/toko-engine/internal/shipping"
	"github.com/noah-isme/toko-engine/internal/tax"
)

type stubProducts struct {
	products   map[uuid.UUID]catalog.Product
	variations map[uuid.UUID]catalog.Variation
}

func (s stubProducts) GetProduct(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (s stubProducts) GetVariation(_ context.Context, id uuid.UUID) (catalog.Variation, error) {
	v, ok := s.variations[id]
	if !ok {
		return catalog.Variation{}, catalog.ErrNotFound
	}
	return v, nil
}

type stubCoupons struct {
	coupons map[string]coupon.Coupon
	usage   int
}

func (s stubCoupons) Lookup(_ context.Context, code string) (coupon.Coupon, error) {
	c, ok := s.coupons[coupon.NormaliseCode(code)]
	if !ok {
		return coupon.Coupon{}, coupon.ErrNotFound
	}
	return c, nil
}

func (s stubCoupons) UserUsage(context.Context, uuid.UUID, uuid.UUID) (int, error) {
	return s.usage, nil
}

type stubRates []tax.Rate

func (s stubRates) Rates(context.Context) ([]tax.Rate, error) { return s, nil }

func newManager(t *testing.T, products stubProducts, coupons stubCoupons) *cart.Manager {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &cart.Manager{
		Store:    &cart.Store{R: client, Prefix: "test", Now: func() time.Time { return fixedNow }},
		Locker:   lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond, Prefix: "test"},
		Service:  newService(noTax()),
		Products: products,
		Coupons:  coupons,
		LockTTL:  time.Second,
		Logger:   zerolog.Nop(),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &cart.Store{R: client, Now: func() time.Time { return fixedNow }}
	svc := newService(noTax())
	customerID := uuid.New()
	c := svc.New(&customerID)
	_, err = svc.Add(&c, product("12.50"), nil, 2, map[string]any{"note": "gift"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, c))
	require.True(t, mr.Exists("toko:cart:"+c.ID.String()))
	require.Equal(t, c.ID.String(), mustGet(t, mr, "toko:cart:customer:"+customerID.String()))

	loaded, err := store.FindByCustomer(ctx, customerID)
	require.NoError(t, err)
	require.Equal(t, c.ID, loaded.ID)
	require.Equal(t, c.Hash, loaded.Hash)
	require.Len(t, loaded.Items, 1)
	require.True(t, loaded.Totals.Total.Equal(dec("25.00")))
	require.Equal(t, "gift", loaded.Items[0].Meta["note"])

	require.NoError(t, store.Delete(ctx, loaded))
	_, err = store.Get(ctx, c.ID)
	require.ErrorIs(t, err, cart.ErrNotFound)
	_, err = store.FindBySession(ctx, "")
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestManagerOpenReusesSessionCart(t *testing.T) {
	m := newManager(t, stubProducts{}, stubCoupons{})
	ctx := context.Background()

	first, err := m.Open(ctx, nil, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", first.SessionKey)

	again, err := m.Open(ctx, nil, "sess-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
}

func TestManagerAddItemAndCoupon(t *testing.T) {
	p := product("100.00")
	products := stubProducts{products: map[uuid.UUID]catalog.Product{p.ID: p}}
	coupons := stubCoupons{coupons: map[string]coupon.Coupon{
		"SAVE10": {
			ID: uuid.New(), Code: "SAVE10", Status: coupon.StatusPublish,
			DiscountType: coupon.Percent, Amount: dec("10"), MaximumAmount: decPtr("15.00"),
		},
	}}
	m := newManager(t, products, coupons)
	ctx := context.Background()

	c, err := m.Open(ctx, nil, "guest")
	require.NoError(t, err)

	c, err = m.AddItem(ctx, c.ID, p.ID, nil, 2, nil)
	require.NoError(t, err)
	require.True(t, c.Totals.Subtotal.Equal(dec("200.00")))

	_, err = m.AddItem(ctx, c.ID, uuid.New(), nil, 1, nil)
	require.ErrorIs(t, err, cart.ErrProductNotFound)

	missing := uuid.New()
	_, err = m.AddItem(ctx, c.ID, p.ID, &missing, 1, nil)
	require.ErrorIs(t, err, cart.ErrVariationNotFound)

	c, err = m.ApplyCoupon(ctx, c.ID, " save10 ", "")
	require.NoError(t, err)
	require.True(t, c.Totals.Total.Equal(dec("185.00")))

	_, err = m.ApplyCoupon(ctx, c.ID, "NOPE", "")
	require.ErrorIs(t, err, coupon.ErrNotFound)

	stored, err := m.Store.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"SAVE10"}, stored.CouponCodes())
	require.True(t, stored.Totals.DiscountTotal.Equal(dec("15.00")))

	c, err = m.UpdateQuantity(ctx, c.ID, c.Items[0].Key, 0)
	require.NoError(t, err)
	require.True(t, c.IsEmpty())
	require.True(t, c.Totals.Total.IsZero())
}

func TestManagerUsesCurrentTaxTable(t *testing.T) {
	p := product("40")
	m := newManager(t, stubProducts{products: map[uuid.UUID]catalog.Product{p.ID: p}}, stubCoupons{})
	m.Service = newService(usRate("10", false))
	m.Service.Tax.Rates = nil
	m.TaxRates = stubRates{{ID: uuid.New(), Country: "US", Rate: dec("5"), Priority: 1, Shipping: true}}
	ctx := context.Background()

	c, err := m.Open(ctx, nil, "taxed")
	require.NoError(t, err)
	_, err = m.SetAddresses(ctx, c.ID, billing(), nil)
	require.NoError(t, err)
	c, err = m.AddItem(ctx, c.ID, p.ID, nil, 1, nil)
	require.NoError(t, err)
	require.True(t, c.Totals.TaxTotal.Equal(dec("2.00")))

	rates := []shipping.Rate{{ID: "flat_rate:1", Cost: dec("10"), Taxable: true}}
	_, err = m.ChooseShippingRate(ctx, c.ID, rates, "missing:9")
	require.ErrorIs(t, err, shipping.ErrNoShippingMethodsAvailable)
	c, err = m.ChooseShippingRate(ctx, c.ID, rates, "flat_rate:1")
	require.NoError(t, err)
	require.True(t, c.Totals.ShippingTax.Equal(dec("0.50")))
	require.True(t, c.Totals.Total.Equal(dec("52.50")))
}

func TestManagerMergeGuest(t *testing.T) {
	p := product("10")
	m := newManager(t, stubProducts{products: map[uuid.UUID]catalog.Product{p.ID: p}}, stubCoupons{})
	ctx := context.Background()

	guest, err := m.Open(ctx, nil, "visitor")
	require.NoError(t, err)
	_, err = m.AddItem(ctx, guest.ID, p.ID, nil, 2, nil)
	require.NoError(t, err)

	customerID := uuid.New()
	merged, err := m.MergeGuest(ctx, "visitor", customerID)
	require.NoError(t, err)
	require.Equal(t, customerID, *merged.CustomerID)
	require.Equal(t, 2, merged.ItemCount())

	_, err = m.Store.FindBySession(ctx, "visitor")
	require.ErrorIs(t, err, cart.ErrNotFound)
}

type stubZones []shipping.Zone

func (s stubZones) Zones(context.Context) ([]shipping.Zone, error) { return s, nil }

func (s stubZones) ShippingClasses(context.Context) (map[string]string, error) { return nil, nil }

func TestManagerSelectShippingFromZones(t *testing.T) {
	p := product("10")
	m := newManager(t, stubProducts{products: map[uuid.UUID]catalog.Product{p.ID: p}}, stubCoupons{})
	m.Zones = stubZones{{
		ID:        uuid.New(),
		Name:      "United States",
		Locations: []shipping.Location{{Code: "US", Type: shipping.LocationCountry}},
		Methods: []shipping.MethodInstance{
			{InstanceID: 1, MethodID: shipping.MethodFlatRate, Enabled: true, Settings: shipping.Settings{Cost: dec("5")}},
			{InstanceID: 2, MethodID: shipping.MethodFreeShipping, Enabled: true, Settings: shipping.Settings{MinAmount: decPtr("100")}},
		},
	}}
	ctx := context.Background()

	c, err := m.Open(ctx, nil, "shipper")
	require.NoError(t, err)
	_, err = m.SetAddresses(ctx, c.ID, billing(), nil)
	require.NoError(t, err)
	_, err = m.AddItem(ctx, c.ID, p.ID, nil, 2, nil)
	require.NoError(t, err)

	rates, err := m.ShippingRates(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, rates, 1)
	require.Equal(t, "flat_rate:1", rates[0].ID)

	_, err = m.SelectShipping(ctx, c.ID, "free_shipping:2")
	require.ErrorIs(t, err, shipping.ErrNoShippingMethodsAvailable)

	c, err = m.SelectShipping(ctx, c.ID, "flat_rate:1")
	require.NoError(t, err)
	require.True(t, c.Totals.ShippingTotal.Equal(dec("5")))
	require.True(t, c.Totals.Total.Equal(dec("25.00")))
}

func TestManagerThrottlesCouponAttempts(t *testing.T) {
	m := newManager(t, stubProducts{}, stubCoupons{})
	m.Attempts = ratelimit.Window{Client: m.Store.R, Prefix: "test", Window: time.Minute, Max: 2, Now: func() time.Time { return fixedNow }}
	ctx := context.Background()

	c, err := m.Open(ctx, nil, "guesser")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = m.ApplyCoupon(ctx, c.ID, "GUESS", "")
		require.ErrorIs(t, err, coupon.ErrNotFound)
	}
	_, err = m.ApplyCoupon(ctx, c.ID, "GUESS", "")
	require.ErrorIs(t, err, cart.ErrTooManyAttempts)
}
