package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/catalog"
	"github.com/noah-isme/toko-engine/internal/config"
	"github.com/noah-isme/toko-engine/internal/coupon"
	"github.com/noah-isme/toko-engine/internal/inventory"
	"github.com/noah-isme/toko-engine/internal/obs"
	"github.com/noah-isme/toko-engine/internal/repo"
	"github.com/noah-isme/toko-engine/internal/shipping"
	"github.com/noah-isme/toko-engine/internal/tax"
)

// seedNamespace keeps seeded ids stable so reruns upsert instead of duplicating.
var seedNamespace = uuid.MustParse("6f1c1f4e-3b57-4a43-9d7e-2f1d0f0a7c11")

func seedID(name string) uuid.UUID {
	return uuid.NewSHA1(seedNamespace, []byte(name))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "seeder").Logger()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := repo.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	now := time.Now().UTC()
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"tax rates", func(ctx context.Context) error { return seedTaxRates(ctx, repo.TaxRates{DB: pool}) }},
		{"shipping zones", func(ctx context.Context) error { return seedZones(ctx, repo.Zones{DB: pool}) }},
		{"catalog", func(ctx context.Context) error {
			return seedCatalog(ctx, repo.Products{DB: pool}, inventory.RedisReserver{R: rdb, Prefix: cfg.QueuePrefix}, now)
		}},
		{"coupons", func(ctx context.Context) error { return seedCoupons(ctx, repo.Coupons{DB: pool}, now) }},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			logger.Fatal().Err(err).Str("step", step.name).Msg("seed failed")
		}
		logger.Info().Str("step", step.name).Msg("seeded")
	}
	logSummary(logger, cfg)
}

func seedTaxRates(ctx context.Context, rates repo.TaxRates) error {
	for i, r := range []tax.Rate{
		{Country: "US", State: "CA", Rate: decimal.RequireFromString("7.2500"), Name: "CA State Tax", Priority: 1, Shipping: true},
		{Country: "US", State: "CA", Postcode: "900*", Rate: decimal.RequireFromString("2.2500"), Name: "LA County", Priority: 2},
		{Country: "GB", Rate: decimal.RequireFromString("20.0000"), Name: "VAT", Priority: 1, Shipping: true},
		{Country: "GB", Rate: decimal.RequireFromString("5.0000"), Name: "VAT", Priority: 1, Shipping: true, Class: "reduced-rate"},
	} {
		r.ID = seedID("tax-rate-" + r.Country + r.State + r.Postcode + r.Class)
		r.SortOrder = i
		if err := rates.SaveRate(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func seedZones(ctx context.Context, zones repo.Zones) error {
	freeOver := decimal.RequireFromString("50.00")
	domestic := shipping.Zone{
		ID:        seedID("zone-us"),
		Name:      "United States",
		Order:     1,
		Locations: []shipping.Location{{Code: "US", Type: shipping.LocationCountry}},
		Methods: []shipping.MethodInstance{
			{InstanceID: 1, MethodID: shipping.MethodFlatRate, Enabled: true, Order: 1, Settings: shipping.Settings{
				Cost:       decimal.RequireFromString("5.00"),
				ClassCosts: map[string]decimal.Decimal{"bulky": decimal.RequireFromString("10.00")},
				CalcType:   shipping.CalcPerClass,
				TaxStatus:  shipping.TaxTaxable,
			}},
			{InstanceID: 2, MethodID: shipping.MethodFreeShipping, Enabled: true, Order: 2, Settings: shipping.Settings{MinAmount: &freeOver}},
			{InstanceID: 3, MethodID: shipping.MethodLocalPickup, Enabled: true, Order: 3, Settings: shipping.Settings{PickupLocation: "Main warehouse"}},
		},
	}
	world := shipping.Zone{
		ID:    seedID("zone-world"),
		Name:  "Rest of world",
		Order: 99,
		Methods: []shipping.MethodInstance{
			{InstanceID: 4, MethodID: shipping.MethodFlatRate, Enabled: true, Order: 1, Settings: shipping.Settings{
				Cost:      decimal.RequireFromString("20.00"),
				TaxStatus: shipping.TaxNone,
			}},
		},
	}
	for _, z := range []shipping.Zone{domestic, world} {
		if err := zones.SaveZone(ctx, z); err != nil {
			return err
		}
	}
	return nil
}

func seedCatalog(ctx context.Context, products repo.Products, stock inventory.RedisReserver, now time.Time) error {
	price := func(v string) *decimal.Decimal {
		d := decimal.RequireFromString(v)
		return &d
	}
	qty := func(n int) *int { return &n }
	items := []catalog.Product{
		{Name: "Ceramic Mug", Slug: "ceramic-mug", SKU: "MUG-01", RegularPrice: price("12.00"), ManageStock: true, StockQuantity: qty(40)},
		{Name: "Espresso Beans", Slug: "espresso-beans", SKU: "BEAN-1KG", RegularPrice: price("24.00"), SalePrice: price("19.50"), ManageStock: true, StockQuantity: qty(15), TaxClass: "reduced-rate"},
		{Name: "Gift Card", Slug: "gift-card", SKU: "GIFT-25", RegularPrice: price("25.00"), Virtual: true, Type: catalog.TypeVirtual},
		{Name: "Standing Desk", Slug: "standing-desk", SKU: "DESK-XL", RegularPrice: price("480.00"), ManageStock: true, StockQuantity: qty(3), ShippingClass: "bulky", Backorders: catalog.BackordersNotify},
	}
	for _, p := range items {
		p.ID = seedID("product-" + p.Slug)
		if p.Type == "" {
			p.Type = catalog.TypeSimple
		}
		p.Status = catalog.StatusPublish
		p.TaxStatus = catalog.TaxTaxable
		p.StockStatus = catalog.InStock
		if p.Backorders == "" {
			p.Backorders = catalog.BackordersNo
		}
		p.CreatedAt, p.UpdatedAt = now, now
		if err := products.SaveProduct(ctx, p); err != nil {
			return err
		}
		if p.ManageStock && p.StockQuantity != nil {
			if err := stock.SetStock(ctx, p.ID, *p.StockQuantity); err != nil {
				return err
			}
		}
	}
	return nil
}

func seedCoupons(ctx context.Context, coupons repo.Coupons, now time.Time) error {
	minSpend := decimal.RequireFromString("30.00")
	limit := 1
	for _, c := range []coupon.Coupon{
		{Code: "WELCOME10", Description: "10% off the first order", DiscountType: coupon.Percent, Amount: decimal.NewFromInt(10), UsageLimitPerUser: &limit},
		{Code: "SHIPFREE", Description: "Free shipping over 30", DiscountType: coupon.FixedCart, Amount: decimal.Zero, FreeShipping: true, MinimumSpend: &minSpend},
	} {
		c.ID = seedID("coupon-" + c.Code)
		c.Status = coupon.StatusPublish
		c.CreatedAt, c.UpdatedAt = now, now
		if err := coupons.SaveCoupon(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func logSummary(logger zerolog.Logger, cfg *config.Config) {
	logger.Info().
		Str("currency", cfg.Store.Currency).
		Bool("prices_include_tax", cfg.Store.PricesIncludeTax).
		Msg("seeding completed")
}
