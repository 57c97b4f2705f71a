package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/shipping"
	"github.com/noah-isme/toko-engine/internal/tax"
)

// TaxRates reads and writes the tax table.
type TaxRates struct {
	DB DBTX
}

const (
	taxRateColumns       = `id, country, state, postcode, city, rate::text, name, priority, compound, shipping, class, sort_order`
	taxRateColumnsNoCast = `id, country, state, postcode, city, rate, name, priority, compound, shipping, class, sort_order`
)

// Rates implements tax.Repository.
func (r TaxRates) Rates(ctx context.Context) ([]tax.Rate, error) {
	if r.DB == nil {
		return nil, ErrNotConfigured
	}
	rows, err := r.DB.Query(ctx, `SELECT `+taxRateColumns+` FROM tax_rates ORDER BY priority, sort_order, id`)
	if err != nil {
		return nil, fmt.Errorf("repo: list tax rates: %w", err)
	}
	defer rows.Close()

	var out []tax.Rate
	for rows.Next() {
		var (
			rate tax.Rate
			pct  string
		)
		if err := rows.Scan(&rate.ID, &rate.Country, &rate.State, &rate.Postcode, &rate.City, &pct,
			&rate.Name, &rate.Priority, &rate.Compound, &rate.Shipping, &rate.Class, &rate.SortOrder); err != nil {
			return nil, err
		}
		if rate.Rate, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("repo: decode tax rate %s: %w", rate.ID, err)
		}
		out = append(out, rate)
	}
	return out, rows.Err()
}

// SaveRate upserts a tax rate.
func (r TaxRates) SaveRate(ctx context.Context, rate tax.Rate) error {
	if r.DB == nil {
		return ErrNotConfigured
	}
	_, err := r.DB.Exec(ctx, `INSERT INTO tax_rates (`+taxRateColumnsNoCast+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET country = EXCLUDED.country, state = EXCLUDED.state, postcode = EXCLUDED.postcode,
    city = EXCLUDED.city, rate = EXCLUDED.rate, name = EXCLUDED.name, priority = EXCLUDED.priority,
    compound = EXCLUDED.compound, shipping = EXCLUDED.shipping, class = EXCLUDED.class, sort_order = EXCLUDED.sort_order`,
		rate.ID, rate.Country, rate.State, rate.Postcode, rate.City, rate.Rate.String(), rate.Name,
		rate.Priority, rate.Compound, rate.Shipping, tax.NormaliseClass(rate.Class), rate.SortOrder)
	if err != nil {
		return fmt.Errorf("repo: save tax rate: %w", err)
	}
	return nil
}
// Zones reads and writes shipping zones and classes.
type Zones struct {
	DB DBTX
}

// Zones implements shipping.Repository. Zones come back in evaluation order.
func (r Zones) Zones(ctx context.Context) ([]shipping.Zone, error) {
	if r.DB == nil {
		return nil, ErrNotConfigured
	}
	rows, err := r.DB.Query(ctx, `SELECT id, name, zone_order, locations, methods FROM shipping_zones ORDER BY zone_order, name`)
	if err != nil {
		return nil, fmt.Errorf("repo: list shipping zones: %w", err)
	}
	defer rows.Close()

	var out []shipping.Zone
	for rows.Next() {
		var (
			z                  shipping.Zone
			locations, methods []byte
		)
		if err := rows.Scan(&z.ID, &z.Name, &z.Order, &locations, &methods); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(locations, &z.Locations); err != nil {
			return nil, fmt.Errorf("repo: decode zone %s locations: %w", z.Name, err)
		}
		if err := json.Unmarshal(methods, &z.Methods); err != nil {
			return nil, fmt.Errorf("repo: decode zone %s methods: %w", z.Name, err)
		}
		out = append(out, z)
	}
	return out, rows.Err()
}

// ShippingClasses returns slug to display name.
func (r Zones) ShippingClasses(ctx context.Context) (map[string]string, error) {
	if r.DB == nil {
		return nil, ErrNotConfigured
	}
	rows, err := r.DB.Query(ctx, `SELECT slug, name FROM shipping_classes`)
	if err != nil {
		return nil, fmt.Errorf("repo: list shipping classes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var slug, name string
		if err := rows.Scan(&slug, &name); err != nil {
			return nil, err
		}
		out[slug] = name
	}
	return out, rows.Err()
}

// SaveZone upserts a zone with its locations and method instances.
func (r Zones) SaveZone(ctx context.Context, z shipping.Zone) error {
	if r.DB == nil {
		return ErrNotConfigured
	}
	locations, err := json.Marshal(z.Locations)
	if err != nil {
		return fmt.Errorf("repo: encode zone locations: %w", err)
	}
	methods, err := json.Marshal(z.Methods)
	if err != nil {
		return fmt.Errorf("repo: encode zone methods: %w", err)
	}
	_, err = r.DB.Exec(ctx, `INSERT INTO shipping_zones (id, name, zone_order, locations, methods)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, zone_order = EXCLUDED.zone_order,
    locations = EXCLUDED.locations, methods = EXCLUDED.methods`, z.ID, z.Name, z.Order, locations, methods)
	if err != nil {
		return fmt.Errorf("repo: save shipping zone: %w", err)
	}
	return nil
}
