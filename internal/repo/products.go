package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/toko-engine/internal/catalog"
)

// Products stores catalog entries as JSONB documents keyed by id.
type Products struct {
	DB DBTX
}

// GetProduct implements catalog.Repository.
func (r Products) GetProduct(ctx context.Context, id uuid.UUID) (catalog.Product, error) {
	if r.DB == nil {
		return catalog.Product{}, ErrNotConfigured
	}
	var p catalog.Product
	err := scanJSON(r.DB.QueryRow(ctx, `SELECT data FROM products WHERE id = $1`, id), &p)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Product{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Product{}, fmt.Errorf("repo: get product %s: %w", id, err)
	}
	return p, nil
}

// GetVariation implements catalog.Repository.
func (r Products) GetVariation(ctx context.Context, id uuid.UUID) (catalog.Variation, error) {
	if r.DB == nil {
		return catalog.Variation{}, ErrNotConfigured
	}
	var v catalog.Variation
	err := scanJSON(r.DB.QueryRow(ctx, `SELECT data FROM product_variations WHERE id = $1`, id), &v)
	if errors.Is(err, pgx.ErrNoRows) {
		return catalog.Variation{}, catalog.ErrNotFound
	}
	if err != nil {
		return catalog.Variation{}, fmt.Errorf("repo: get variation %s: %w", id, err)
	}
	return v, nil
}

// Variations lists the variations of a variable product.
func (r Products) Variations(ctx context.Context, productID uuid.UUID) ([]catalog.Variation, error) {
	if r.DB == nil {
		return nil, ErrNotConfigured
	}
	rows, err := r.DB.Query(ctx, `SELECT data FROM product_variations WHERE product_id = $1 ORDER BY id`, productID)
	if err != nil {
		return nil, fmt.Errorf("repo: list variations: %w", err)
	}
	defer rows.Close()

	var out []catalog.Variation
	for rows.Next() {
		var v catalog.Variation
		if err := scanJSON(rows, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveProduct upserts a product document.
func (r Products) SaveProduct(ctx context.Context, p catalog.Product) error {
	if r.DB == nil {
		return ErrNotConfigured
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("repo: encode product: %w", err)
	}
	_, err = r.DB.Exec(ctx, `INSERT INTO products (id, slug, sku, status, data)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET slug = EXCLUDED.slug, sku = EXCLUDED.sku, status = EXCLUDED.status,
    data = EXCLUDED.data, updated_at = now()`, p.ID, p.Slug, p.SKU, string(p.Status), data)
	if err != nil {
		return fmt.Errorf("repo: save product: %w", err)
	}
	return nil
}

// SaveVariation upserts a variation document.
func (r Products) SaveVariation(ctx context.Context, v catalog.Variation) error {
	if r.DB == nil {
		return ErrNotConfigured
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("repo: encode variation: %w", err)
	}
	_, err = r.DB.Exec(ctx, `INSERT INTO product_variations (id, product_id, data)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET product_id = EXCLUDED.product_id, data = EXCLUDED.data`, v.ID, v.ProductID, data)
	if err != nil {
		return fmt.Errorf("repo: save variation: %w", err)
	}
	return nil
}

func scanJSON(row pgx.Row, dst any) error {
	var data []byte
	if err := row.Scan(&data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("repo: decode document: %w", err)
	}
	return nil
}
