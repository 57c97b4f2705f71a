package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a product or variation does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Repository is the read contract the engine needs from the product store.
type Repository interface {
	GetProduct(ctx context.Context, id uuid.UUID) (Product, error)
	GetVariation(ctx context.Context, id uuid.UUID) (Variation, error)
}

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetJSON unmarshals a cached JSON payload into dst. It reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Delete drops the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.client == nil || len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// CachedRepository is a read-through cache in front of a Repository.
// Cache failures degrade to the underlying repository.
type CachedRepository struct {
	Repo  Repository
	Cache *Cache
}

// GetProduct returns the product, consulting the cache first.
func (r CachedRepository) GetProduct(ctx context.Context, id uuid.UUID) (Product, error) {
	if r.Repo == nil {
		return Product{}, errors.New("catalog: repository not configured")
	}
	key := productKey(id)
	var cached Product
	if ok, err := r.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	product, err := r.Repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	_ = r.Cache.SetJSON(ctx, key, product)
	return product, nil
}

// GetVariation returns the variation, consulting the cache first.
func (r CachedRepository) GetVariation(ctx context.Context, id uuid.UUID) (Variation, error) {
	if r.Repo == nil {
		return Variation{}, errors.New("catalog: repository not configured")
	}
	key := variationKey(id)
	var cached Variation
	if ok, err := r.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	variation, err := r.Repo.GetVariation(ctx, id)
	if err != nil {
		return Variation{}, err
	}
	_ = r.Cache.SetJSON(ctx, key, variation)
	return variation, nil
}

// Invalidate evicts a product and any of its variations from the cache.
func (r CachedRepository) Invalidate(ctx context.Context, productID uuid.UUID, variationIDs ...uuid.UUID) error {
	keys := []string{productKey(productID)}
	for _, id := range variationIDs {
		keys = append(keys, variationKey(id))
	}
	return r.Cache.Delete(ctx, keys...)
}

func productKey(id uuid.UUID) string {
	return fmt.Sprintf("catalog:product:%s", id)
}

func variationKey(id uuid.UUID) string {
	return fmt.Sprintf("catalog:variation:%s", id)
}
