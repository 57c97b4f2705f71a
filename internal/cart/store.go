package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store persists carts as JSON documents in Redis with secondary indexes by
// customer and session key. Entries expire with the cart.
type Store struct {
	R      *redis.Client
	Prefix string
	Now    func() time.Time
}

func (s *Store) prefix() string {
	p := strings.TrimSpace(s.Prefix)
	if p == "" {
		return "toko"
	}
	return p
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Store) cartKey(id uuid.UUID) string {
	return s.prefix() + ":cart:" + id.String()
}

func (s *Store) sessionKey(key string) string {
	return s.prefix() + ":cart:session:" + key
}

func (s *Store) customerKey(id uuid.UUID) string {
	return s.prefix() + ":cart:customer:" + id.String()
}

// Save writes the cart and its owner index.
func (s *Store) Save(ctx context.Context, c Cart) error {
	if s == nil || s.R == nil {
		return errors.New("cart: store not configured")
	}
	if err := ValidateOwner(c); err != nil {
		return err
	}
	ttl := c.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Minute
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("cart: encode: %w", err)
	}
	pipe := s.R.TxPipeline()
	pipe.Set(ctx, s.cartKey(c.ID), data, ttl)
	if c.CustomerID != nil {
		pipe.Set(ctx, s.customerKey(*c.CustomerID), c.ID.String(), ttl)
	} else {
		pipe.Set(ctx, s.sessionKey(c.SessionKey), c.ID.String(), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cart: save: %w", err)
	}
	return nil
}

// Get loads a cart by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Cart, error) {
	if s == nil || s.R == nil {
		return Cart{}, errors.New("cart: store not configured")
	}
	data, err := s.R.Get(ctx, s.cartKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("cart: load: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, fmt.Errorf("cart: decode: %w", err)
	}
	return c, nil
}

// FindByCustomer returns the active cart of a customer.
func (s *Store) FindByCustomer(ctx context.Context, customerID uuid.UUID) (Cart, error) {
	return s.findByIndex(ctx, s.customerKey(customerID))
}

// FindBySession returns the active guest cart for a session key.
func (s *Store) FindBySession(ctx context.Context, sessionKey string) (Cart, error) {
	if strings.TrimSpace(sessionKey) == "" {
		return Cart{}, ErrNotFound
	}
	return s.findByIndex(ctx, s.sessionKey(sessionKey))
}

func (s *Store) findByIndex(ctx context.Context, key string) (Cart, error) {
	if s == nil || s.R == nil {
		return Cart{}, errors.New("cart: store not configured")
	}
	raw, err := s.R.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, ErrNotFound
		}
		return Cart{}, fmt.Errorf("cart: lookup: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Cart{}, fmt.Errorf("cart: corrupt index %s: %w", key, err)
	}
	return s.Get(ctx, id)
}

// Delete removes the cart and its index.
func (s *Store) Delete(ctx context.Context, c Cart) error {
	if s == nil || s.R == nil {
		return errors.New("cart: store not configured")
	}
	keys := []string{s.cartKey(c.ID)}
	if c.CustomerID != nil {
		keys = append(keys, s.customerKey(*c.CustomerID))
	}
	if c.SessionKey != "" {
		keys = append(keys, s.sessionKey(c.SessionKey))
	}
	return s.R.Del(ctx, keys...).Err()
}
