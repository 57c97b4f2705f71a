package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-engine/internal/catalog"
	"github.com/noah-isme/toko-engine/internal/coupon"
	"github.com/noah-isme/toko-engine/internal/location"
	"github.com/noah-isme/toko-engine/internal/lock"
	"github.com/noah-isme/toko-engine/internal/ratelimit"
	"github.com/noah-isme/toko-engine/internal/shipping"
	"github.com/noah-isme/toko-engine/internal/tax"
)

// Coupons resolves codes and per-user usage counts.
type Coupons interface {
	Lookup(ctx context.Context, code string) (coupon.Coupon, error)
	UserUsage(ctx context.Context, couponID, userID uuid.UUID) (int, error)
}

// AttemptLimiter counts attempts per key.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// Manager runs cart operations against the store, holding the per-cart lock
// for the whole load, mutate and save cycle.
type Manager struct {
	Store    *Store
	Locker   lock.Locker
	Service  *Service
	Products catalog.Repository
	Coupons  Coupons
	TaxRates tax.Repository
	Zones    shipping.Repository
	// Attempts throttles coupon codes per cart; ratelimit.Window satisfies it.
	Attempts AttemptLimiter
	LockTTL  time.Duration
	Logger   zerolog.Logger
}

// Open returns the active cart for the customer or session, creating one when
// none exists.
func (m *Manager) Open(ctx context.Context, customerID *uuid.UUID, sessionKey string) (Cart, error) {
	var (
		c   Cart
		err error
	)
	switch {
	case customerID != nil:
		c, err = m.Store.FindByCustomer(ctx, *customerID)
	case sessionKey != "":
		c, err = m.Store.FindBySession(ctx, sessionKey)
	default:
		err = ErrNotFound
	}
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Cart{}, err
	}
	c = m.Service.New(customerID)
	if customerID == nil && sessionKey != "" {
		c.SessionKey = sessionKey
	}
	if err := m.Store.Save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Mutate applies fn to the stored cart under its lock, recalculates and saves.
func (m *Manager) Mutate(ctx context.Context, cartID uuid.UUID, fn func(ctx context.Context, svc *Service, c *Cart) error) (Cart, error) {
	var out Cart
	err := m.Locker.WithLock(ctx, m.Locker.CartKey(cartID), m.LockTTL, func(ctx context.Context) error {
		c, err := m.Store.Get(ctx, cartID)
		if err != nil {
			return err
		}
		svc, err := m.service(ctx)
		if err != nil {
			return err
		}
		if err := fn(ctx, svc, &c); err != nil {
			return err
		}
		svc.Recalculate(&c)
		if err := m.Store.Save(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// service returns a copy of the cart service bound to the current tax table.
func (m *Manager) service(ctx context.Context) (*Service, error) {
	svc := *m.Service
	if m.TaxRates != nil {
		rates, err := m.TaxRates.Rates(ctx)
		if err != nil {
			return nil, fmt.Errorf("cart: load tax rates: %w", err)
		}
		svc.Tax.Rates = rates
	}
	return &svc, nil
}

// AddItem loads the product (and variation) and adds qty units.
func (m *Manager) AddItem(ctx context.Context, cartID, productID uuid.UUID, variationID *uuid.UUID, qty int, meta map[string]any) (Cart, error) {
	return m.Mutate(ctx, cartID, func(ctx context.Context, svc *Service, c *Cart) error {
		p, err := m.Products.GetProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return ErrProductNotFound
			}
			return err
		}
		var v *catalog.Variation
		if variationID != nil {
			found, err := m.Products.GetVariation(ctx, *variationID)
			if err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					return ErrVariationNotFound
				}
				return err
			}
			v = &found
		}
		_, err = svc.Add(c, p, v, qty, meta)
		return err
	})
}

// UpdateQuantity changes a line quantity; qty <= 0 removes it.
func (m *Manager) UpdateQuantity(ctx context.Context, cartID uuid.UUID, key string, qty int) (Cart, error) {
	return m.Mutate(ctx, cartID, func(_ context.Context, svc *Service, c *Cart) error {
		return svc.UpdateQuantity(c, key, qty)
	})
}

// RemoveItem deletes a line.
func (m *Manager) RemoveItem(ctx context.Context, cartID uuid.UUID, key string) (Cart, error) {
	return m.Mutate(ctx, cartID, func(_ context.Context, svc *Service, c *Cart) error {
		return svc.Remove(c, key)
	})
}

// ApplyCoupon resolves and validates the code before attaching it.
func (m *Manager) ApplyCoupon(ctx context.Context, cartID uuid.UUID, code string, email string) (Cart, error) {
	return m.Mutate(ctx, cartID, func(ctx context.Context, svc *Service, c *Cart) error {
		if !svc.Settings.EnableCoupons {
			return ErrCouponsDisabled
		}
		if m.Coupons == nil {
			return errors.New("cart: coupon source not configured")
		}
		if m.Attempts != nil {
			d, err := m.Attempts.Allow(ctx, "coupon:"+c.ID.String())
			if err != nil {
				return err
			}
			if !d.Allowed {
				return ErrTooManyAttempts
			}
		}
		cp, err := m.Coupons.Lookup(ctx, code)
		if err != nil {
			return err
		}
		usage := 0
		if c.CustomerID != nil && cp.UsageLimitPerUser != nil {
			usage, err = m.Coupons.UserUsage(ctx, cp.ID, *c.CustomerID)
			if err != nil {
				return err
			}
		}
		applied, err := svc.ApplyCoupon(c, cp, email, usage)
		if err != nil {
			return err
		}
		m.Logger.Debug().Str("cart_id", c.ID.String()).Str("coupon", applied.Code).Msg("cart_coupon_applied")
		return nil
	})
}

// RemoveCoupon detaches a code.
func (m *Manager) RemoveCoupon(ctx context.Context, cartID uuid.UUID, code string) (Cart, error) {
	return m.Mutate(ctx, cartID, func(_ context.Context, svc *Service, c *Cart) error {
		return svc.RemoveCoupon(c, code)
	})
}

// AddFee appends a fee line.
func (m *Manager) AddFee(ctx context.Context, cartID uuid.UUID, fee Fee) (Cart, error) {
	return m.Mutate(ctx, cartID, func(_ context.Context, svc *Service, c *Cart) error {
		svc.AddFee(c, fee)
		return nil
	})
}

// SetAddresses stores the billing and optional shipping address.
func (m *Manager) SetAddresses(ctx context.Context, cartID uuid.UUID, billing, ship *location.Address) (Cart, error) {
	return m.Mutate(ctx, cartID, func(_ context.Context, _ *Service, c *Cart) error {
		c.BillingAddress = billing
		c.ShippingAddress = ship
		return nil
	})
}

// ChooseShippingRate selects one of the rates offered for the cart.
func (m *Manager) ChooseShippingRate(ctx context.Context, cartID uuid.UUID, rates []shipping.Rate, rateID string) (Cart, error) {
	return m.Mutate(ctx, cartID, func(_ context.Context, svc *Service, c *Cart) error {
		rate, ok := shipping.FindRate(rates, rateID)
		if !ok {
			return shipping.ErrNoShippingMethodsAvailable
		}
		svc.SetShippingRate(c, &rate)
		return nil
	})
}

// ShippingRates quotes the cart's package against the stored zone table.
func (m *Manager) ShippingRates(ctx context.Context, cartID uuid.UUID) ([]shipping.Rate, error) {
	if m.Zones == nil {
		return nil, errors.New("cart: shipping zones not configured")
	}
	c, err := m.Store.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if !c.NeedsShipping() {
		return nil, nil
	}
	zones, err := m.Zones.Zones(ctx)
	if err != nil {
		return nil, fmt.Errorf("cart: load shipping zones: %w", err)
	}
	return shipping.Calculator{Zones: zones}.Rates(c.Package())
}

// SelectShipping quotes the cart and selects rateID from the fresh quote.
func (m *Manager) SelectShipping(ctx context.Context, cartID uuid.UUID, rateID string) (Cart, error) {
	rates, err := m.ShippingRates(ctx, cartID)
	if err != nil {
		return Cart{}, err
	}
	return m.ChooseShippingRate(ctx, cartID, rates, rateID)
}

// Clear empties the cart.
func (m *Manager) Clear(ctx context.Context, cartID uuid.UUID) (Cart, error) {
	return m.Mutate(ctx, cartID, func(_ context.Context, svc *Service, c *Cart) error {
		svc.Clear(c)
		return nil
	})
}

// MergeGuest folds the session's guest cart into the customer's cart and
// deletes the guest cart.
func (m *Manager) MergeGuest(ctx context.Context, sessionKey string, customerID uuid.UUID) (Cart, error) {
	guest, err := m.Store.FindBySession(ctx, sessionKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return m.Open(ctx, &customerID, "")
		}
		return Cart{}, err
	}
	target, err := m.Open(ctx, &customerID, "")
	if err != nil {
		return Cart{}, err
	}
	merged, err := m.Mutate(ctx, target.ID, func(_ context.Context, svc *Service, c *Cart) error {
		svc.Merge(c, guest)
		return nil
	})
	if err != nil {
		return Cart{}, err
	}
	if err := m.Store.Delete(ctx, guest); err != nil {
		m.Logger.Warn().Err(err).Str("cart_id", guest.ID.String()).Msg("guest_cart_delete_failed")
	}
	return merged, nil
}
