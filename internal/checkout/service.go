package checkout

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/toko-engine/internal/cart"
	"github.com/noah-isme/toko-engine/internal/catalog"
	"github.com/noah-isme/toko-engine/internal/events"
	"github.com/noah-isme/toko-engine/internal/inventory"
	"github.com/noah-isme/toko-engine/internal/obs"
	"github.com/noah-isme/toko-engine/internal/order"
	"github.com/noah-isme/toko-engine/internal/shipping"
	"github.com/noah-isme/toko-engine/internal/tax"
)

// Orders stores newly created orders.
type Orders interface {
	Create(ctx context.Context, o order.Order) error
}

// StockHolder reserves stock for an unpaid order. inventory.HoldScheduler
// satisfies it.
type StockHolder interface {
	Hold(ctx context.Context, orderID uuid.UUID, lines []inventory.ReservationLine) error
}

// StockReleaser drops a hold. inventory.Reserver satisfies it.
type StockReleaser interface {
	Release(ctx context.Context, orderID uuid.UUID) error
}

// CouponRecorder records redemptions. coupon.Service satisfies it.
type CouponRecorder interface {
	RecordUsage(ctx context.Context, code string, orderID uuid.UUID, userID *uuid.UUID, email string, amount decimal.Decimal) error
}

// maxNumberAttempts bounds order-number regeneration after collisions.
const maxNumberAttempts = 5

// Service turns a cart into a pending order.
type Service struct {
	Settings  Settings
	Validator *validator.Validate
	// Cart, when set, recalculates the cart against the submitted addresses.
	Cart *cart.Service
	// TaxRates, when set, replaces the cart service's rates with the current table.
	TaxRates tax.Repository
	// Zones, when set, re-quotes the chosen shipping rate against the
	// recalculated cart; a rate no longer offered is dropped.
	Zones     shipping.Repository
	Products  catalog.Repository
	Inventory inventory.Checker
	Numbers   NumberGenerator
	Orders    Orders
	Holds     StockHolder
	Releaser  StockReleaser
	Coupons   CouponRecorder
	Events    events.Emitter
	Now       func() time.Time
	Logger    zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) numbers() NumberGenerator {
	if s.Numbers != nil {
		return s.Numbers
	}
	return RandomNumbers{}
}

// Validate runs the checkout checks without creating anything.
func (s *Service) Validate(c cart.Cart, req Request) error {
	if errs := Validate(s.Validator, c, req, s.Settings.TermsPage); errs != nil {
		return errs
	}
	return nil
}

// CreateOrder validates, checks stock, snapshots the cart, holds stock and
// stores the order. Coupon usage and the order.created event follow the
// insert; their failures are logged rather than returned.
func (s *Service) CreateOrder(ctx context.Context, c cart.Cart, req Request) (order.Order, error) {
	ctx, span := obs.Tracer("checkout").Start(ctx, "checkout.create_order", trace.WithAttributes(
		attribute.String("cart.id", c.ID.String()),
		attribute.Int("cart.items", len(c.Items)),
	))
	o, err := s.createOrder(ctx, c, req)
	obs.EndSpan(span, err)
	switch {
	case err == nil:
		obs.Inc(obs.CheckoutTotal, "success")
	case errors.As(err, new(ValidationErrors)):
		obs.Inc(obs.CheckoutTotal, "invalid")
	default:
		obs.Inc(obs.CheckoutTotal, "error")
	}
	return o, err
}

func (s *Service) createOrder(ctx context.Context, c cart.Cart, req Request) (order.Order, error) {
	if s.Orders == nil {
		return order.Order{}, errors.New("checkout: order repository not configured")
	}
	c, err := s.prepare(ctx, c, req)
	if err != nil {
		return order.Order{}, err
	}
	if errs := Validate(s.Validator, c, req, s.Settings.TermsPage); errs != nil {
		return order.Order{}, errs
	}
	holdLines, err := s.checkStock(ctx, c)
	if err != nil {
		return order.Order{}, err
	}

	now := s.now()
	number, err := s.numbers().Next(ctx, now)
	if err != nil {
		return order.Order{}, err
	}
	o := BuildOrder(c, req, number, s.Settings, now)

	held := false
	if s.Holds != nil && len(holdLines) > 0 {
		if err := s.Holds.Hold(ctx, o.ID, holdLines); err != nil {
			obs.Inc(obs.StockHoldsTotal, "rejected")
			if errors.Is(err, inventory.ErrReservationFailed) {
				return order.Order{}, ValidationErrors{{Kind: KindStock, Reason: "Not enough stock to complete the order"}}
			}
			return order.Order{}, fmt.Errorf("checkout: hold stock: %w", err)
		}
		obs.Inc(obs.StockHoldsTotal, "held")
		held = true
	}

	err = s.Orders.Create(ctx, o)
	for attempt := 1; errors.Is(err, order.ErrDuplicateNumber) && attempt < maxNumberAttempts; attempt++ {
		if o.Number, err = s.numbers().Next(ctx, now); err != nil {
			break
		}
		err = s.Orders.Create(ctx, o)
	}
	if err != nil {
		if held && s.Releaser != nil {
			if rerr := s.Releaser.Release(ctx, o.ID); rerr != nil {
				s.Logger.Warn().Err(rerr).Str("order_number", o.Number).Msg("stock_hold_release_failed")
			}
		}
		return order.Order{}, fmt.Errorf("checkout: create order: %w", err)
	}

	s.recordCoupons(ctx, o)
	s.Logger.Info().
		Str("order_number", o.Number).
		Str("total", o.Totals.Total.String()).
		Int("items", len(o.Items)).
		Msg("order_created")
	if s.Events != nil {
		payload := map[string]any{
			"number":   o.Number,
			"status":   o.Status,
			"currency": o.Currency,
			"total":    o.Totals.Total.StringFixed(o.Scale),
			"email":    o.Billing.Email,
			"coupons":  o.CouponCodes(),
		}
		if _, err := s.Events.Emit(ctx, events.TopicOrderCreated, o.ID, payload); err != nil {
			s.Logger.Warn().Err(err).Str("order_number", o.Number).Msg("order_event_failed")
		}
	}
	return o, nil
}

// prepare copies the cart and, when a cart service is configured, recomputes
// it with the submitted addresses so taxes follow the checkout location.
func (s *Service) prepare(ctx context.Context, c cart.Cart, req Request) (cart.Cart, error) {
	if s.Cart == nil {
		return c, nil
	}
	svc := *s.Cart
	if s.TaxRates != nil {
		rates, err := s.TaxRates.Rates(ctx)
		if err != nil {
			return cart.Cart{}, fmt.Errorf("checkout: load tax rates: %w", err)
		}
		svc.Tax.Rates = rates
	}
	c.Items = slices.Clone(c.Items)
	c.Coupons = slices.Clone(c.Coupons)
	c.Fees = slices.Clone(c.Fees)
	billing := req.BillingAddress
	c.BillingAddress = &billing
	c.ShippingAddress = nil
	if req.ShipToDifferentAddress && req.ShippingAddress != nil {
		ship := *req.ShippingAddress
		c.ShippingAddress = &ship
	}
	svc.Recalculate(&c)
	if err := s.requote(ctx, &svc, &c); err != nil {
		return cart.Cart{}, err
	}
	return c, nil
}

// requote replaces the chosen rate with a fresh quote for the same id, or
// clears it when the zone no longer offers it so validation reports a
// missing shipping method.
func (s *Service) requote(ctx context.Context, svc *cart.Service, c *cart.Cart) error {
	if s.Zones == nil || c.ShippingRate == nil || !c.NeedsShipping() {
		return nil
	}
	zones, err := s.Zones.Zones(ctx)
	if err != nil {
		return fmt.Errorf("checkout: load shipping zones: %w", err)
	}
	rates, err := shipping.Calculator{Zones: zones}.Rates(c.Package())
	fresh, ok := shipping.FindRate(rates, c.ShippingRate.ID)
	if err != nil || !ok {
		s.Logger.Debug().Str("rate_id", c.ShippingRate.ID).Msg("shipping_rate_withdrawn")
		c.ShippingRate = nil
	} else {
		c.ShippingRate = &fresh
	}
	svc.Recalculate(c)
	return nil
}

// checkStock re-reads every line's product and verifies availability. It
// returns the reservation lines for stock-managed products.
func (s *Service) checkStock(ctx context.Context, c cart.Cart) ([]inventory.ReservationLine, error) {
	if s.Products == nil {
		return nil, nil
	}
	var (
		lines []inventory.Line
		holds []inventory.ReservationLine
		errs  ValidationErrors
	)
	for _, it := range c.Items {
		p, err := s.Products.GetProduct(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				errs = append(errs, &Error{Kind: KindStock, ProductID: it.ProductID, Reason: fmt.Sprintf("%s is no longer available", it.Name)})
				continue
			}
			return nil, fmt.Errorf("checkout: load product: %w", err)
		}
		stockID := it.ProductID
		if it.VariationID != nil {
			v, err := s.Products.GetVariation(ctx, *it.VariationID)
			if err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					errs = append(errs, &Error{Kind: KindStock, ProductID: it.ProductID, Reason: fmt.Sprintf("%s is no longer available", it.Name)})
					continue
				}
				return nil, fmt.Errorf("checkout: load variation: %w", err)
			}
			if v.ManageStock {
				stockID = v.ID
			}
			p = v.Resolve(p)
		}
		lines = append(lines, inventory.Line{ProductID: it.ProductID, VariationID: it.VariationID, Product: p, Quantity: it.Quantity})
		if s.Inventory.Settings.ManageStock && p.ManageStock {
			holds = append(holds, inventory.ReservationLine{StockID: stockID, Quantity: it.Quantity})
		}
	}
	results, _ := s.Inventory.Reserve(lines)
	for _, r := range results {
		var se *inventory.StockError
		if errors.As(r.Err, &se) {
			errs = append(errs, &Error{Kind: KindStock, ProductID: se.ProductID, Reason: se.Message})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return holds, nil
}

func (s *Service) recordCoupons(ctx context.Context, o order.Order) {
	if s.Coupons == nil {
		return
	}
	for _, cl := range o.Coupons {
		if err := s.Coupons.RecordUsage(ctx, cl.Code, o.ID, o.CustomerID, o.Billing.Email, cl.Discount); err != nil {
			s.Logger.Warn().Err(err).Str("code", cl.Code).Str("order_number", o.Number).Msg("coupon_usage_failed")
			continue
		}
		obs.Inc(obs.CouponRedemptionsTotal, cl.DiscountType)
	}
}
