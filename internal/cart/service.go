package cart

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/catalog"
	"github.com/noah-isme/toko-engine/internal/coupon"
	"github.com/noah-isme/toko-engine/internal/inventory"
	"github.com/noah-isme/toko-engine/internal/money"
	"github.com/noah-isme/toko-engine/internal/pricing"
	"github.com/noah-isme/toko-engine/internal/shipping"
	"github.com/noah-isme/toko-engine/internal/tax"
)

// Settings is the narrow cart configuration.
type Settings struct {
	EnableCoupons bool
	TTL           time.Duration
	Formatting    money.Profile
}

// Service implements the cart operations over in-memory values. It never
// performs I/O; callers serialise mutations per cart.
type Service struct {
	Settings  Settings
	Inventory inventory.Checker
	Tax       tax.Calculator
	Now       func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.Settings.TTL <= 0 {
		return DefaultTTL
	}
	return s.Settings.TTL
}

func (s *Service) scale() int32 {
	return s.Settings.Formatting.Scale()
}

// New creates an empty cart owned by the customer, or by a fresh session key
// when customerID is nil.
func (s *Service) New(customerID *uuid.UUID) Cart {
	now := s.now()
	c := Cart{
		ID:        uuid.Must(uuid.NewV7()),
		Items:     []Item{},
		Coupons:   []AppliedCoupon{},
		Fees:      []Fee{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl()),
	}
	if customerID != nil {
		id := *customerID
		c.CustomerID = &id
	} else {
		c.SessionKey = NewSessionKey()
	}
	s.Recalculate(&c)
	return c
}

// NewSessionKey returns an opaque guest identifier.
func NewSessionKey() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateOwner enforces that exactly one owner is set.
func ValidateOwner(c Cart) error {
	hasCustomer := c.CustomerID != nil && *c.CustomerID != uuid.Nil
	hasSession := strings.TrimSpace(c.SessionKey) != ""
	if hasCustomer == hasSession {
		return ErrInvalidOwner
	}
	return nil
}

// Add puts qty units of the product (or one of its variations) into the cart.
// Adding an existing line increments its quantity.
func (s *Service) Add(c *Cart, p catalog.Product, v *catalog.Variation, qty int, meta map[string]any) (Item, error) {
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	now := s.now()
	resolved := p
	var variationID *uuid.UUID
	if v != nil {
		if v.ProductID != p.ID {
			return Item{}, ErrVariationNotFound
		}
		resolved = v.Resolve(p)
		id := v.ID
		variationID = &id
	}
	if !pricing.IsPurchasable(resolved, now) {
		return Item{}, ErrProductNotPurchasable
	}

	key := ItemKey(p.ID, variationID, meta)
	newQty := qty
	idx := c.FindItem(key)
	if idx >= 0 {
		newQty = c.Items[idx].Quantity + qty
	}
	if resolved.SoldIndividually && newQty > 1 {
		return Item{}, &Error{Kind: KindMaxQuantityExceeded, Max: 1}
	}
	if err := s.checkStock(resolved, newQty); err != nil {
		return Item{}, err
	}

	if idx >= 0 {
		c.Items[idx].Quantity = newQty
	} else {
		c.Items = append(c.Items, s.snapshot(key, resolved, v, variationID, qty, meta, now))
		idx = len(c.Items) - 1
	}
	s.touch(c)
	return c.Items[idx], nil
}

func (s *Service) snapshot(key string, p catalog.Product, v *catalog.Variation, variationID *uuid.UUID, qty int, meta map[string]any, now time.Time) Item {
	unit := decimal.Zero
	if price := pricing.EffectivePrice(p, now); price != nil {
		unit = *price
	}
	regular := unit
	if p.RegularPrice != nil {
		regular = *p.RegularPrice
	}
	weight := decimal.Zero
	if p.Weight != nil {
		weight = *p.Weight
	}
	item := Item{
		Key:              key,
		ProductID:        p.ID,
		VariationID:      variationID,
		Quantity:         qty,
		Name:             p.Name,
		SKU:              p.SKU,
		BasePrice:        unit,
		Tiers:            p.Tiers,
		UnitPrice:        unit,
		RegularPrice:     regular,
		Taxable:          p.IsTaxable(),
		TaxClass:         tax.NormaliseClass(p.TaxClass),
		Virtual:          p.IsVirtual(),
		SoldIndividually: p.SoldIndividually,
		Weight:           weight,
		ShippingClass:    p.ShippingClass,
		CategoryIDs:      p.CategoryIDs,
		Meta:             meta,
		AddedAt:          now,
	}
	if v != nil {
		item.Attributes = v.Attributes
	}
	return item
}

func (s *Service) checkStock(p catalog.Product, qty int) error {
	res := s.Inventory.Check(p, qty)
	if res.IsAvailable {
		return nil
	}
	available := 0
	if res.AvailableQuantity != nil {
		available = *res.AvailableQuantity
	}
	return &Error{Kind: KindInsufficientStock, Available: available, Requested: qty}
}

// UpdateQuantity sets the quantity of a line; qty <= 0 removes it.
func (s *Service) UpdateQuantity(c *Cart, key string, qty int) error {
	if qty <= 0 {
		return s.Remove(c, key)
	}
	idx := c.FindItem(key)
	if idx < 0 {
		return ErrItemNotInCart
	}
	if c.Items[idx].SoldIndividually && qty > 1 {
		return &Error{Kind: KindMaxQuantityExceeded, Max: 1}
	}
	c.Items[idx].Quantity = qty
	s.touch(c)
	return nil
}

// Remove deletes a line by key.
func (s *Service) Remove(c *Cart, key string) error {
	idx := c.FindItem(key)
	if idx < 0 {
		return ErrItemNotInCart
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	s.touch(c)
	return nil
}

// ApplyCoupon validates cp against the cart and appends it. userUsage is the
// number of previous redemptions by the cart's customer.
func (s *Service) ApplyCoupon(c *Cart, cp coupon.Coupon, email string, userUsage int) (AppliedCoupon, error) {
	if !s.Settings.EnableCoupons {
		return AppliedCoupon{}, ErrCouponsDisabled
	}
	s.Recalculate(c)
	if email == "" && c.BillingAddress != nil {
		email = c.BillingAddress.Email
	}
	cc := c.CouponContext(email, c.CustomerID)
	cc.UserUsage = userUsage
	if err := cp.Validate(cc, s.now()); err != nil {
		return AppliedCoupon{}, err
	}
	applied := AppliedCoupon{
		Code:          cp.Code,
		CouponID:      cp.ID,
		DiscountType:  cp.DiscountType,
		Amount:        cp.Amount,
		FreeShipping:  cp.FreeShipping,
		IndividualUse: cp.IndividualUse,
		Rule:          cp,
	}
	c.Coupons = append(c.Coupons, applied)
	s.touch(c)
	return c.Coupons[len(c.Coupons)-1], nil
}

// RemoveCoupon drops an applied coupon, matching codes case-insensitively.
func (s *Service) RemoveCoupon(c *Cart, code string) error {
	for i, ac := range c.Coupons {
		if strings.EqualFold(ac.Code, strings.TrimSpace(code)) {
			c.Coupons = append(c.Coupons[:i], c.Coupons[i+1:]...)
			s.touch(c)
			return nil
		}
	}
	return ErrCouponNotInCart
}

// AddFee appends a fee line. Fees without an id get one.
func (s *Service) AddFee(c *Cart, fee Fee) Fee {
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	fee.TaxClass = tax.NormaliseClass(fee.TaxClass)
	c.Fees = append(c.Fees, fee)
	s.touch(c)
	return fee
}

// SetShippingRate records the chosen rate; nil clears it.
func (s *Service) SetShippingRate(c *Cart, rate *shipping.Rate) {
	c.ShippingRate = rate
	s.touch(c)
}

// Clear empties lines, coupons, fees and the chosen rate.
func (s *Service) Clear(c *Cart) {
	c.Items = []Item{}
	c.Coupons = []AppliedCoupon{}
	c.Fees = []Fee{}
	c.ShippingRate = nil
	s.touch(c)
}

// Merge moves the guest cart's lines and coupons into the customer cart.
// Quantities of matching lines add up; sold-individually lines stay at one.
// Coupons that no longer validate are dropped.
func (s *Service) Merge(customer *Cart, guest Cart) {
	for _, it := range guest.Items {
		idx := customer.FindItem(it.Key)
		if idx < 0 {
			customer.Items = append(customer.Items, it)
			continue
		}
		qty := customer.Items[idx].Quantity + it.Quantity
		if customer.Items[idx].SoldIndividually {
			qty = 1
		}
		customer.Items[idx].Quantity = qty
	}
	s.Recalculate(customer)
	if s.Settings.EnableCoupons {
		for _, ac := range guest.Coupons {
			if customer.HasCoupon(ac.Code) {
				continue
			}
			cc := customer.CouponContext("", customer.CustomerID)
			if err := ac.Rule.Validate(cc, s.now()); err != nil {
				continue
			}
			customer.Coupons = append(customer.Coupons, ac)
		}
	}
	s.touch(customer)
}

func (s *Service) touch(c *Cart) {
	now := s.now()
	c.UpdatedAt = now
	c.ExpiresAt = now.Add(s.ttl())
	s.Recalculate(c)
}

// Recalculate recomputes line subtotals, coupon discounts, fees, taxes and the
// grand total. An empty cart yields zero totals.
func (s *Service) Recalculate(c *Cart) {
	scale := s.scale()
	t := zeroTotals()
	if c.IsEmpty() {
		for i := range c.Coupons {
			c.Coupons[i].Discount = decimal.Zero
		}
		c.Totals = t
		c.Hash = Hash(*c)
		return
	}

	for i := range c.Items {
		it := &c.Items[i]
		it.UnitPrice = pricing.TieredPrice(it.BasePrice, it.Quantity, it.Tiers)
		it.Subtotal = money.Round(money.MulInt(it.UnitPrice, it.Quantity), scale)
		it.Total = it.Subtotal
		it.SubtotalTax = decimal.Zero
		it.Taxes = nil
		t.Subtotal = t.Subtotal.Add(it.Subtotal)
	}

	cc := c.CouponContext("", c.CustomerID)
	cc.Subtotal = t.Subtotal
	for i := range c.Coupons {
		ac := &c.Coupons[i]
		ac.Discount = money.Round(ac.Rule.Discount(cc), scale)
		t.DiscountTotal = t.DiscountTotal.Add(ac.Discount)
		allocate(c.Items, ac, scale)
	}
	t.DiscountTotal = money.Min(t.DiscountTotal, t.Subtotal)

	if c.ShippingRate != nil {
		t.ShippingTotal = c.ShippingRate.Cost
	}

	dest := s.Tax.Settings.Location(c.BillingAddress, c.ShippingAddress)
	items := make([]tax.Item, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, tax.Item{Key: it.Key, Amount: it.Subtotal, Class: it.TaxClass, Taxable: it.Taxable})
	}
	shippingCost := decimal.Zero
	if c.ShippingRate != nil && c.ShippingRate.Taxable {
		shippingCost = c.ShippingRate.Cost
	}
	res := s.Tax.CalculateCart(items, shippingCost, dest)
	for i := range c.Items {
		it := &c.Items[i]
		if taxes := res.Items[it.Key]; len(taxes) > 0 {
			it.Taxes = res.ItemTaxes(it.Key)
			it.SubtotalTax = tax.Total(taxes)
		}
	}
	t.SubtotalTax = res.ItemTotal
	t.ShippingTax = res.ShippingTotal
	t.ShippingTaxes = res.Shipping

	// Fee tax is always exclusive.
	feeCalc := s.Tax
	feeCalc.Settings.PricesIncludeTax = false
	lines := res.Lines
	for i := range c.Fees {
		f := &c.Fees[i]
		f.Tax = decimal.Zero
		if f.Taxable {
			taxes := feeCalc.Calculate(f.Amount, dest, f.TaxClass)
			f.Tax = tax.Total(taxes)
			lines = mergeTaxLines(lines, taxes)
		}
		t.FeeTotal = t.FeeTotal.Add(f.Amount)
		t.FeeTax = t.FeeTax.Add(f.Tax)
	}
	t.TaxLines = lines

	t.TaxTotal = t.SubtotalTax.Add(t.ShippingTax).Add(t.FeeTax)
	addedTax := t.TaxTotal
	if s.Tax.Settings.PricesIncludeTax {
		// Line prices already contain their tax.
		addedTax = addedTax.Sub(t.SubtotalTax)
	}
	t.Total = money.NonNegative(t.Subtotal.Add(t.ShippingTotal).Add(t.FeeTotal).Add(addedTax).Sub(t.DiscountTotal))
	c.Totals = t
	c.Hash = Hash(*c)
}

func zeroTotals() Totals {
	return Totals{
		Subtotal:      decimal.Zero,
		SubtotalTax:   decimal.Zero,
		DiscountTotal: decimal.Zero,
		DiscountTax:   decimal.Zero,
		ShippingTotal: decimal.Zero,
		ShippingTax:   decimal.Zero,
		FeeTotal:      decimal.Zero,
		FeeTax:        decimal.Zero,
		TaxTotal:      decimal.Zero,
		Total:         decimal.Zero,
	}
}

// allocate spreads a coupon discount over the lines it applies to in
// proportion to their subtotals; the last line absorbs rounding.
func allocate(items []Item, ac *AppliedCoupon, scale int32) {
	var idx []int
	base := decimal.Zero
	for i, it := range items {
		line := couponLine(it)
		if ac.Rule.AppliesTo(line) || ac.DiscountType == coupon.FixedCart {
			idx = append(idx, i)
			base = base.Add(it.Subtotal)
		}
	}
	if len(idx) == 0 || !base.IsPositive() {
		return
	}
	remaining := ac.Discount
	for n, i := range idx {
		share := remaining
		if n < len(idx)-1 {
			share = money.Round(ac.Discount.Mul(items[i].Subtotal).Div(base), scale)
		}
		share = money.Min(share, items[i].Total)
		items[i].Total = items[i].Total.Sub(share)
		remaining = remaining.Sub(share)
	}
}

func couponLine(it Item) coupon.Line {
	return coupon.Line{
		Key:          it.Key,
		ProductID:    it.ProductID,
		CategoryIDs:  it.CategoryIDs,
		Quantity:     it.Quantity,
		UnitPrice:    it.UnitPrice,
		RegularPrice: it.RegularPrice,
		Subtotal:     it.Subtotal,
	}
}

func mergeTaxLines(lines, extra []tax.Calculated) []tax.Calculated {
	for _, e := range extra {
		merged := false
		for i := range lines {
			if lines[i].RateID == e.RateID {
				lines[i].Amount = lines[i].Amount.Add(e.Amount)
				merged = true
				break
			}
		}
		if !merged {
			lines = append(lines, e)
		}
	}
	return lines
}
