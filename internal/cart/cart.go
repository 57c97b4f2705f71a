package cart

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/catalog"
	"github.com/noah-isme/toko-engine/internal/coupon"
	"github.com/noah-isme/toko-engine/internal/location"
	"github.com/noah-isme/toko-engine/internal/money"
	"github.com/noah-isme/toko-engine/internal/shipping"
	"github.com/noah-isme/toko-engine/internal/tax"
)

// DefaultTTL is how long an untouched cart lives.
const DefaultTTL = 7 * 24 * time.Hour

// Item is a cart line. Product fields are snapshotted when the line is added.
type Item struct {
	Key              string                        `json:"key"`
	ProductID        uuid.UUID                     `json:"product_id"`
	VariationID      *uuid.UUID                    `json:"variation_id,omitempty"`
	Quantity         int                           `json:"quantity"`
	Name             string                        `json:"name"`
	SKU              string                        `json:"sku,omitempty"`
	Attributes       map[string]string             `json:"attributes,omitempty"`
	BasePrice        decimal.Decimal               `json:"base_price"`
	Tiers            []catalog.PriceTier           `json:"tiers,omitempty"`
	UnitPrice        decimal.Decimal               `json:"unit_price"`
	RegularPrice     decimal.Decimal               `json:"regular_price"`
	Subtotal         decimal.Decimal               `json:"subtotal"`
	SubtotalTax      decimal.Decimal               `json:"subtotal_tax"`
	Total            decimal.Decimal               `json:"total"`
	Taxes            map[uuid.UUID]decimal.Decimal `json:"taxes,omitempty"`
	Taxable          bool                          `json:"taxable"`
	TaxClass         string                        `json:"tax_class,omitempty"`
	Virtual          bool                          `json:"virtual"`
	SoldIndividually bool                          `json:"sold_individually"`
	Weight           decimal.Decimal               `json:"weight"`
	ShippingClass    string                        `json:"shipping_class,omitempty"`
	CategoryIDs      []uuid.UUID                   `json:"category_ids,omitempty"`
	Meta             map[string]any                `json:"meta,omitempty"`
	AddedAt          time.Time                     `json:"added_at"`
}

// OnSale reports whether the line was added below its regular price.
func (i Item) OnSale() bool {
	return i.UnitPrice.LessThan(i.RegularPrice)
}

// AppliedCoupon snapshots an accepted coupon. Rule keeps the full coupon so
// the discount can be recomputed when lines change.
type AppliedCoupon struct {
	Code          string              `json:"code"`
	CouponID      uuid.UUID           `json:"coupon_id"`
	DiscountType  coupon.DiscountType `json:"discount_type"`
	Amount        decimal.Decimal     `json:"amount"`
	Discount      decimal.Decimal     `json:"discount"`
	FreeShipping  bool                `json:"free_shipping"`
	IndividualUse bool                `json:"individual_use"`
	Rule          coupon.Coupon       `json:"rule"`
}

// Fee is an ad-hoc charge added to the cart.
type Fee struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Taxable  bool            `json:"taxable"`
	TaxClass string          `json:"tax_class,omitempty"`
	Tax      decimal.Decimal `json:"tax"`
}

// Totals is the output of Recalculate.
type Totals struct {
	Subtotal      decimal.Decimal  `json:"subtotal"`
	SubtotalTax   decimal.Decimal  `json:"subtotal_tax"`
	DiscountTotal decimal.Decimal  `json:"discount_total"`
	DiscountTax   decimal.Decimal  `json:"discount_tax"`
	ShippingTotal decimal.Decimal  `json:"shipping_total"`
	ShippingTax   decimal.Decimal  `json:"shipping_tax"`
	FeeTotal      decimal.Decimal  `json:"fee_total"`
	FeeTax        decimal.Decimal  `json:"fee_tax"`
	TaxTotal      decimal.Decimal  `json:"tax_total"`
	Total         decimal.Decimal  `json:"total"`
	TaxLines      []tax.Calculated `json:"tax_lines,omitempty"`
	ShippingTaxes []tax.Calculated `json:"shipping_taxes,omitempty"`
}

// Cart is owned by exactly one of CustomerID or SessionKey.
type Cart struct {
	ID              uuid.UUID         `json:"id"`
	CustomerID      *uuid.UUID        `json:"customer_id,omitempty"`
	SessionKey      string            `json:"session_key,omitempty"`
	Items           []Item            `json:"items"`
	Coupons         []AppliedCoupon   `json:"coupons"`
	Fees            []Fee             `json:"fees"`
	ShippingRate    *shipping.Rate    `json:"shipping_rate,omitempty"`
	BillingAddress  *location.Address `json:"billing_address,omitempty"`
	ShippingAddress *location.Address `json:"shipping_address,omitempty"`
	Totals          Totals            `json:"totals"`
	Hash            string            `json:"hash"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool { return len(c.Items) == 0 }

// ItemCount sums line quantities.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// ProductCount is the number of distinct lines.
func (c Cart) ProductCount() int { return len(c.Items) }

// FindItem returns the index of the line with key, or -1.
func (c Cart) FindItem(key string) int {
	for i, it := range c.Items {
		if it.Key == key {
			return i
		}
	}
	return -1
}

// NeedsShipping reports whether any line is physical.
func (c Cart) NeedsShipping() bool {
	for _, it := range c.Items {
		if !it.Virtual {
			return true
		}
	}
	return false
}

// IsVirtual reports whether the cart has lines and none of them ship.
func (c Cart) IsVirtual() bool {
	return !c.IsEmpty() && !c.NeedsShipping()
}

// TotalWeight sums weight times quantity over every line.
func (c Cart) TotalWeight() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(money.MulInt(it.Weight, it.Quantity))
	}
	return total
}

// HasFreeShippingCoupon reports whether an applied coupon grants free shipping.
func (c Cart) HasFreeShippingCoupon() bool {
	for _, ac := range c.Coupons {
		if ac.FreeShipping {
			return true
		}
	}
	return false
}

// HasCoupon compares codes case-insensitively.
func (c Cart) HasCoupon(code string) bool {
	for _, ac := range c.Coupons {
		if strings.EqualFold(ac.Code, strings.TrimSpace(code)) {
			return true
		}
	}
	return false
}

// CouponCodes lists applied codes in acceptance order.
func (c Cart) CouponCodes() []string {
	out := make([]string, 0, len(c.Coupons))
	for _, ac := range c.Coupons {
		out = append(out, ac.Code)
	}
	return out
}

// Destination is the shipping destination, falling back to billing.
func (c Cart) Destination() location.Destination {
	if c.ShippingAddress != nil {
		return c.ShippingAddress.Destination()
	}
	if c.BillingAddress != nil {
		return c.BillingAddress.Destination()
	}
	return location.Destination{}
}

// Package builds the shipping package from physical lines.
func (c Cart) Package() shipping.Package {
	pkg := shipping.Package{
		ContentsCost:          c.Totals.Subtotal,
		Destination:           c.Destination(),
		HasFreeShippingCoupon: c.HasFreeShippingCoupon(),
	}
	for _, it := range c.Items {
		if it.Virtual {
			continue
		}
		pkg.Items = append(pkg.Items, shipping.PackageItem{
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			Weight:        it.Weight,
			ShippingClass: it.ShippingClass,
			LineTotal:     it.Subtotal,
		})
	}
	return pkg
}

// CouponContext exposes the cart to coupon validation.
func (c Cart) CouponContext(email string, userID *uuid.UUID) coupon.Context {
	ctx := coupon.Context{
		Subtotal:     c.Totals.Subtotal,
		AppliedCodes: c.CouponCodes(),
		Email:        email,
		UserID:       userID,
	}
	for _, ac := range c.Coupons {
		if ac.IndividualUse {
			ctx.AppliedIndividualUse = true
		}
	}
	for _, it := range c.Items {
		ctx.Lines = append(ctx.Lines, coupon.Line{
			Key:          it.Key,
			ProductID:    it.ProductID,
			CategoryIDs:  it.CategoryIDs,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			RegularPrice: it.RegularPrice,
			Subtotal:     it.Subtotal,
		})
	}
	return ctx
}

// ItemKey derives the line key: the first 16 bytes of SHA-256 over the raw
// product id, the optional raw variation id and the canonical JSON of meta.
func ItemKey(productID uuid.UUID, variationID *uuid.UUID, meta map[string]any) string {
	h := sha256.New()
	h.Write(productID[:])
	if variationID != nil {
		h.Write(variationID[:])
	}
	h.Write(canonicalJSON(meta))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// canonicalJSON encodes meta with sorted keys and no HTML escaping. A nil or
// empty map encodes as {}.
func canonicalJSON(meta map[string]any) []byte {
	if len(meta) == 0 {
		return []byte("{}")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(meta); err != nil {
		return []byte("{}")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// Hash digests the lines (raw product id, raw variation id, quantity) then the
// coupon codes, all in list order.
func Hash(c Cart) string {
	h := sha256.New()
	for _, it := range c.Items {
		h.Write(it.ProductID[:])
		if it.VariationID != nil {
			h.Write(it.VariationID[:])
		}
		h.Write([]byte(strconv.Itoa(it.Quantity)))
	}
	for _, ac := range c.Coupons {
		h.Write([]byte(ac.Code))
	}
	return hex.EncodeToString(h.Sum(nil))
}
