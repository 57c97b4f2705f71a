package checkout

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/cart"
	"github.com/noah-isme/toko-engine/internal/location"
	"github.com/noah-isme/toko-engine/internal/money"
	"github.com/noah-isme/toko-engine/internal/order"
	"github.com/noah-isme/toko-engine/internal/tax"
)

// Settings are the store options checkout reads.
type Settings struct {
	Currency         string
	Scale            int32
	PricesIncludeTax bool
	// TermsPage enables the accept-terms check when non-empty.
	TermsPage string
	// HoldStock is how long stock stays reserved for an unpaid order.
	HoldStock time.Duration
}

func (s Settings) scale() int32 {
	if s.Scale < 0 {
		return money.DefaultScale
	}
	return s.Scale
}

// BuildOrder snapshots a recalculated cart into a pending order. With
// inclusive prices the line subtotals are stored net of tax.
func BuildOrder(c cart.Cart, req Request, number string, s Settings, now time.Time) order.Order {
	scale := s.scale()
	o := order.Order{
		ID:               uuid.New(),
		Number:           number,
		Status:           order.StatusPending,
		Currency:         s.Currency,
		Scale:            scale,
		CustomerID:       req.CustomerID,
		CartHash:         c.Hash,
		Billing:          trimAddress(req.BillingAddress),
		PaymentMethod:    strings.TrimSpace(req.PaymentMethod),
		CustomerNote:     strings.TrimSpace(req.CustomerNote),
		PricesIncludeTax: s.PricesIncludeTax,
		CreatedAt:        now,
	}
	if o.CustomerID == nil {
		o.CustomerID = c.CustomerID
	}
	if req.ShipToDifferentAddress && req.ShippingAddress != nil {
		ship := trimAddress(*req.ShippingAddress)
		o.Shipping = &ship
	}

	o.Items = make([]order.Item, 0, len(c.Items))
	for _, it := range c.Items {
		o.Items = append(o.Items, snapshotItem(it, s.PricesIncludeTax, scale))
	}
	if c.ShippingRate != nil {
		o.ShippingLines = []order.ShippingLine{{
			ID:       uuid.New(),
			RateID:   c.ShippingRate.ID,
			MethodID: string(c.ShippingRate.MethodID),
			Label:    c.ShippingRate.Label,
			Cost:     c.ShippingRate.Cost,
			Tax:      c.Totals.ShippingTax,
		}}
	}
	o.Fees = make([]order.FeeLine, 0, len(c.Fees))
	for _, f := range c.Fees {
		o.Fees = append(o.Fees, order.FeeLine{ID: uuid.New(), Name: f.Name, Amount: f.Amount, Tax: f.Tax})
	}
	o.Coupons = make([]order.CouponLine, 0, len(c.Coupons))
	for _, ac := range c.Coupons {
		o.Coupons = append(o.Coupons, order.CouponLine{
			Code:         ac.Code,
			CouponID:     ac.CouponID,
			DiscountType: string(ac.DiscountType),
			Discount:     ac.Discount,
			DiscountTax:  decimal.Zero,
			FreeShipping: ac.FreeShipping,
		})
	}
	o.TaxLines = taxLines(c.Totals.TaxLines, c.Totals.ShippingTaxes)
	o.Recalculate(now)
	return o
}

func snapshotItem(it cart.Item, inclusive bool, scale int32) order.Item {
	subtotal := it.Subtotal
	unit := it.UnitPrice
	if inclusive && it.SubtotalTax.IsPositive() {
		subtotal = it.Subtotal.Sub(it.SubtotalTax)
		unit = money.Round(subtotal.Div(decimal.NewFromInt(int64(it.Quantity))), scale)
	}
	discount := money.NonNegative(it.Subtotal.Sub(it.Total))
	var attrs map[string]string
	if len(it.Attributes) > 0 {
		attrs = maps.Clone(it.Attributes)
	}
	var taxes map[uuid.UUID]decimal.Decimal
	if len(it.Taxes) > 0 {
		taxes = maps.Clone(it.Taxes)
	}
	return order.Item{
		ID:          uuid.New(),
		ProductID:   it.ProductID,
		VariationID: it.VariationID,
		Name:        it.Name,
		SKU:         it.SKU,
		Attributes:  attrs,
		Quantity:    it.Quantity,
		UnitPrice:   unit,
		Subtotal:    subtotal,
		SubtotalTax: it.SubtotalTax,
		Discount:    discount,
		Total:       money.NonNegative(subtotal.Sub(discount)),
		Taxes:       taxes,
		TaxClass:    it.TaxClass,
		Virtual:     it.Virtual,
	}
}

// taxLines splits the cart's per-rate lines, which already include shipping
// tax, into item and shipping portions.
func taxLines(cartTaxes, shippingTaxes []tax.Calculated) []order.TaxLine {
	shippingByRate := make(map[uuid.UUID]decimal.Decimal, len(shippingTaxes))
	for _, c := range shippingTaxes {
		shippingByRate[c.RateID] = shippingByRate[c.RateID].Add(c.Amount)
	}
	out := make([]order.TaxLine, 0, len(cartTaxes))
	for _, c := range cartTaxes {
		ship := shippingByRate[c.RateID]
		out = append(out, order.TaxLine{
			RateID:           c.RateID,
			Label:            c.Label,
			Rate:             c.Rate,
			Compound:         c.Compound,
			TaxTotal:         c.Amount.Sub(ship),
			ShippingTaxTotal: ship,
		})
	}
	return out
}

func trimAddress(a location.Address) location.Address {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Company = strings.TrimSpace(a.Company)
	a.Address1 = strings.TrimSpace(a.Address1)
	a.Address2 = strings.TrimSpace(a.Address2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.ToUpper(strings.TrimSpace(a.State))
	a.Postcode = strings.TrimSpace(a.Postcode)
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	a.Phone = strings.TrimSpace(a.Phone)
	return a
}
