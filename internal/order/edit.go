package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/money"
	"github.com/noah-isme/toko-engine/internal/pricing"
)

func (o *Order) ensureEditable() error {
	if !o.IsEditable() {
		return &Error{Kind: KindOrderLocked, From: o.Status}
	}
	return nil
}

// AddItem appends a line. Subtotal defaults to unit price times quantity.
func (o *Order) AddItem(it Item, now time.Time) (Item, error) {
	if err := o.ensureEditable(); err != nil {
		return Item{}, err
	}
	if it.Quantity <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	if it.Subtotal.IsZero() {
		it.Subtotal = money.Round(money.MulInt(it.UnitPrice, it.Quantity), o.scale())
	}
	if it.Total.IsZero() {
		it.Total = it.Subtotal.Sub(it.Discount)
	}
	o.Items = append(o.Items, it)
	o.Recalculate(now)
	return it, nil
}

// RemoveItem drops a line by id.
func (o *Order) RemoveItem(id uuid.UUID, now time.Time) error {
	if err := o.ensureEditable(); err != nil {
		return err
	}
	idx := o.findItem(id)
	if idx < 0 {
		return ErrItemNotFound
	}
	o.Items = append(o.Items[:idx], o.Items[idx+1:]...)
	o.Recalculate(now)
	return nil
}

// UpdateItemQuantity rescales a line. Tax and discount scale with the
// subtotal; zero removes the line.
func (o *Order) UpdateItemQuantity(id uuid.UUID, qty int, now time.Time) error {
	if err := o.ensureEditable(); err != nil {
		return err
	}
	if qty < 0 {
		return ErrInvalidQuantity
	}
	idx := o.findItem(id)
	if idx < 0 {
		return ErrItemNotFound
	}
	if qty == 0 {
		return o.RemoveItem(id, now)
	}
	scale := o.scale()
	it := &o.Items[idx]
	old := it.Subtotal
	it.Quantity = qty
	it.Subtotal = money.Round(money.MulInt(it.UnitPrice, qty), scale)
	if old.IsPositive() {
		ratio := it.Subtotal.Div(old)
		it.SubtotalTax = money.Round(it.SubtotalTax.Mul(ratio), scale)
		it.Discount = money.Round(it.Discount.Mul(ratio), scale)
		for rateID, amount := range it.Taxes {
			it.Taxes[rateID] = money.Round(amount.Mul(ratio), scale)
		}
	}
	it.Total = money.NonNegative(it.Subtotal.Sub(it.Discount))
	o.Recalculate(now)
	return nil
}

// AddShippingLine appends a shipping charge.
func (o *Order) AddShippingLine(line ShippingLine, now time.Time) (ShippingLine, error) {
	if err := o.ensureEditable(); err != nil {
		return ShippingLine{}, err
	}
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	o.ShippingLines = append(o.ShippingLines, line)
	o.Recalculate(now)
	return line, nil
}

// AddFeeLine appends a fee.
func (o *Order) AddFeeLine(fee FeeLine, now time.Time) (FeeLine, error) {
	if err := o.ensureEditable(); err != nil {
		return FeeLine{}, err
	}
	if fee.ID == uuid.Nil {
		fee.ID = uuid.New()
	}
	o.Fees = append(o.Fees, fee)
	o.Recalculate(now)
	return fee, nil
}

func (o *Order) findItem(id uuid.UUID) int {
	for i, it := range o.Items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// Recalculate derives Totals from the lines:
//
//	total_tax = cart_tax + shipping_tax + fee_tax - discount_tax
//	total     = subtotal + shipping_total + fee_total + total_tax - discount_total
//
// Line subtotals are stored net of tax, so the identity holds for inclusive
// stores too.
func (o *Order) Recalculate(now time.Time) {
	t := Totals{
		Subtotal:      decimal.Zero,
		CartTax:       decimal.Zero,
		ShippingTotal: decimal.Zero,
		ShippingTax:   decimal.Zero,
		FeeTotal:      decimal.Zero,
		FeeTax:        decimal.Zero,
		DiscountTotal: decimal.Zero,
		DiscountTax:   decimal.Zero,
	}
	for _, it := range o.Items {
		t.Subtotal = t.Subtotal.Add(it.Subtotal)
		t.CartTax = t.CartTax.Add(it.SubtotalTax)
	}
	for _, s := range o.ShippingLines {
		t.ShippingTotal = t.ShippingTotal.Add(s.Cost)
		t.ShippingTax = t.ShippingTax.Add(s.Tax)
	}
	for _, f := range o.Fees {
		t.FeeTotal = t.FeeTotal.Add(f.Amount)
		t.FeeTax = t.FeeTax.Add(f.Tax)
	}
	for _, c := range o.Coupons {
		t.DiscountTotal = t.DiscountTotal.Add(c.Discount)
		t.DiscountTax = t.DiscountTax.Add(c.DiscountTax)
	}
	t.TotalTax = t.CartTax.Add(t.ShippingTax).Add(t.FeeTax).Sub(t.DiscountTax)
	t.Total = pricing.ComputeClamped(pricing.Summary{
		Subtotal: t.Subtotal,
		Discount: t.DiscountTotal,
		Fees:     t.FeeTotal,
		Shipping: t.ShippingTotal,
		Tax:      t.TotalTax,
	}).Total
	o.Totals = t
	o.UpdatedAt = now
}
