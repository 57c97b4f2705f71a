package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/location"
	"github.com/noah-isme/toko-engine/internal/money"
)

// Item is a snapshotted order line. Changing the product later never touches it.
type Item struct {
	ID          uuid.UUID                     `json:"id"`
	ProductID   uuid.UUID                     `json:"product_id"`
	VariationID *uuid.UUID                    `json:"variation_id,omitempty"`
	Name        string                        `json:"name"`
	SKU         string                        `json:"sku,omitempty"`
	Attributes  map[string]string             `json:"attributes,omitempty"`
	Quantity    int                           `json:"quantity"`
	UnitPrice   decimal.Decimal               `json:"unit_price"`
	Subtotal    decimal.Decimal               `json:"subtotal"`
	SubtotalTax decimal.Decimal               `json:"subtotal_tax"`
	Discount    decimal.Decimal               `json:"discount"`
	Total       decimal.Decimal               `json:"total"`
	Taxes       map[uuid.UUID]decimal.Decimal `json:"taxes,omitempty"`
	TaxClass    string                        `json:"tax_class,omitempty"`
	Virtual     bool                          `json:"virtual"`
}

// StockID is the id whose stock the line consumes.
func (i Item) StockID() uuid.UUID {
	if i.VariationID != nil {
		return *i.VariationID
	}
	return i.ProductID
}

// ShippingLine is the chosen shipping rate.
type ShippingLine struct {
	ID       uuid.UUID       `json:"id"`
	RateID   string          `json:"rate_id"`
	MethodID string          `json:"method_id"`
	Label    string          `json:"label"`
	Cost     decimal.Decimal `json:"cost"`
	Tax      decimal.Decimal `json:"tax"`
}

// FeeLine is an ad-hoc charge.
type FeeLine struct {
	ID     uuid.UUID       `json:"id"`
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	Tax    decimal.Decimal `json:"tax"`
}

// CouponLine snapshots a redeemed coupon.
type CouponLine struct {
	Code         string          `json:"code"`
	CouponID     uuid.UUID       `json:"coupon_id"`
	DiscountType string          `json:"discount_type"`
	Discount     decimal.Decimal `json:"discount"`
	DiscountTax  decimal.Decimal `json:"discount_tax"`
	FreeShipping bool            `json:"free_shipping"`
}

// TaxLine aggregates one tax rate across the order.
type TaxLine struct {
	RateID           uuid.UUID       `json:"rate_id"`
	Label            string          `json:"label"`
	Rate             decimal.Decimal `json:"rate"`
	Compound         bool            `json:"compound"`
	TaxTotal         decimal.Decimal `json:"tax_total"`
	ShippingTaxTotal decimal.Decimal `json:"shipping_tax_total"`
}

// Note is an entry in the order's note log.
type Note struct {
	ID           uuid.UUID `json:"id"`
	Content      string    `json:"content"`
	CustomerNote bool      `json:"customer_note"`
	Author       string    `json:"author,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Transition is a recorded status change.
type Transition struct {
	From  Status    `json:"from"`
	To    Status    `json:"to"`
	At    time.Time `json:"at"`
	Note  string    `json:"note,omitempty"`
	Actor string    `json:"actor,omitempty"`
}

// Totals are derived from the snapshotted lines by Recalculate.
type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	CartTax       decimal.Decimal `json:"cart_tax"`
	ShippingTotal decimal.Decimal `json:"shipping_total"`
	ShippingTax   decimal.Decimal `json:"shipping_tax"`
	FeeTotal      decimal.Decimal `json:"fee_total"`
	FeeTax        decimal.Decimal `json:"fee_tax"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	DiscountTax   decimal.Decimal `json:"discount_tax"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	Total         decimal.Decimal `json:"total"`
}

// Order is an immutable purchase snapshot plus its lifecycle state.
type Order struct {
	ID               uuid.UUID         `json:"id"`
	Number           string            `json:"number"`
	Status           Status            `json:"status"`
	Currency         string            `json:"currency"`
	Scale            int32             `json:"scale"`
	CustomerID       *uuid.UUID        `json:"customer_id,omitempty"`
	CartHash         string            `json:"cart_hash,omitempty"`
	Billing          location.Address  `json:"billing"`
	Shipping         *location.Address `json:"shipping,omitempty"`
	PaymentMethod    string            `json:"payment_method"`
	PaymentTitle     string            `json:"payment_title,omitempty"`
	TransactionID    string            `json:"transaction_id,omitempty"`
	CustomerNote     string            `json:"customer_note,omitempty"`
	PricesIncludeTax bool              `json:"prices_include_tax"`
	Items            []Item            `json:"items"`
	ShippingLines    []ShippingLine    `json:"shipping_lines"`
	Fees             []FeeLine         `json:"fees"`
	Coupons          []CouponLine      `json:"coupons"`
	TaxLines         []TaxLine         `json:"tax_lines"`
	Notes            []Note            `json:"notes"`
	History          []Transition      `json:"history"`
	Totals           Totals            `json:"totals"`
	Version          int               `json:"version"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	PaidAt           *time.Time        `json:"paid_at,omitempty"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

func (o Order) scale() int32 {
	if o.Scale < 0 {
		return money.DefaultScale
	}
	return o.Scale
}

// IsEditable reports whether lines may still change.
func (o Order) IsEditable() bool { return o.Status.Editable() }

// IsPaid reports whether payment was captured.
func (o Order) IsPaid() bool {
	return o.PaidAt != nil || o.Status == StatusProcessing || o.Status == StatusCompleted
}

// CanCancel reports whether the order may move to cancelled.
func (o Order) CanCancel() bool { return CanTransition(o.Status, StatusCancelled) }

// CanRefund reports whether refunds may be issued.
func (o Order) CanRefund() bool { return o.Status.Refundable() }

// NeedsShipping reports whether any line is physical.
func (o Order) NeedsShipping() bool {
	for _, it := range o.Items {
		if !it.Virtual {
			return true
		}
	}
	return false
}

// ItemCount sums line quantities.
func (o Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// CouponCodes lists the redeemed codes.
func (o Order) CouponCodes() []string {
	out := make([]string, 0, len(o.Coupons))
	for _, c := range o.Coupons {
		out = append(out, c.Code)
	}
	return out
}

// UpdateStatus moves the order to a new status. Moving to the current status
// is a no-op.
func (o *Order) UpdateStatus(to Status, note, actor string, now time.Time) error {
	if o.Status == to {
		return nil
	}
	if !CanTransition(o.Status, to) {
		return &Error{Kind: KindInvalidStatusTransition, From: o.Status, To: to}
	}
	from := o.Status
	o.Status = to
	switch to {
	case StatusProcessing:
		if o.PaidAt == nil {
			o.PaidAt = timePtr(now)
		}
	case StatusCompleted:
		o.CompletedAt = timePtr(now)
	}
	o.History = append(o.History, Transition{From: from, To: to, At: now, Note: note, Actor: actor})
	if note != "" {
		o.AddNote(note, false, actor, now)
	}
	o.UpdatedAt = now
	return nil
}

// AddNote appends to the note log.
func (o *Order) AddNote(content string, customerNote bool, author string, now time.Time) Note {
	n := Note{
		ID:           uuid.New(),
		Content:      strings.TrimSpace(content),
		CustomerNote: customerNote,
		Author:       author,
		CreatedAt:    now,
	}
	o.Notes = append(o.Notes, n)
	return n
}

// CustomerNotes returns only the notes visible to the customer.
func (o Order) CustomerNotes() []Note {
	var out []Note
	for _, n := range o.Notes {
		if n.CustomerNote {
			out = append(out, n)
		}
	}
	return out
}

// Summary is the list view of an order.
type Summary struct {
	ID        uuid.UUID       `json:"id"`
	Number    string          `json:"number"`
	Status    Status          `json:"status"`
	Label     string          `json:"label"`
	Currency  string          `json:"currency"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	Email     string          `json:"email"`
	CreatedAt time.Time       `json:"created_at"`
}

// Summarise builds the list view.
func (o Order) Summarise() Summary {
	return Summary{
		ID:        o.ID,
		Number:    o.Number,
		Status:    o.Status,
		Label:     o.Status.Label(),
		Currency:  o.Currency,
		Total:     o.Totals.Total,
		ItemCount: o.ItemCount(),
		Email:     o.Billing.Email,
		CreatedAt: o.CreatedAt,
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
