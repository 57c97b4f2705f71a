package order

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/money"
)

// RefundItem records which line a refund covers.
type RefundItem struct {
	ItemID   uuid.UUID       `json:"item_id"`
	Quantity int             `json:"quantity"`
	Amount   decimal.Decimal `json:"amount"`
}

// Refund is append-only; once stored it is never mutated.
type Refund struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
	Actor     string          `json:"actor,omitempty"`
	Items     []RefundItem    `json:"items,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RefundRequest is the input to CreateRefund.
type RefundRequest struct {
	Amount decimal.Decimal
	Reason string
	Actor  string
	Items  []RefundItem
}

// RefundedTotal sums refund amounts.
func RefundedTotal(refunds []Refund) decimal.Decimal {
	total := decimal.Zero
	for _, r := range refunds {
		total = total.Add(r.Amount)
	}
	return total
}

// RemainingRefundable is the order total minus prior refunds, floored at zero.
func RemainingRefundable(o Order, refunds []Refund) decimal.Decimal {
	return money.NonNegative(o.Totals.Total.Sub(RefundedTotal(refunds)))
}

// CreateRefund validates a refund against the ledger and returns the new
// record. Neither the order nor existing refunds are modified.
func CreateRefund(o Order, existing []Refund, req RefundRequest, now time.Time) (Refund, error) {
	if !o.CanRefund() {
		return Refund{}, &Error{Kind: KindCannotRefund, From: o.Status, Reason: "order is " + o.Status.Label()}
	}
	amount := money.Round(req.Amount, o.scale())
	if !amount.IsPositive() {
		return Refund{}, ErrInvalidAmount
	}
	remaining := RemainingRefundable(o, existing)
	if amount.GreaterThan(remaining) {
		return Refund{}, &Error{
			Kind:   KindCannotRefund,
			From:   o.Status,
			Reason: "max is " + remaining.StringFixed(o.scale()),
			Max:    remaining,
		}
	}
	for _, ri := range req.Items {
		if o.findItem(ri.ItemID) < 0 {
			return Refund{}, ErrItemNotFound
		}
	}
	return Refund{
		ID:        uuid.New(),
		OrderID:   o.ID,
		Amount:    amount,
		Reason:    strings.TrimSpace(req.Reason),
		Actor:     req.Actor,
		Items:     req.Items,
		CreatedAt: now,
	}, nil
}
