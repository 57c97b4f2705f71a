package order_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-engine/internal/order"
)

var created = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// newOrder builds a pending order worth 120.00: 100.00 of goods with 10% tax
// and 10.00 of untaxed shipping.
func newOrder() order.Order {
	o := order.Order{
		ID:       uuid.New(),
		Number:   "RC-20240315-0042",
		Status:   order.StatusPending,
		Currency: "USD",
		Scale:    2,
		Items: []order.Item{{
			ID:          uuid.New(),
			ProductID:   uuid.New(),
			Name:        "Mug",
			Quantity:    2,
			UnitPrice:   dec("50.00"),
			Subtotal:    dec("100.00"),
			SubtotalTax: dec("10.00"),
			Total:       dec("100.00"),
		}},
		ShippingLines: []order.ShippingLine{{ID: uuid.New(), RateID: "flat_rate:1", Label: "Flat rate", Cost: dec("10.00"), Tax: decimal.Zero}},
		CreatedAt:     created,
	}
	o.Recalculate(created)
	return o
}

func TestTransitionTable(t *testing.T) {
	all := order.AllStatuses()
	for _, from := range all {
		allowed := order.ValidTransitions(from)
		for _, to := range all {
			o := order.Order{Status: from}
			err := o.UpdateStatus(to, "", "", created)
			switch {
			case from == to:
				require.NoError(t, err)
			case contains(allowed, to):
				require.NoError(t, err, "%s -> %s", from, to)
				require.True(t, order.CanTransition(from, to))
			default:
				require.ErrorIs(t, err, order.ErrInvalidStatusTransition, "%s -> %s", from, to)
				var oe *order.Error
				require.True(t, errors.As(err, &oe))
				require.Equal(t, from, oe.From)
				require.Equal(t, to, oe.To)
			}
		}
	}
	require.Empty(t, order.ValidTransitions(order.StatusRefunded))
}

func contains(list []order.Status, s order.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestTransitionTimestampsAndHistory(t *testing.T) {
	o := newOrder()
	paid := created.Add(time.Hour)
	require.NoError(t, o.UpdateStatus(order.StatusProcessing, "Payment received", "gateway", paid))
	require.NotNil(t, o.PaidAt)
	require.True(t, o.PaidAt.Equal(paid))
	require.True(t, o.IsPaid())

	require.NoError(t, o.UpdateStatus(order.StatusOnHold, "", "", paid.Add(time.Minute)))
	require.NoError(t, o.UpdateStatus(order.StatusProcessing, "", "", paid.Add(2*time.Minute)))
	require.True(t, o.PaidAt.Equal(paid), "paid_at is only set once")

	done := paid.Add(24 * time.Hour)
	require.NoError(t, o.UpdateStatus(order.StatusCompleted, "", "admin", done))
	require.True(t, o.CompletedAt.Equal(done))
	require.Len(t, o.History, 4)
	require.Equal(t, order.Transition{From: order.StatusPending, To: order.StatusProcessing, At: paid, Note: "Payment received", Actor: "gateway"}, o.History[0])
	require.Len(t, o.Notes, 1)
	require.True(t, o.UpdatedAt.Equal(done))
}

func TestLabelsAndPredicates(t *testing.T) {
	require.Equal(t, "Pending payment", order.StatusPending.Label())
	require.Equal(t, "On hold", order.StatusOnHold.Label())

	o := newOrder()
	require.True(t, o.IsEditable())
	require.True(t, o.CanCancel())
	require.False(t, o.CanRefund())
	require.False(t, o.IsPaid())

	o.Status = order.StatusCompleted
	require.False(t, o.IsEditable())
	require.False(t, o.CanCancel())
	require.True(t, o.CanRefund())

	s := o.Summarise()
	require.Equal(t, "Completed", s.Label)
	require.Equal(t, 2, s.ItemCount)
	require.True(t, s.Total.Equal(dec("120.00")))
}

func TestRecalculateIdentity(t *testing.T) {
	o := newOrder()
	o.Fees = []order.FeeLine{{ID: uuid.New(), Name: "Gift wrap", Amount: dec("5.00"), Tax: dec("0.50")}}
	o.Coupons = []order.CouponLine{{Code: "save10", Discount: dec("10.00")}}
	now := created.Add(time.Minute)
	o.Recalculate(now)

	tot := o.Totals
	require.True(t, tot.Subtotal.Equal(dec("100.00")))
	require.True(t, tot.CartTax.Equal(dec("10.00")))
	require.True(t, tot.TotalTax.Equal(dec("10.50")))
	require.True(t, tot.DiscountTotal.Equal(dec("10.00")))
	require.True(t, tot.Total.Equal(dec("115.50")))
	identity := tot.Subtotal.Add(tot.ShippingTotal).Add(tot.FeeTotal).Add(tot.TotalTax).Sub(tot.DiscountTotal)
	require.True(t, identity.Equal(tot.Total))
	require.True(t, o.UpdatedAt.Equal(now))
}

func TestEditingGatedByStatus(t *testing.T) {
	o := newOrder()
	added, err := o.AddItem(order.Item{ProductID: uuid.New(), Name: "Spoon", Quantity: 3, UnitPrice: dec("2.50")}, created)
	require.NoError(t, err)
	require.True(t, added.Subtotal.Equal(dec("7.50")))
	require.True(t, o.Totals.Subtotal.Equal(dec("107.50")))

	require.NoError(t, o.UpdateItemQuantity(o.Items[0].ID, 1, created))
	require.True(t, o.Items[0].Subtotal.Equal(dec("50.00")))
	require.True(t, o.Items[0].SubtotalTax.Equal(dec("5.00")))

	require.NoError(t, o.UpdateItemQuantity(added.ID, 0, created))
	require.Len(t, o.Items, 1)
	require.ErrorIs(t, o.RemoveItem(uuid.New(), created), order.ErrItemNotFound)
	require.ErrorIs(t, o.UpdateItemQuantity(o.Items[0].ID, -1, created), order.ErrInvalidQuantity)

	_, err = o.AddFeeLine(order.FeeLine{Name: "Rush", Amount: dec("3.00")}, created)
	require.NoError(t, err)
	_, err = o.AddShippingLine(order.ShippingLine{Label: "Express", Cost: dec("7.00")}, created)
	require.NoError(t, err)
	require.True(t, o.Totals.Total.Equal(dec("75.00")))

	require.NoError(t, o.UpdateStatus(order.StatusProcessing, "", "", created))
	_, err = o.AddItem(order.Item{ProductID: uuid.New(), Quantity: 1, UnitPrice: dec("1")}, created)
	require.ErrorIs(t, err, order.ErrOrderLocked)
	require.ErrorIs(t, o.RemoveItem(o.Items[0].ID, created), order.ErrOrderLocked)
	_, err = o.AddFeeLine(order.FeeLine{Amount: dec("1")}, created)
	require.ErrorIs(t, err, order.ErrOrderLocked)
}

func TestLifecycleAndRefundLedger(t *testing.T) {
	o := newOrder()
	require.True(t, o.Totals.Total.Equal(dec("120.00")))

	_, err := order.CreateRefund(o, nil, order.RefundRequest{Amount: dec("10")}, created)
	require.ErrorIs(t, err, order.ErrCannotRefund)

	require.NoError(t, o.UpdateStatus(order.StatusProcessing, "", "", created.Add(time.Hour)))
	require.NotNil(t, o.PaidAt)
	require.NoError(t, o.UpdateStatus(order.StatusCompleted, "", "", created.Add(2*time.Hour)))
	require.NotNil(t, o.CompletedAt)

	var ledger []order.Refund
	first, err := order.CreateRefund(o, ledger, order.RefundRequest{Amount: dec("50.00"), Reason: "damaged"}, created)
	require.NoError(t, err)
	ledger = append(ledger, first)

	_, err = order.CreateRefund(o, ledger, order.RefundRequest{Amount: dec("80.00")}, created)
	require.ErrorIs(t, err, order.ErrCannotRefund)
	require.Contains(t, err.Error(), "70.00")
	var oe *order.Error
	require.True(t, errors.As(err, &oe))
	require.True(t, oe.Max.Equal(dec("70.00")))

	second, err := order.CreateRefund(o, ledger, order.RefundRequest{Amount: dec("70.00")}, created)
	require.NoError(t, err)
	ledger = append(ledger, second)

	require.True(t, order.RefundedTotal(ledger).Equal(dec("120.00")))
	require.True(t, order.RemainingRefundable(o, ledger).IsZero())
	require.True(t, o.Totals.Total.Equal(dec("120.00")))
}

func TestRefundRejectsNonPositiveAmount(t *testing.T) {
	o := newOrder()
	o.Status = order.StatusProcessing
	_, err := order.CreateRefund(o, nil, order.RefundRequest{Amount: decimal.Zero}, created)
	require.ErrorIs(t, err, order.ErrInvalidAmount)
	_, err = order.CreateRefund(o, nil, order.RefundRequest{Amount: dec("-5")}, created)
	require.ErrorIs(t, err, order.ErrInvalidAmount)
	_, err = order.CreateRefund(o, nil, order.RefundRequest{Amount: dec("5"), Items: []order.RefundItem{{ItemID: uuid.New(), Quantity: 1}}}, created)
	require.ErrorIs(t, err, order.ErrItemNotFound)
}
