package order

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind enumerates order failures.
type ErrorKind string

const (
	KindNotFound                ErrorKind = "not_found"
	KindInvalidStatusTransition ErrorKind = "invalid_status_transition"
	KindAlreadyPaid             ErrorKind = "already_paid"
	KindCannotRefund            ErrorKind = "cannot_refund"
	KindInvalidAmount           ErrorKind = "invalid_amount"
	KindOrderLocked             ErrorKind = "order_locked"
	KindItemNotFound            ErrorKind = "item_not_found"
	KindInvalidQuantity         ErrorKind = "invalid_quantity"
)

// Error is a typed order failure.
type Error struct {
	Kind   ErrorKind
	From   Status
	To     Status
	Reason string
	// Max is the remaining refundable amount for refund bound failures.
	Max decimal.Decimal
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return "Order not found"
	case KindInvalidStatusTransition:
		return fmt.Sprintf("Cannot change order status from %s to %s", e.From, e.To)
	case KindAlreadyPaid:
		return "Order is already paid"
	case KindCannotRefund:
		if e.Reason != "" {
			return "Cannot refund order: " + e.Reason
		}
		return "Cannot refund order"
	case KindInvalidAmount:
		return "Invalid refund amount"
	case KindOrderLocked:
		return fmt.Sprintf("Order cannot be edited while %s", e.From.Label())
	case KindItemNotFound:
		return "Order item not found"
	case KindInvalidQuantity:
		return "Invalid quantity"
	default:
		return "order error"
	}
}

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrInvalidStatusTransition = &Error{Kind: KindInvalidStatusTransition}
	ErrAlreadyPaid             = &Error{Kind: KindAlreadyPaid}
	ErrCannotRefund            = &Error{Kind: KindCannotRefund}
	ErrInvalidAmount           = &Error{Kind: KindInvalidAmount}
	ErrOrderLocked             = &Error{Kind: KindOrderLocked}
	ErrItemNotFound            = &Error{Kind: KindItemNotFound}
	ErrInvalidQuantity         = &Error{Kind: KindInvalidQuantity}
)

// ErrConcurrentUpdate is returned by repositories when the stored version moved.
var ErrConcurrentUpdate = errors.New("order: concurrent update")

// ErrDuplicateNumber is returned by repositories when the order number is taken.
var ErrDuplicateNumber = errors.New("order: duplicate order number")
