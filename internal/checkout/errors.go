package checkout

import (
	"strings"

	"github.com/google/uuid"
)

// ErrorKind enumerates checkout failures.
type ErrorKind string

const (
	KindCartEmpty              ErrorKind = "cart_empty"
	KindInvalidEmail           ErrorKind = "invalid_email"
	KindInvalidBillingAddress  ErrorKind = "invalid_billing_address"
	KindInvalidShippingAddress ErrorKind = "invalid_shipping_address"
	KindNoShippingMethod       ErrorKind = "no_shipping_method"
	KindNoPaymentMethod        ErrorKind = "no_payment_method"
	KindTermsNotAccepted       ErrorKind = "terms_not_accepted"
	KindStock                  ErrorKind = "stock_error"
)

// Error is a single checkout failure.
type Error struct {
	Kind      ErrorKind
	Reason    string
	ProductID uuid.UUID
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindCartEmpty:
		return "Your cart is empty"
	case KindInvalidEmail:
		return "Please enter a valid email address"
	case KindInvalidBillingAddress:
		return "Invalid billing address: " + e.Reason
	case KindInvalidShippingAddress:
		if e.Reason != "" {
			return "Invalid shipping address: " + e.Reason
		}
		return "Invalid shipping address"
	case KindNoShippingMethod:
		return "Please select a shipping method"
	case KindNoPaymentMethod:
		return "Please select a payment method"
	case KindTermsNotAccepted:
		return "Please accept the terms and conditions"
	case KindStock:
		return e.Reason
	default:
		return "checkout error"
	}
}

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrCartEmpty              = &Error{Kind: KindCartEmpty}
	ErrInvalidEmail           = &Error{Kind: KindInvalidEmail}
	ErrInvalidBillingAddress  = &Error{Kind: KindInvalidBillingAddress}
	ErrInvalidShippingAddress = &Error{Kind: KindInvalidShippingAddress}
	ErrNoShippingMethod       = &Error{Kind: KindNoShippingMethod}
	ErrNoPaymentMethod        = &Error{Kind: KindNoPaymentMethod}
	ErrTermsNotAccepted       = &Error{Kind: KindTermsNotAccepted}
	ErrStock                  = &Error{Kind: KindStock}
)

// ValidationErrors carries every failure found by Validate, in check order.
type ValidationErrors []*Error

func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is find any contained kind.
func (v ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(v))
	for _, e := range v {
		out = append(out, e)
	}
	return out
}

// Has reports whether a failure of kind is present.
func (v ValidationErrors) Has(kind ErrorKind) bool {
	for _, e := range v {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
