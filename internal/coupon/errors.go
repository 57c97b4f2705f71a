package coupon

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind enumerates coupon rejections.
type ErrorKind string

const (
	KindNotFound                  ErrorKind = "not_found"
	KindExpired                   ErrorKind = "expired"
	KindNotYetValid               ErrorKind = "not_yet_valid"
	KindUsageLimitReached         ErrorKind = "usage_limit_reached"
	KindCustomerUsageLimitReached ErrorKind = "customer_usage_limit_reached"
	KindMinimumNotMet             ErrorKind = "minimum_not_met"
	KindMaximumExceeded           ErrorKind = "maximum_exceeded"
	KindNotApplicable             ErrorKind = "not_applicable"
	KindIndividualUse             ErrorKind = "individual_use"
	KindExcludedProduct           ErrorKind = "excluded_product"
	KindExcludedCategory          ErrorKind = "excluded_category"
	KindEmailRestriction          ErrorKind = "email_restriction"
	KindAlreadyApplied            ErrorKind = "already_applied"
	KindInvalidCode               ErrorKind = "invalid_code"
)

// Error is a typed coupon rejection. Minimum, Maximum and Current are set for
// the spend-bound kinds.
type Error struct {
	Kind    ErrorKind
	Minimum decimal.Decimal
	Maximum decimal.Decimal
	Current decimal.Decimal
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return "Coupon not found"
	case KindExpired:
		return "This coupon has expired"
	case KindNotYetValid:
		return "This coupon is not yet valid"
	case KindUsageLimitReached:
		return "Coupon usage limit has been reached"
	case KindCustomerUsageLimitReached:
		return "You have already used this coupon the maximum number of times"
	case KindMinimumNotMet:
		return fmt.Sprintf("Minimum spend of %s is required", e.Minimum.StringFixed(2))
	case KindMaximumExceeded:
		return fmt.Sprintf("Maximum spend of %s exceeded", e.Maximum.StringFixed(2))
	case KindNotApplicable:
		return "This coupon is not applicable to your cart"
	case KindIndividualUse:
		return "This coupon cannot be used with other coupons"
	case KindExcludedProduct:
		return "This coupon does not apply to items in your cart"
	case KindExcludedCategory:
		return "This coupon does not apply to product categories in your cart"
	case KindEmailRestriction:
		return "This coupon is restricted to specific email addresses"
	case KindAlreadyApplied:
		return "This coupon has already been applied"
	case KindInvalidCode:
		return "Invalid coupon code"
	default:
		return "coupon error"
	}
}

// Is matches errors of the same kind regardless of amounts.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrExpired                   = &Error{Kind: KindExpired}
	ErrNotYetValid               = &Error{Kind: KindNotYetValid}
	ErrUsageLimitReached         = &Error{Kind: KindUsageLimitReached}
	ErrCustomerUsageLimitReached = &Error{Kind: KindCustomerUsageLimitReached}
	ErrMinimumNotMet             = &Error{Kind: KindMinimumNotMet}
	ErrMaximumExceeded           = &Error{Kind: KindMaximumExceeded}
	ErrNotApplicable             = &Error{Kind: KindNotApplicable}
	ErrIndividualUse             = &Error{Kind: KindIndividualUse}
	ErrExcludedProduct           = &Error{Kind: KindExcludedProduct}
	ErrExcludedCategory          = &Error{Kind: KindExcludedCategory}
	ErrEmailRestriction          = &Error{Kind: KindEmailRestriction}
	ErrAlreadyApplied            = &Error{Kind: KindAlreadyApplied}
	ErrInvalidCode               = &Error{Kind: KindInvalidCode}
)
