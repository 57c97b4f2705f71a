package cart

import "fmt"

// ErrorKind enumerates cart failures.
type ErrorKind string

const (
	KindProductNotFound       ErrorKind = "product_not_found"
	KindVariationNotFound     ErrorKind = "variation_not_found"
	KindInsufficientStock     ErrorKind = "insufficient_stock"
	KindInvalidQuantity       ErrorKind = "invalid_quantity"
	KindItemNotInCart         ErrorKind = "item_not_in_cart"
	KindMaxQuantityExceeded   ErrorKind = "max_quantity_exceeded"
	KindProductNotPurchasable ErrorKind = "product_not_purchasable"
	KindCouponsDisabled       ErrorKind = "coupons_disabled"
	KindCouponNotInCart       ErrorKind = "coupon_not_in_cart"
	KindCartNotFound          ErrorKind = "cart_not_found"
	KindInvalidOwner          ErrorKind = "invalid_owner"
	KindTooManyAttempts       ErrorKind = "too_many_attempts"
)

// Error is a typed cart failure carrying the numbers needed for display.
type Error struct {
	Kind      ErrorKind
	Available int
	Requested int
	Max       int
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindProductNotFound:
		return "Product not found"
	case KindVariationNotFound:
		return "Product variation not found"
	case KindInsufficientStock:
		return fmt.Sprintf("Only %d items available, %d requested", e.Available, e.Requested)
	case KindInvalidQuantity:
		return "Invalid quantity"
	case KindItemNotInCart:
		return "Item not in cart"
	case KindMaxQuantityExceeded:
		return fmt.Sprintf("Maximum quantity of %d exceeded", e.Max)
	case KindProductNotPurchasable:
		return "Product cannot be purchased"
	case KindCouponsDisabled:
		return "Coupons are disabled"
	case KindCouponNotInCart:
		return "Coupon not in cart"
	case KindCartNotFound:
		return "Cart not found"
	case KindInvalidOwner:
		return "Cart must belong to exactly one customer or session"
	case KindTooManyAttempts:
		return "Too many coupon attempts, try again later"
	default:
		return "cart error"
	}
}

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrProductNotFound       = &Error{Kind: KindProductNotFound}
	ErrVariationNotFound     = &Error{Kind: KindVariationNotFound}
	ErrInsufficientStock     = &Error{Kind: KindInsufficientStock}
	ErrInvalidQuantity       = &Error{Kind: KindInvalidQuantity}
	ErrItemNotInCart         = &Error{Kind: KindItemNotInCart}
	ErrMaxQuantityExceeded   = &Error{Kind: KindMaxQuantityExceeded}
	ErrProductNotPurchasable = &Error{Kind: KindProductNotPurchasable}
	ErrCouponsDisabled       = &Error{Kind: KindCouponsDisabled}
	ErrCouponNotInCart       = &Error{Kind: KindCouponNotInCart}
	ErrNotFound              = &Error{Kind: KindCartNotFound}
	ErrInvalidOwner          = &Error{Kind: KindInvalidOwner}
	ErrTooManyAttempts       = &Error{Kind: KindTooManyAttempts}
)
