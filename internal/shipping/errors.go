package shipping

// ErrorKind enumerates shipping failures.
type ErrorKind string

const (
	KindNoShippingZone             ErrorKind = "no_shipping_zone"
	KindNoShippingMethodsAvailable ErrorKind = "no_shipping_methods_available"
	KindInvalidDestination         ErrorKind = "invalid_destination"
)

// Error is a typed shipping failure.
type Error struct {
	Kind ErrorKind
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNoShippingZone:
		return "No shipping zone found for this address"
	case KindNoShippingMethodsAvailable:
		return "No shipping methods available"
	case KindInvalidDestination:
		return "Invalid shipping destination"
	default:
		return "shipping error"
	}
}

// Is matches errors of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNoShippingZone             = &Error{Kind: KindNoShippingZone}
	ErrNoShippingMethodsAvailable = &Error{Kind: KindNoShippingMethodsAvailable}
	ErrInvalidDestination         = &Error{Kind: KindInvalidDestination}
)
