package checkout

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-engine/internal/cart"
	"github.com/noah-isme/toko-engine/internal/location"
)

// Request is the shopper's checkout submission.
type Request struct {
	BillingAddress         location.Address  `json:"billing_address"`
	ShippingAddress        *location.Address `json:"shipping_address,omitempty"`
	ShipToDifferentAddress bool              `json:"ship_to_different_address"`
	PaymentMethod          string            `json:"payment_method"`
	AcceptTerms            bool              `json:"accept_terms"`
	CustomerNote           string            `json:"customer_note,omitempty"`
	CustomerID             *uuid.UUID        `json:"customer_id,omitempty"`
}

// ShippingDestination is the address goods are sent to.
func (r Request) ShippingDestination() location.Address {
	if r.ShipToDifferentAddress && r.ShippingAddress != nil {
		return *r.ShippingAddress
	}
	return r.BillingAddress
}

// NewValidator returns a validator with the "notblank" rule registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

var defaultValidator = sync.OnceValue(NewValidator)

// Address fields in the order their failures are reported.
var addressChecks = []struct {
	field  string
	reason string
}{
	{"Address1", "street address is required"},
	{"City", "city is required"},
	{"Country", "country is required"},
	{"Postcode", "postcode is required"},
}

func addressReasons(v *validator.Validate, a location.Address) []string {
	err := v.Struct(a)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	failed := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		failed[fe.StructField()] = true
	}
	var reasons []string
	for _, c := range addressChecks {
		if failed[c.field] {
			reasons = append(reasons, c.reason)
			delete(failed, c.field)
		}
	}
	for _, fe := range verrs {
		if failed[fe.StructField()] {
			reasons = append(reasons, strings.ToLower(fe.Field())+" is invalid")
		}
	}
	return reasons
}

// ValidEmail is the loose syntactic check used at checkout.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	return len(email) >= 5 && strings.Contains(email, "@") && strings.Contains(email, ".")
}

// Validate checks the cart and request, accumulating every failure. The
// result is nil when checkout may proceed.
func Validate(v *validator.Validate, c cart.Cart, req Request, termsPage string) ValidationErrors {
	if v == nil {
		v = defaultValidator()
	}
	var errs ValidationErrors
	if c.IsEmpty() {
		errs = append(errs, &Error{Kind: KindCartEmpty})
	}
	if !ValidEmail(req.BillingAddress.Email) {
		errs = append(errs, &Error{Kind: KindInvalidEmail})
	}
	for _, reason := range addressReasons(v, req.BillingAddress) {
		errs = append(errs, &Error{Kind: KindInvalidBillingAddress, Reason: reason})
	}
	if req.ShipToDifferentAddress {
		if req.ShippingAddress == nil {
			errs = append(errs, &Error{Kind: KindInvalidShippingAddress, Reason: "shipping address is required"})
		} else {
			for _, reason := range addressReasons(v, *req.ShippingAddress) {
				errs = append(errs, &Error{Kind: KindInvalidShippingAddress, Reason: reason})
			}
		}
	}
	if c.NeedsShipping() && c.ShippingRate == nil {
		errs = append(errs, &Error{Kind: KindNoShippingMethod})
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		errs = append(errs, &Error{Kind: KindNoPaymentMethod})
	}
	if strings.TrimSpace(termsPage) != "" && !req.AcceptTerms {
		errs = append(errs, &Error{Kind: KindTermsNotAccepted})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
