package location

import (
	"strconv"
	"strings"
)

// Address is a postal address snapshotted onto carts and orders.
type Address struct {
	FirstName string `json:"first_name,omitempty" validate:"omitempty,max=120"`
	LastName  string `json:"last_name,omitempty" validate:"omitempty,max=120"`
	Company   string `json:"company,omitempty"`
	Address1  string `json:"address_1" validate:"notblank"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city" validate:"notblank"`
	State     string `json:"state,omitempty"`
	Postcode  string `json:"postcode" validate:"notblank"`
	Country   string `json:"country" validate:"notblank"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// FullName joins the first and last name.
func (a Address) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(a.FirstName) + " " + strings.TrimSpace(a.LastName))
}

// Destination returns the matching context for this address.
func (a Address) Destination() Destination {
	return NewDestination(a.Country, a.State, a.Postcode, a.City)
}

// Destination is the normalised (country, state, postcode, city) tuple used by
// the tax and shipping matchers.
type Destination struct {
	Country  string
	State    string
	Postcode string
	City     string
}

// NewDestination upper-cases country, state and postcode and trims all parts.
func NewDestination(country, state, postcode, city string) Destination {
	return Destination{
		Country:  strings.ToUpper(strings.TrimSpace(country)),
		State:    strings.ToUpper(strings.TrimSpace(state)),
		Postcode: strings.ToUpper(strings.TrimSpace(postcode)),
		City:     strings.TrimSpace(city),
	}
}

// MatchPostcode reports whether postcode satisfies pattern. Supported forms are
// an exact value, a "*" wildcard matched as a prefix ("9*" matches "90210"),
// and an inclusive numeric range "A...B". Hyphens and spaces are ignored.
// Malformed ranges never match.
func MatchPostcode(pattern, postcode string) bool {
	p := normalisePostcode(pattern)
	code := normalisePostcode(postcode)
	if p == "" {
		return false
	}
	if lo, hi, ok := strings.Cut(p, "..."); ok {
		return inRange(lo, hi, code)
	}
	if strings.Contains(p, "*") {
		return strings.HasPrefix(code, strings.ReplaceAll(p, "*", ""))
	}
	return p == code
}

func inRange(lo, hi, code string) bool {
	from, err := strconv.ParseInt(lo, 10, 64)
	if err != nil {
		return false
	}
	to, err := strconv.ParseInt(hi, 10, 64)
	if err != nil {
		return false
	}
	value, err := strconv.ParseInt(code, 10, 64)
	if err != nil {
		return false
	}
	return value >= from && value <= to
}

func normalisePostcode(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	v = strings.ReplaceAll(v, "-", "")
	return strings.ReplaceAll(v, " ", "")
}
