package tax

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-engine/internal/location"
)

// Standard is the slug of the default tax class.
const Standard = "standard"

// Class groups products sharing a tax-rate table.
type Class struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// DefaultClasses returns the built-in tax classes.
func DefaultClasses() []Class {
	return []Class{
		{Slug: Standard, Name: "Standard rate"},
		{Slug: "reduced-rate", Name: "Reduced rate"},
		{Slug: "zero-rate", Name: "Zero rate"},
	}
}

// NormaliseClass maps the empty class to standard.
func NormaliseClass(slug string) string {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return Standard
	}
	return slug
}

// Rate is one row of the tax table. Empty location fields match anything.
// Postcode accepts exact values, "*" wildcards and "A...B" ranges; several
// patterns may be separated with ";".
type Rate struct {
	ID        uuid.UUID       `json:"id"`
	Country   string          `json:"country"`
	State     string          `json:"state,omitempty"`
	Postcode  string          `json:"postcode,omitempty"`
	City      string          `json:"city,omitempty"`
	Rate      decimal.Decimal `json:"rate"`
	Name      string          `json:"name"`
	Priority  int             `json:"priority"`
	Compound  bool            `json:"compound"`
	Shipping  bool            `json:"shipping"`
	Class     string          `json:"class"`
	SortOrder int             `json:"sort_order"`
}

// Label returns the display name of the rate.
func (r Rate) Label() string {
	if strings.TrimSpace(r.Name) != "" {
		return r.Name
	}
	return "Tax"
}

// Matches reports whether the rate applies to the destination.
func (r Rate) Matches(dest location.Destination) bool {
	if c := strings.TrimSpace(r.Country); c != "" && !strings.EqualFold(c, dest.Country) {
		return false
	}
	if s := strings.TrimSpace(r.State); s != "" && !strings.EqualFold(s, dest.State) {
		return false
	}
	if p := strings.TrimSpace(r.Postcode); p != "" && !anyPostcode(p, dest.Postcode) {
		return false
	}
	if c := strings.TrimSpace(r.City); c != "" && !anyCity(c, dest.City) {
		return false
	}
	return true
}

func anyPostcode(patterns, postcode string) bool {
	for _, p := range strings.Split(patterns, ";") {
		if location.MatchPostcode(p, postcode) {
			return true
		}
	}
	return false
}

func anyCity(cities, city string) bool {
	for _, c := range strings.Split(cities, ";") {
		if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(city)) {
			return true
		}
	}
	return false
}

// FormatRate renders a percentage such as "10%" or "7.25%".
func FormatRate(rate decimal.Decimal) string {
	return fmt.Sprintf("%s%%", rate.String())
}

// Repository is the read contract for the tax table.
type Repository interface {
	Rates(ctx context.Context) ([]Rate, error)
}
