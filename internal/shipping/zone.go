package shipping

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/toko-engine/internal/location"
)

// LocationType is the granularity of a zone location.
type LocationType string

const (
	LocationCountry   LocationType = "country"
	LocationState     LocationType = "state"
	LocationPostcode  LocationType = "postcode"
	LocationContinent LocationType = "continent"
)

// Location is one entry of a zone. State codes use the "CC:SS" form.
type Location struct {
	Code string       `json:"code"`
	Type LocationType `json:"type"`
}

// Specificity ranks postcode > state > country > continent.
func (l Location) Specificity() int {
	switch l.Type {
	case LocationPostcode:
		return 4
	case LocationState:
		return 3
	case LocationCountry:
		return 2
	case LocationContinent:
		return 1
	default:
		return 0
	}
}

// Matches reports whether the destination falls inside the location.
func (l Location) Matches(dest location.Destination) bool {
	code := strings.TrimSpace(l.Code)
	switch l.Type {
	case LocationCountry:
		return strings.EqualFold(code, dest.Country)
	case LocationState:
		country, state, ok := strings.Cut(code, ":")
		if !ok {
			return false
		}
		return strings.EqualFold(country, dest.Country) && strings.EqualFold(state, dest.State)
	case LocationPostcode:
		return location.MatchPostcode(code, dest.Postcode)
	case LocationContinent:
		return location.InContinent(code, dest.Country)
	default:
		return false
	}
}

// Zone groups locations sharing the same shipping methods.
type Zone struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Order     int              `json:"order"`
	Locations []Location       `json:"locations"`
	Methods   []MethodInstance `json:"methods"`
}

// Specificity is the rank of the zone's most specific location; an empty zone
// is the rest-of-world fallback with specificity 0.
func (z Zone) Specificity() int {
	best := 0
	for _, l := range z.Locations {
		if s := l.Specificity(); s > best {
			best = s
		}
	}
	return best
}

// Matches reports whether any location covers the destination. Zones without
// locations match everything.
func (z Zone) Matches(dest location.Destination) bool {
	if len(z.Locations) == 0 {
		return true
	}
	for _, l := range z.Locations {
		if l.Matches(dest) {
			return true
		}
	}
	return false
}

// EnabledMethods returns the enabled method instances in configured order.
func (z Zone) EnabledMethods() []MethodInstance {
	out := make([]MethodInstance, 0, len(z.Methods))
	for _, m := range z.Methods {
		if m.Enabled {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// MatchZone returns the most specific zone covering dest. Ties keep the
// configured zone order.
func MatchZone(zones []Zone, dest location.Destination) (Zone, error) {
	if strings.TrimSpace(dest.Country) == "" {
		return Zone{}, ErrInvalidDestination
	}
	sorted := append([]Zone(nil), zones...)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].Specificity(), sorted[j].Specificity()
		if si != sj {
			return si > sj
		}
		return sorted[i].Order < sorted[j].Order
	})
	for _, z := range sorted {
		if z.Matches(dest) {
			return z, nil
		}
	}
	return Zone{}, ErrNoShippingZone
}
