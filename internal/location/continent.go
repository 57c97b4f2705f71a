package location

import "strings"

var continents = map[string][]string{
	"NA": {"US", "CA", "MX"},
	"EU": {"GB", "DE", "FR", "IT", "ES", "NL", "BE", "AT", "CH", "PL", "SE", "NO", "DK", "FI"},
	"AS": {"CN", "JP", "KR", "IN", "SG", "HK", "TW", "TH", "MY", "ID", "PH", "VN"},
	"OC": {"AU", "NZ"},
	"SA": {"BR", "AR", "CL", "CO", "PE", "EC"},
	"AF": {"ZA", "EG", "NG", "KE", "MA"},
}

// InContinent reports whether country belongs to the continent code.
func InContinent(continent, country string) bool {
	members, ok := continents[strings.ToUpper(strings.TrimSpace(continent))]
	if !ok {
		return false
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	for _, c := range members {
		if c == country {
			return true
		}
	}
	return false
}

// ContinentOf returns the continent code for a country, or "" when unknown.
func ContinentOf(country string) string {
	country = strings.ToUpper(strings.TrimSpace(country))
	for code, members := range continents {
		for _, c := range members {
			if c == country {
				return code
			}
		}
	}
	return ""
}
