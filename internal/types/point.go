// README: Geographic point and postal address value objects.
package types

import "strings"

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type Address struct {
	Line       string `json:"line,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
	Location   *Point `json:"location,omitempty"`
}

func (a Address) IsZero() bool {
	return strings.TrimSpace(a.Line) == "" && strings.TrimSpace(a.PostalCode) == "" &&
		strings.TrimSpace(a.City) == "" && a.Location == nil
}

// Query renders the address for a routing lookup.
func (a Address) Query() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Line, a.PostalCode, a.City} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, "Germany")
	return strings.Join(parts, ", ")
}
