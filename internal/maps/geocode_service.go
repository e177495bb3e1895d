package maps

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"quotecore/internal/types"
)

// GeocodeService resolves postal addresses to coordinates.
type GeocodeService struct {
	client *maps.Client
}

func NewGeocodeService(apiKey string) (*GeocodeService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GeocodeService{client: client}, nil
}

// Locate returns the coordinates of the best geocoding match, restricted to Germany.
func (s *GeocodeService) Locate(ctx context.Context, addr types.Address) (types.Point, error) {
	req := &maps.GeocodingRequest{
		Address:    addr.Query(),
		Region:     "de",
		Language:   "de",
		Components: map[maps.Component]string{maps.ComponentCountry: "DE"},
	}
	if addr.PostalCode != "" {
		req.Components[maps.ComponentPostalCode] = addr.PostalCode
	}

	results, err := s.client.Geocode(ctx, req)
	if err != nil {
		return types.Point{}, fmt.Errorf("geocode: %w", err)
	}
	if len(results) == 0 {
		return types.Point{}, fmt.Errorf("geocode: no match for %q", req.Address)
	}
	loc := results[0].Geometry.Location
	return types.Point{Lat: loc.Lat, Lng: loc.Lng}, nil
}
