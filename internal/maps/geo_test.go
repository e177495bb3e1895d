package maps

import (
	"math"
	"testing"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lng1      float64
		lat2      float64
		lng2      float64
		wantKm    float64
		tolerance float64
	}{
		{
			name: "same point",
			lat1: 52.5200, lng1: 13.4050,
			lat2: 52.5200, lng2: 13.4050,
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name: "Berlin Mitte to Potsdam (~27km)",
			lat1: 52.5200, lng1: 13.4050,
			lat2: 52.3906, lng2: 13.0645,
			wantKm:    27,
			tolerance: 2,
		},
		{
			name: "Berlin to Munich (~504km)",
			lat1: 52.5200, lng1: 13.4050,
			lat2: 48.1351, lng2: 11.5820,
			wantKm:    504,
			tolerance: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := haversineKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("haversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	d1 := haversineKm(52.0, 13.0, 53.0, 14.0)
	d2 := haversineKm(53.0, 14.0, 52.0, 13.0)
	if math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestCacheKey(t *testing.T) {
	ab, ok := cacheKey(drivingProfile, "14467", "10115")
	if !ok {
		t.Fatal("expected cacheable pair")
	}
	ba, _ := cacheKey(drivingProfile, " 10115", "14467")
	if ab != ba {
		t.Errorf("cache key not order independent: %q vs %q", ab, ba)
	}
	if ab != "driving-car:10115:14467" {
		t.Errorf("unexpected key %q", ab)
	}
	for _, pair := range [][2]string{{"", "10115"}, {"1011", "10115"}, {"10115", "1O115"}} {
		if _, ok := cacheKey(drivingProfile, pair[0], pair[1]); ok {
			t.Errorf("pair %v should not be cacheable", pair)
		}
	}
}
