package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"quotecore/internal/types"
)

// DriveCharge returns max(round(distanceKm × perKmCents), minDriveCents).
// A non-positive or non-finite distance yields the minimum.
func DriveCharge(distanceKm float64, perKmCents, minDriveCents int64) int64 {
	if distanceKm <= 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return minDriveCents
	}
	charge := types.RoundCents(decimal.NewFromFloat(distanceKm).Mul(decimal.NewFromInt(perKmCents)))
	return max(charge, minDriveCents)
}
