package types

// DistanceSource tags where a distance came from. It never affects arithmetic.
type DistanceSource string

const (
	SourceApprox   DistanceSource = "approx"
	SourceRoute    DistanceSource = "route"
	SourceCache    DistanceSource = "cache"
	SourceFallback DistanceSource = "fallback"
)

type Distance struct {
	Km     float64        `json:"distanceKm"`
	Source DistanceSource `json:"distanceSource"`
}
