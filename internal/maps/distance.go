// README: Distance resolution for pricing: cache, road routing, then straight-line fallbacks.
package maps

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quotecore/internal/types"
)

const (
	drivingProfile = "driving-car"
	roadFactor     = 1.25
	routeTimeout   = 5 * time.Second
)

type Router interface {
	DrivingKm(ctx context.Context, origin, destination string) (float64, error)
}

type Geocoder interface {
	Locate(ctx context.Context, addr types.Address) (types.Point, error)
}

type DistanceCache interface {
	Get(ctx context.Context, key string) (float64, bool, error)
	Set(ctx context.Context, key string, km float64) error
}

type ResolverDeps struct {
	Router    Router
	Geocoder  Geocoder
	Cache     DistanceCache
	DefaultKm float64
	Logger    *zap.Logger
}

// DistanceResolver turns two addresses into a drive distance. Every failure
// degrades to a cheaper estimate; it always returns a number.
type DistanceResolver struct {
	router    Router
	geocoder  Geocoder
	cache     DistanceCache
	defaultKm float64
	logger    *zap.Logger
}

func NewDistanceResolver(deps ResolverDeps) *DistanceResolver {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistanceResolver{
		router:    deps.Router,
		geocoder:  deps.Geocoder,
		cache:     deps.Cache,
		defaultKm: deps.DefaultKm,
		logger:    logger.Named("distance"),
	}
}

func (r *DistanceResolver) Resolve(ctx context.Context, from, to types.Address) types.Distance {
	key, cacheable := cacheKey(drivingProfile, from.PostalCode, to.PostalCode)
	if cacheable && r.cache != nil {
		km, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.Warn("distance cache read failed", zap.Error(err))
		} else if ok {
			return types.Distance{Km: km, Source: types.SourceCache}
		}
	}

	if r.router != nil {
		rctx, cancel := context.WithTimeout(ctx, routeTimeout)
		km, err := r.router.DrivingKm(rctx, from.Query(), to.Query())
		cancel()
		if err == nil && km > 0 {
			km = round2(km)
			if cacheable && r.cache != nil {
				if err := r.cache.Set(ctx, key, km); err != nil {
					r.logger.Warn("distance cache write failed", zap.Error(err))
				}
			}
			return types.Distance{Km: km, Source: types.SourceRoute}
		}
		r.logger.Warn("routing failed, using fallback", zap.Error(err), zap.String("from", from.PostalCode), zap.String("to", to.PostalCode))
	}

	a, okA := r.locate(ctx, from)
	b, okB := r.locate(ctx, to)
	if okA && okB {
		direct := haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
		if r.router == nil {
			return types.Distance{Km: round2(max(3, direct*roadFactor)), Source: types.SourceApprox}
		}
		return types.Distance{Km: round2(max(1, direct*roadFactor)), Source: types.SourceFallback}
	}
	return types.Distance{Km: r.defaultKm, Source: types.SourceFallback}
}

func (r *DistanceResolver) locate(ctx context.Context, addr types.Address) (types.Point, bool) {
	if addr.Location != nil {
		return *addr.Location, true
	}
	if r.geocoder == nil {
		return types.Point{}, false
	}
	p, err := r.geocoder.Locate(ctx, addr)
	if err != nil {
		r.logger.Debug("geocode failed", zap.Error(err))
		return types.Point{}, false
	}
	return p, true
}
