// README: Pricing service loads the active tariff (cached), resolves distance and runs the calculator.
package pricing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"quotecore/internal/types"
)

// Source supplies tariff data. *Store is the production implementation.
type Source interface {
	ActiveConfig(ctx context.Context) (*PricingConfig, error)
	ServiceOptions(ctx context.Context) ([]ServiceOption, error)
	PromoRulesByCode(ctx context.Context, code string) ([]PromoRule, error)
}

// Distances resolves the drive distance between two addresses. It never
// fails; degraded lookups are reported through the source tag.
type Distances interface {
	Resolve(ctx context.Context, from, to types.Address) types.Distance
}

type tariffSnapshot struct {
	cfg      *PricingConfig
	catalog  Catalog
	loadedAt time.Time
}

type Service struct {
	source    Source
	distances Distances
	logger    *zap.Logger
	cacheTTL  time.Duration
	now       func() time.Time

	mu     sync.RWMutex
	cached *tariffSnapshot
}

func NewService(source Source, distances Distances, logger *zap.Logger, cacheTTL time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		source:    source,
		distances: distances,
		logger:    logger.Named("pricing"),
		cacheTTL:  cacheTTL,
		now:       time.Now,
	}
}

// Tariff returns the active config and catalog, reloading after the cache TTL.
func (s *Service) Tariff(ctx context.Context) (*PricingConfig, Catalog, error) {
	now := s.now()
	s.mu.RLock()
	snap := s.cached
	s.mu.RUnlock()
	if snap != nil && now.Sub(snap.loadedAt) < s.cacheTTL {
		return snap.cfg, snap.catalog, nil
	}

	cfg, err := s.source.ActiveConfig(ctx)
	if err != nil {
		return nil, nil, err
	}
	options, err := s.source.ServiceOptions(ctx)
	if err != nil {
		return nil, nil, err
	}
	snap = &tariffSnapshot{cfg: cfg, catalog: NewCatalog(options), loadedAt: now}

	s.mu.Lock()
	s.cached = snap
	s.mu.Unlock()
	s.logger.Debug("tariff loaded", zap.String("config_id", cfg.ID), zap.Int("options", len(options)))
	return snap.cfg, snap.catalog, nil
}

// Invalidate drops the cached tariff so the next call reloads it.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// LeadDays returns the minimum lead time for tier under the active tariff.
func (s *Service) LeadDays(ctx context.Context, tier Tier) (int, error) {
	if !tier.Valid() {
		return 0, types.Invalid("speed", "unknown speed tier %d", int(tier))
	}
	cfg, _, err := s.Tariff(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.Tiers[tier].LeadDays, nil
}

// Quote resolves the drive distance when the draft needs one and prices it.
func (s *Service) Quote(ctx context.Context, draft QuoteDraft, promoCode string) (QuoteResult, error) {
	cfg, catalog, err := s.Tariff(ctx)
	if err != nil {
		return QuoteResult{}, err
	}
	if err := ValidateDraft(draft); err != nil {
		return QuoteResult{}, err
	}
	draft = s.withDistance(ctx, draft)

	var promo *PromoRequest
	if code := normalizeCode(promoCode); code != "" {
		rules, err := s.source.PromoRulesByCode(ctx, code)
		if err != nil {
			return QuoteResult{}, err
		}
		promo = &PromoRequest{Code: code, Rules: rules, Now: s.now()}
	}

	res, err := Calculate(draft, cfg, catalog, promo)
	if err != nil {
		return QuoteResult{}, err
	}
	if promo != nil && res.Promo == nil {
		s.logger.Info("promo code not applicable", zap.String("code", promo.Code), zap.String("service", string(draft.Service)))
	}
	return res, nil
}

func (s *Service) withDistance(ctx context.Context, draft QuoteDraft) QuoteDraft {
	if !draft.NeedsDrive() {
		draft.DistanceKm = 0
		draft.DistanceSource = ""
		return draft
	}
	if s.distances == nil || draft.From == nil || draft.To == nil {
		return draft
	}
	d := s.distances.Resolve(ctx, *draft.From, *draft.To)
	draft.DistanceKm = d.Km
	draft.DistanceSource = d.Source
	if d.Source == types.SourceFallback {
		s.logger.Warn("distance degraded to fallback", zap.Float64("distance_km", d.Km))
	}
	return draft
}
