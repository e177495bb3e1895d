package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotecore/internal/types"
)

type fakeSource struct {
	cfg        *PricingConfig
	cfgErr     error
	options    []ServiceOption
	promos     []PromoRule
	cfgLoads   int
	promoCodes []string
}

func (f *fakeSource) ActiveConfig(context.Context) (*PricingConfig, error) {
	f.cfgLoads++
	if f.cfgErr != nil {
		return nil, f.cfgErr
	}
	return f.cfg, nil
}

func (f *fakeSource) ServiceOptions(context.Context) ([]ServiceOption, error) {
	return f.options, nil
}

func (f *fakeSource) PromoRulesByCode(_ context.Context, code string) ([]PromoRule, error) {
	f.promoCodes = append(f.promoCodes, code)
	return f.promos, nil
}

type fakeDistances struct {
	result types.Distance
	calls  int
}

func (f *fakeDistances) Resolve(context.Context, types.Address, types.Address) types.Distance {
	f.calls++
	return f.result
}

func newTestService(src *fakeSource, dist Distances) (*Service, *time.Time) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	svc := NewService(src, dist, nil, time.Minute)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func TestService_QuoteResolvesDistance(t *testing.T) {
	src := &fakeSource{cfg: fixtureConfig()}
	dist := &fakeDistances{result: types.Distance{Km: 15, Source: types.SourceRoute}}
	svc, _ := newTestService(src, dist)

	d := movingDraft()
	d.DistanceKm = 0
	res, err := svc.Quote(context.Background(), d, "")
	require.NoError(t, err)

	assert.Equal(t, 1, dist.calls)
	assert.Equal(t, types.SourceRoute, res.DistanceSource)
	assert.InDelta(t, 15.0, res.DistanceKm, 1e-9)
	assert.Equal(t, int64(40317), res.SelectedQuote().GrossCents)
}

func TestService_QuoteSkipsDistanceWithoutDriveLeg(t *testing.T) {
	src := &fakeSource{cfg: fixtureConfig()}
	dist := &fakeDistances{result: types.Distance{Km: 99, Source: types.SourceRoute}}
	svc, _ := newTestService(src, dist)

	d := QuoteDraft{Service: FamilyDisposal, Speed: TierEconomy, VolumeM3: 60, To: &types.Address{PostalCode: "10115"}, DistanceKm: 12}
	res, err := svc.Quote(context.Background(), d, "")
	require.NoError(t, err)

	assert.Zero(t, dist.calls)
	assert.Zero(t, res.DistanceKm)
	assert.Zero(t, res.Breakdown.DriveChargeCents)
}

func TestService_TariffCached(t *testing.T) {
	src := &fakeSource{cfg: fixtureConfig()}
	svc, now := newTestService(src, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Quote(ctx, movingDraft(), "")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.cfgLoads)

	*now = now.Add(2 * time.Minute)
	_, err := svc.Quote(ctx, movingDraft(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, src.cfgLoads)

	svc.Invalidate()
	_, err = svc.Quote(ctx, movingDraft(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, src.cfgLoads)
}

func TestService_NoActiveConfig(t *testing.T) {
	src := &fakeSource{cfgErr: ErrNoActiveConfig}
	svc, _ := newTestService(src, nil)

	_, err := svc.Quote(context.Background(), movingDraft(), "")
	var confErr *types.ConfigurationError
	assert.True(t, errors.As(err, &confErr))
}

func TestService_QuoteAppliesPromo(t *testing.T) {
	src := &fakeSource{
		cfg:    fixtureConfig(),
		promos: []PromoRule{{ID: "p1", Code: "TEN", Kind: DiscountPercent, Value: 10, Active: true}},
	}
	svc, _ := newTestService(src, nil)

	res, err := svc.Quote(context.Background(), movingDraft(), " ten")
	require.NoError(t, err)
	require.NotNil(t, res.Promo)
	assert.Equal(t, []string{"TEN"}, src.promoCodes)
	assert.Equal(t, int64(4032), res.Promo.DiscountCents)
	assert.Equal(t, int64(40317-4032), res.SelectedQuote().GrossCents)
}

func TestService_LeadDays(t *testing.T) {
	svc, _ := newTestService(&fakeSource{cfg: fixtureConfig()}, nil)

	days, err := svc.LeadDays(context.Background(), TierExpress)
	require.NoError(t, err)
	assert.Equal(t, 2, days)

	_, err = svc.LeadDays(context.Background(), Tier(9))
	var valErr *types.ValidationError
	assert.True(t, errors.As(err, &valErr))
}
