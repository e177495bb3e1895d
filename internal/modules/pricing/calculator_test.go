package pricing

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotecore/internal/types"
)

// fixtureConfig mirrors the reference tariff used by the worked examples.
func fixtureConfig() *PricingConfig {
	return &PricingConfig{
		ID:       "cfg_test",
		Currency: "EUR",
		Families: map[ServiceFamily]FamilyTariff{
			FamilyMoving:   {BaseFeeCents: 12000, PerM3Cents: 450},
			FamilyDisposal: {BaseFeeCents: 8000, PerM3Cents: 300, MinimumOrderCents: 15000},
			FamilyAssembly: {BaseFeeCents: 6000, MinimumOrderCents: 9000},
			FamilySpecial:  {BaseFeeCents: 10000},
		},
		StairsSurchargePerFloorCents: 1500,
		NoParkingSurchargeCents:      4500,
		ElevatorDiscountSmallCents:   500,
		ElevatorDiscountLargeCents:   1000,
		PerKmCents:                   250,
		MinDriveCents:                3000,
		HeavyItemSurchargeCents:      2000,
		HourlyRateCents:              5500,
		UncertaintyPercent:           12,
		Tiers: [TierCount]TierSettings{
			TierEconomy:  {Multiplier: 0.9, LeadDays: 14},
			TierStandard: {Multiplier: 1, LeadDays: 7},
			TierExpress:  {Multiplier: 1.3, LeadDays: 2},
		},
		Extras: DefaultExtraSurcharges(),
	}
}

func fixtureCatalog() Catalog {
	return NewCatalog([]ServiceOption{
		{Code: "PIANO", Module: ModuleSpecial, PricingType: PricingFlat, DefaultPriceCents: 15000, DefaultLaborMinutes: 60, IsHeavy: true, Active: true},
		{Code: "KITCHEN_ASSEMBLY", Module: ModuleAssembly, PricingType: PricingPerHour, DefaultLaborMinutes: 120, Active: true},
		{Code: "WARDROBE", Module: ModuleAssembly, PricingType: PricingPerUnit, DefaultPriceCents: 4000, DefaultLaborMinutes: 45, RequiresQuantity: true, Active: true},
		{Code: "BULKY_WASTE", Module: ModuleDisposal, PricingType: PricingPerM3, DefaultPriceCents: 2500, Active: true},
		{Code: "RETIRED", Module: ModuleDisposal, PricingType: PricingFlat, DefaultPriceCents: 100, Active: false},
	})
}

func movingDraft() QuoteDraft {
	return QuoteDraft{
		Service:    FamilyMoving,
		Speed:      TierStandard,
		VolumeM3:   20,
		Floors:     2,
		From:       &types.Address{PostalCode: "10115", City: "Berlin"},
		To:         &types.Address{PostalCode: "14467", City: "Potsdam"},
		Extras:     Extras{Packing: true},
		DistanceKm: 15,
	}
}

func TestCalculate_MovingWithStairsAndPacking(t *testing.T) {
	res, err := Calculate(movingDraft(), fixtureConfig(), nil, nil)
	require.NoError(t, err)

	b := res.Breakdown
	assert.Equal(t, int64(12000), b.BaseFeeCents)
	assert.Equal(t, int64(9000), b.VolumeCents)
	assert.Equal(t, int64(3000), b.FloorSurchargeCents)
	assert.Equal(t, int64(2500), b.AddonCents)
	assert.Equal(t, int64(3750), b.DriveChargeCents)
	assert.Equal(t, int64(30250), b.SubtotalCents)

	std := res.SelectedQuote()
	assert.Equal(t, TierStandard, std.Tier)
	assert.Equal(t, int64(26620), std.PriceMinCents)
	assert.Equal(t, int64(33880), std.PriceMaxCents)
	assert.Equal(t, int64(33880), std.NetCents)
	assert.Equal(t, int64(6437), std.VATCents)
	assert.Equal(t, int64(40317), std.GrossCents)
}

func TestCalculate_ShortDriveUsesMinimum(t *testing.T) {
	d := movingDraft()
	d.DistanceKm = 1

	res, err := Calculate(d, fixtureConfig(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), res.Breakdown.DriveChargeCents)
	assert.Equal(t, int64(29500), res.Breakdown.SubtotalCents)
}

func TestCalculate_AllTiersPriced(t *testing.T) {
	res, err := Calculate(movingDraft(), fixtureConfig(), nil, nil)
	require.NoError(t, err)

	// 30250 × 0.9 = 27225 ; 30250 × 1.3 = 39325
	assert.Equal(t, int64(27225), res.Tiers[TierEconomy].SubtotalCents)
	assert.Equal(t, int64(30250), res.Tiers[TierStandard].SubtotalCents)
	assert.Equal(t, int64(39325), res.Tiers[TierExpress].SubtotalCents)
	assert.Equal(t, 14, res.Tiers[TierEconomy].LeadDays)
	assert.Equal(t, 2, res.Tiers[TierExpress].LeadDays)
	assert.Less(t, res.Tiers[TierEconomy].GrossCents, res.Tiers[TierStandard].GrossCents)
	assert.Less(t, res.Tiers[TierStandard].GrossCents, res.Tiers[TierExpress].GrossCents)
	for _, tq := range res.Tiers {
		assert.Equal(t, tq.NetCents, tq.PriceMaxCents)
		assert.Equal(t, tq.NetCents+tq.VATCents, tq.GrossCents)
		assert.LessOrEqual(t, tq.PriceMinCents, tq.PriceMaxCents)
	}
}

func TestCalculate_VolumeMonotonic(t *testing.T) {
	cfg := fixtureConfig()
	prev := int64(-1)
	for v := 1; v <= 200; v += 7 {
		d := movingDraft()
		d.VolumeM3 = float64(v)
		res, err := Calculate(d, cfg, nil, nil)
		require.NoError(t, err)
		gross := res.SelectedQuote().GrossCents
		assert.Greater(t, gross, prev, "volume %d", v)
		prev = gross
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	d := movingDraft()
	d.Options = []SelectedOption{{Code: "PIANO", Qty: 1}}
	promo := &PromoRequest{
		Code:  "spring10",
		Rules: []PromoRule{{ID: "p1", Code: "SPRING10", Kind: DiscountPercent, Value: 10, Active: true}},
		Now:   time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}

	first, err := Calculate(d, fixtureConfig(), fixtureCatalog(), promo)
	require.NoError(t, err)
	second, err := Calculate(d, fixtureConfig(), fixtureCatalog(), promo)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestCalculate_Combo(t *testing.T) {
	d := movingDraft()
	d.Service = FamilyCombo
	d.Floors = 0
	d.Extras = Extras{}

	res, err := Calculate(d, fixtureConfig(), nil, nil)
	require.NoError(t, err)
	// base 12000 + 8000 ; volume 20 × (450+300)/2 = 7500 ; drive 3750
	assert.Equal(t, int64(20000), res.Breakdown.BaseFeeCents)
	assert.Equal(t, int64(7500), res.Breakdown.VolumeCents)
	assert.Equal(t, int64(31250), res.Breakdown.SubtotalCents)
}

func TestCalculate_ElevatorDiscountReplacesStairs(t *testing.T) {
	d := movingDraft()
	d.HasElevator = true
	d.ElevatorSize = ElevatorLarge

	res, err := Calculate(d, fixtureConfig(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Breakdown.FloorSurchargeCents)
	assert.Equal(t, int64(1000), res.Breakdown.ElevatorDiscountCents)
	assert.Equal(t, int64(30250-3000-1000), res.Breakdown.SubtotalCents)
}

func TestCalculate_NoElevatorDiscountAtGroundFloor(t *testing.T) {
	d := movingDraft()
	d.Floors = 0
	d.HasElevator = true
	d.ElevatorSize = ElevatorSmall

	res, err := Calculate(d, fixtureConfig(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Breakdown.ElevatorDiscountCents)
	assert.Equal(t, int64(30250-3000), res.Breakdown.SubtotalCents)
}

func TestCalculate_NoParkingOnlyWhenFlagged(t *testing.T) {
	d := movingDraft()
	res, err := Calculate(d, fixtureConfig(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Breakdown.ParkingSurchargeCents)

	d.NoParking = true
	res, err = Calculate(d, fixtureConfig(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4500), res.Breakdown.ParkingSurchargeCents)
}

func TestCalculate_SingleLocationDrive(t *testing.T) {
	cfg := fixtureConfig()
	d := QuoteDraft{
		Service:    FamilyDisposal,
		Speed:      TierStandard,
		VolumeM3:   30,
		To:         &types.Address{PostalCode: "10115"},
		DistanceKm: 40,
	}
	res, err := Calculate(d, cfg, nil, nil)
	require.NoError(t, err)
	assert.Zero(t, res.Breakdown.DriveChargeCents, "destination only")

	d.From = &types.Address{PostalCode: "10245"}
	res, err = Calculate(d, cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), res.Breakdown.DriveChargeCents, "two addresses")
}

func TestCalculate_MinimumOrder(t *testing.T) {
	d := QuoteDraft{
		Service:  FamilyAssembly,
		Speed:    TierStandard,
		VolumeM3: 1,
		To:       &types.Address{PostalCode: "10115"},
	}
	res, err := Calculate(d, fixtureConfig(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), res.Breakdown.MinimumOrderAppliedCents)
	assert.Equal(t, int64(9000), res.Breakdown.SubtotalCents)
}

func TestCalculate_ServiceOptions(t *testing.T) {
	cfg := fixtureConfig()
	d := QuoteDraft{
		Service:  FamilyAssembly,
		Speed:    TierStandard,
		VolumeM3: 10,
		To:       &types.Address{PostalCode: "10115"},
		Options: []SelectedOption{
			{Code: "wardrobe", Qty: 2},
			{Code: "KITCHEN_ASSEMBLY", Qty: 1},
			{Code: "BULKY_WASTE", Qty: 1},
		},
	}
	res, err := Calculate(d, cfg, fixtureCatalog(), nil)
	require.NoError(t, err)

	// labor: 45 base + 120 volume + 90 wardrobes + 120 kitchen = 375 min -> 6.25 h
	assert.InDelta(t, 6.25, res.LaborHours, 1e-9)
	assert.Equal(t, 420, res.JobDurationMinutes)
	// wardrobes 2 × 4000 ; kitchen 6.25 h × 5500 ; disposal option belongs to another module
	assert.Equal(t, int64(8000+34375), res.Breakdown.ServiceOptionsCents)
	assert.Zero(t, res.Breakdown.HeavyItemCents)
}

func TestCalculate_HeavyItemSurcharge(t *testing.T) {
	d := QuoteDraft{
		Service:  FamilySpecial,
		Speed:    TierStandard,
		VolumeM3: 3,
		To:       &types.Address{PostalCode: "10115"},
		Options:  []SelectedOption{{Code: "PIANO", Qty: 1}},
	}
	res, err := Calculate(d, fixtureConfig(), fixtureCatalog(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), res.Breakdown.ServiceOptionsCents)
	assert.Equal(t, int64(2000), res.Breakdown.HeavyItemCents)
	assert.Equal(t, int64(17000), res.Breakdown.AddonCents)
}

func TestCalculate_PromoOnSelectedTier(t *testing.T) {
	promo := &PromoRequest{
		Code:  " welcome ",
		Rules: []PromoRule{{ID: "p1", Code: "WELCOME", Kind: DiscountFlat, Value: 5000, Active: true}},
		Now:   time.Now(),
	}
	res, err := Calculate(movingDraft(), fixtureConfig(), nil, promo)
	require.NoError(t, err)
	require.NotNil(t, res.Promo)

	sel := res.SelectedQuote()
	assert.Equal(t, int64(5000), sel.DiscountCents)
	assert.Equal(t, int64(40317-5000), sel.GrossCents)
	// 35317 / 1.19 = 29678.15 -> 29678
	assert.Equal(t, int64(29678), sel.NetCents)
	assert.Equal(t, int64(35317-29678), sel.VATCents)
	assert.Equal(t, int64(5000), res.Breakdown.DiscountCents)
	assert.Zero(t, res.Tiers[TierExpress].DiscountCents)
}

func TestCalculate_PromoNeverNegative(t *testing.T) {
	promo := &PromoRequest{
		Code:  "FREE",
		Rules: []PromoRule{{ID: "p1", Code: "FREE", Kind: DiscountFlat, Value: 10_000_000, Active: true}},
		Now:   time.Now(),
	}
	res, err := Calculate(movingDraft(), fixtureConfig(), nil, promo)
	require.NoError(t, err)
	sel := res.SelectedQuote()
	assert.Zero(t, sel.GrossCents)
	assert.Zero(t, sel.NetCents)
	assert.Zero(t, sel.VATCents)
}

func TestCalculate_UnknownPromoIgnored(t *testing.T) {
	promo := &PromoRequest{Code: "NOPE", Now: time.Now()}
	res, err := Calculate(movingDraft(), fixtureConfig(), nil, promo)
	require.NoError(t, err)
	assert.Nil(t, res.Promo)
	assert.Equal(t, int64(40317), res.SelectedQuote().GrossCents)
}

func TestCalculate_Errors(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*QuoteDraft)
		cfg      *PricingConfig
		wantConf bool
	}{
		{name: "no config", cfg: nil, wantConf: true},
		{name: "unknown option", mutate: func(d *QuoteDraft) { d.Options = []SelectedOption{{Code: "UNKNOWN", Qty: 1}} }, cfg: fixtureConfig(), wantConf: true},
		{name: "inactive option", mutate: func(d *QuoteDraft) { d.Options = []SelectedOption{{Code: "RETIRED", Qty: 1}} }, cfg: fixtureConfig(), wantConf: true},
		{name: "moving without origin", mutate: func(d *QuoteDraft) { d.From = nil }, cfg: fixtureConfig()},
		{name: "moving without destination", mutate: func(d *QuoteDraft) { d.To = &types.Address{} }, cfg: fixtureConfig()},
		{name: "volume too small", mutate: func(d *QuoteDraft) { d.VolumeM3 = 0.5 }, cfg: fixtureConfig()},
		{name: "volume too large", mutate: func(d *QuoteDraft) { d.VolumeM3 = 201 }, cfg: fixtureConfig()},
		{name: "floors out of range", mutate: func(d *QuoteDraft) { d.Floors = 11 }, cfg: fixtureConfig()},
		{name: "option quantity", mutate: func(d *QuoteDraft) { d.Options = []SelectedOption{{Code: "PIANO", Qty: 51}} }, cfg: fixtureConfig()},
		{name: "unknown family", mutate: func(d *QuoteDraft) { d.Service = "GARDENING" }, cfg: fixtureConfig()},
		{name: "disposal without address", mutate: func(d *QuoteDraft) { d.Service = FamilyDisposal; d.From = nil; d.To = nil }, cfg: fixtureConfig()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := movingDraft()
			if tc.mutate != nil {
				tc.mutate(&d)
			}
			_, err := Calculate(d, tc.cfg, fixtureCatalog(), nil)
			require.Error(t, err)

			var confErr *types.ConfigurationError
			var valErr *types.ValidationError
			if tc.wantConf {
				assert.True(t, errors.As(err, &confErr), "want configuration error, got %v", err)
			} else {
				assert.True(t, errors.As(err, &valErr), "want validation error, got %v", err)
			}
		})
	}
}

func TestCalculate_DoesNotMutateConfig(t *testing.T) {
	cfg := fixtureConfig()
	before, err := json.Marshal(cfg)
	require.NoError(t, err)

	_, err = Calculate(movingDraft(), cfg, nil, nil)
	require.NoError(t, err)

	after, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
}

func TestJobDurationMinutes(t *testing.T) {
	cases := []struct {
		hours float64
		want  int
	}{
		{1, 120},
		{1.5, 120},
		{2.25, 180},
		{4, 300},
		{30, 1440},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, JobDurationMinutes(tc.hours), "hours %.2f", tc.hours)
	}
}

func TestServiceFamily_GermanAliases(t *testing.T) {
	cases := []struct {
		in   string
		want ServiceFamily
	}{
		{"ENTSORGUNG", FamilyDisposal},
		{"montage", FamilyAssembly},
		{"Umzug", FamilyMoving},
		{"SPEZIALSERVICE", FamilySpecial},
		{"DISPOSAL", FamilyDisposal},
		{"GARDENING", "GARDENING"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			var d QuoteDraft
			require.NoError(t, json.Unmarshal([]byte(`{"service":"`+tc.in+`"}`), &d))
			assert.Equal(t, tc.want, d.Service)
		})
	}
}

func TestCalculate_AliasedFamilyPrices(t *testing.T) {
	var d QuoteDraft
	require.NoError(t, json.Unmarshal([]byte(`{"service":"ENTSORGUNG","speed":"STANDARD","volumeM3":4,"from":{"postalCode":"10115"}}`), &d))

	res, err := Calculate(d, fixtureConfig(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(8000), res.Breakdown.BaseFeeCents)
}
