// README: Pricing calculator; pure function from draft + tariff + catalog to a tiered quote.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"

	"quotecore/internal/types"
)

const (
	vatPercent   = 19
	minVolumeM3  = 1
	maxVolumeM3  = 200
	maxFloors    = 10
	maxOptionQty = 50

	maxJobMinutes = 24 * 60
)

var (
	ErrNoActiveConfig = &types.ConfigurationError{Reason: "no active pricing configuration"}

	hundred = decimal.NewFromInt(100)
	vatRate = decimal.NewFromInt(vatPercent).Div(hundred)
	grossOf = decimal.NewFromInt(100 + vatPercent).Div(hundred)
)

// Calculate prices draft under cfg for all three speed tiers and marks the
// requested one as selected. promo may be nil.
func Calculate(draft QuoteDraft, cfg *PricingConfig, catalog Catalog, promo *PromoRequest) (QuoteResult, error) {
	if cfg == nil {
		return QuoteResult{}, ErrNoActiveConfig
	}
	if err := cfg.Validate(); err != nil {
		return QuoteResult{}, err
	}
	if err := ValidateDraft(draft); err != nil {
		return QuoteResult{}, err
	}

	tariff, err := cfg.Tariff(draft.Service)
	if err != nil {
		return QuoteResult{}, err
	}
	rate, err := volumeRate(cfg, draft.Service)
	if err != nil {
		return QuoteResult{}, err
	}
	options, err := resolveOptions(draft, catalog)
	if err != nil {
		return QuoteResult{}, err
	}
	laborHours := estimateLaborHours(draft, options)

	var b Breakdown
	b.BaseFeeCents = tariff.BaseFeeCents
	b.VolumeCents = types.RoundCents(decimal.NewFromFloat(draft.VolumeM3).Mul(rate))
	if draft.Floors > 0 {
		if draft.HasElevator {
			b.ElevatorDiscountCents = elevatorDiscount(cfg, draft.ElevatorSize)
		} else {
			b.FloorSurchargeCents = int64(draft.Floors) * cfg.StairsSurchargePerFloorCents
		}
	}
	if draft.NoParking {
		b.ParkingSurchargeCents = cfg.NoParkingSurchargeCents
	}
	b.ExtrasCents = extrasCents(draft.Extras, cfg.Extras)
	b.ServiceOptionsCents, b.HeavyItemCents = priceOptions(draft, cfg, options, laborHours)
	b.AddonCents = b.ExtrasCents + b.ServiceOptionsCents + b.HeavyItemCents
	if draft.NeedsDrive() {
		b.DriveChargeCents = DriveCharge(draft.DistanceKm, cfg.PerKmCents, cfg.MinDriveCents)
	}

	subtotal := b.BaseFeeCents + b.VolumeCents + b.FloorSurchargeCents + b.ParkingSurchargeCents -
		b.ElevatorDiscountCents + b.AddonCents + b.DriveChargeCents
	subtotal = max(0, subtotal)
	if subtotal < tariff.MinimumOrderCents {
		b.MinimumOrderAppliedCents = tariff.MinimumOrderCents - subtotal
		subtotal = tariff.MinimumOrderCents
	}
	b.SubtotalCents = subtotal

	res := QuoteResult{
		Currency:           cfg.Currency,
		Selected:           draft.Speed,
		VolumeM3:           draft.VolumeM3,
		LaborHours:         laborHours,
		JobDurationMinutes: JobDurationMinutes(laborHours),
		DistanceKm:         draft.DistanceKm,
		DistanceSource:     draft.DistanceSource,
	}
	if res.Currency == "" {
		res.Currency = types.DefaultCurrency
	}
	for _, t := range Tiers {
		res.Tiers[t] = priceTier(subtotal, cfg, t)
	}

	if promo != nil {
		sel := &res.Tiers[draft.Speed]
		rule, ok := ResolvePromo(promo.Code, promo.Rules, PromoContext{Family: draft.Service, OrderGrossCents: sel.GrossCents}, promo.Now)
		if ok {
			discount := rule.DiscountCents(sel.GrossCents)
			applyDiscount(sel, discount)
			b.DiscountCents = discount
			res.Promo = &AppliedPromo{RuleID: rule.ID, Code: normalizeCode(rule.Code), DiscountCents: discount}
		}
	}
	res.Breakdown = b
	return res, nil
}

// ValidateDraft checks ranges and address requirements.
func ValidateDraft(d QuoteDraft) error {
	switch d.Service {
	case FamilyMoving, FamilyDisposal, FamilyAssembly, FamilySpecial, FamilyCombo:
	default:
		return types.Invalid("service", "unknown service family %q", d.Service)
	}
	if !d.Speed.Valid() {
		return types.Invalid("speed", "unknown speed tier %d", int(d.Speed))
	}
	if math.IsNaN(d.VolumeM3) || d.VolumeM3 < minVolumeM3 || d.VolumeM3 > maxVolumeM3 {
		return types.Invalid("volumeM3", "must be between %d and %d", minVolumeM3, maxVolumeM3)
	}
	if d.Floors < 0 || d.Floors > maxFloors {
		return types.Invalid("floors", "must be between 0 and %d", maxFloors)
	}
	if math.IsNaN(d.DistanceKm) || math.IsInf(d.DistanceKm, 0) || d.DistanceKm < 0 {
		return types.Invalid("distanceKm", "must be a non-negative number")
	}
	if d.Service.HasRelocationLeg() {
		if !d.hasFrom() {
			return types.Invalid("from", "required for %s", d.Service)
		}
		if !d.hasTo() {
			return types.Invalid("to", "required for %s", d.Service)
		}
	} else if !d.hasFrom() && !d.hasTo() {
		return types.Invalid("to", "job site address required for %s", d.Service)
	}
	for _, o := range d.Options {
		if o.Code == "" {
			return types.Invalid("options", "empty option code")
		}
		if o.Qty < 1 || o.Qty > maxOptionQty {
			return types.Invalid("options", "quantity for %s must be between 1 and %d", o.Code, maxOptionQty)
		}
	}
	return nil
}

// JobDurationMinutes converts labor hours into a booking length: labor plus
// a 30 minute buffer, rounded up to the hour, at most one day.
func JobDurationMinutes(laborHours float64) int {
	minutes := int(math.Ceil(laborHours*60)) + 30
	minutes = ((minutes + 59) / 60) * 60
	return min(minutes, maxJobMinutes)
}

func volumeRate(cfg *PricingConfig, f ServiceFamily) (decimal.Decimal, error) {
	if f != FamilyCombo {
		t, err := cfg.Tariff(f)
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromInt(t.PerM3Cents), nil
	}
	mv, err := cfg.Tariff(FamilyMoving)
	if err != nil {
		return decimal.Zero, err
	}
	dp, err := cfg.Tariff(FamilyDisposal)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(mv.PerM3Cents + dp.PerM3Cents).Div(decimal.NewFromInt(2)), nil
}

func elevatorDiscount(cfg *PricingConfig, size ElevatorSize) int64 {
	if size == ElevatorLarge {
		return cfg.ElevatorDiscountLargeCents
	}
	return cfg.ElevatorDiscountSmallCents
}

func extrasCents(e Extras, s ExtraSurcharges) int64 {
	var total int64
	if e.Packing {
		total += s.PackingCents
	}
	if e.Stairs {
		total += s.StairsCents
	}
	if e.Express {
		total += s.ExpressCents
	}
	if e.NoParkingZone {
		total += s.NoParkingZoneCents
	}
	if e.DisposalBags {
		total += s.DisposalBagsCents
	}
	return total
}

type resolvedOption struct {
	option ServiceOption
	qty    int64
}

// resolveOptions looks up every selected code. Options of another module
// than the draft's single-location family do not apply and are skipped.
func resolveOptions(d QuoteDraft, catalog Catalog) ([]resolvedOption, error) {
	out := make([]resolvedOption, 0, len(d.Options))
	module := d.Service.Module()
	for _, sel := range d.Options {
		opt, ok := catalog.Lookup(sel.Code)
		if !ok || !opt.Active {
			return nil, types.Misconfigured("service option %q not in catalog", sel.Code)
		}
		if module != "" && opt.Module != module {
			continue
		}
		qty := int64(1)
		if opt.RequiresQuantity {
			qty = int64(max(1, sel.Qty))
		}
		out = append(out, resolvedOption{option: opt, qty: qty})
	}
	return out, nil
}

func familyBaseMinutes(f ServiceFamily) float64 {
	switch f {
	case FamilyMoving:
		return 30
	case FamilyDisposal:
		return 25
	}
	return 45
}

// LaborHoursForVolume estimates crew hours for a plain job of the family and
// volume, without options or stairs.
func LaborHoursForVolume(f ServiceFamily, volumeM3 float64) float64 {
	return estimateLaborHours(QuoteDraft{Service: f, VolumeM3: volumeM3, HasElevator: true}, nil)
}

// estimateLaborHours sums base, volume (5 m³ per hour), option, stair and
// heavy-item minutes and rounds to the quarter hour, at least one hour.
func estimateLaborHours(d QuoteDraft, options []resolvedOption) float64 {
	minutes := familyBaseMinutes(d.Service) + d.VolumeM3*12
	for _, o := range options {
		minutes += float64(int64(o.option.DefaultLaborMinutes) * o.qty)
		if o.option.IsHeavy {
			minutes += float64(8 * o.qty)
		}
	}
	if !d.HasElevator && d.Floors > 0 {
		minutes += float64(6 * d.Floors)
	}
	return max(1, math.Round(minutes/60*4)/4)
}

func priceOptions(d QuoteDraft, cfg *PricingConfig, options []resolvedOption, laborHours float64) (optionCents, heavyCents int64) {
	for _, o := range options {
		price := decimal.NewFromInt(o.option.DefaultPriceCents)
		switch o.option.PricingType {
		case PricingFlat:
			optionCents += o.option.DefaultPriceCents
		case PricingPerUnit:
			optionCents += o.option.DefaultPriceCents * o.qty
		case PricingPerM3:
			volume := decimal.NewFromFloat(d.VolumeM3)
			if o.option.RequiresQuantity {
				volume = decimal.NewFromInt(o.qty)
			}
			optionCents += types.RoundCents(price.Mul(volume))
		case PricingPerHour:
			if o.option.DefaultPriceCents == 0 {
				price = decimal.NewFromInt(cfg.HourlyRateCents)
			}
			optionCents += types.RoundCents(price.Mul(decimal.NewFromFloat(laborHours)))
		}
		if o.option.IsHeavy {
			heavyCents += o.qty * cfg.HeavyItemSurchargeCents
		}
	}
	return optionCents, heavyCents
}

func priceTier(subtotal int64, cfg *PricingConfig, t Tier) TierQuote {
	s := cfg.Tiers[t]
	tierSubtotal := types.MulCents(subtotal, s.Multiplier)
	u := decimal.NewFromFloat(cfg.UncertaintyPercent).Div(hundred)
	base := decimal.NewFromInt(tierSubtotal)

	priceMin := types.RoundCents(base.Mul(decimal.NewFromInt(1).Sub(u)))
	priceMax := types.RoundCents(base.Mul(decimal.NewFromInt(1).Add(u)))
	vat := types.RoundCents(decimal.NewFromInt(priceMax).Mul(vatRate))
	return TierQuote{
		Tier:          t,
		Multiplier:    s.Multiplier,
		LeadDays:      s.LeadDays,
		SubtotalCents: tierSubtotal,
		PriceMinCents: priceMin,
		PriceMaxCents: priceMax,
		NetCents:      priceMax,
		VATCents:      vat,
		GrossCents:    priceMax + vat,
	}
}

// applyDiscount lowers gross and derives net and VAT back from it.
func applyDiscount(q *TierQuote, discount int64) {
	gross := max(0, q.GrossCents-discount)
	net := types.RoundCents(decimal.NewFromInt(gross).Div(grossOf))
	q.DiscountCents = discount
	q.GrossCents = gross
	q.NetCents = net
	q.VATCents = gross - net
}
