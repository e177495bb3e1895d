// README: Pricing inputs (draft, tariff, catalog, promo rules) and the tiered quote result.
package pricing

import (
	"fmt"
	"strings"
	"time"

	"quotecore/internal/types"
)

type ServiceFamily string

const (
	FamilyMoving   ServiceFamily = "MOVING"
	FamilyDisposal ServiceFamily = "DISPOSAL"
	FamilyAssembly ServiceFamily = "ASSEMBLY"
	FamilySpecial  ServiceFamily = "SPECIAL"
	FamilyCombo    ServiceFamily = "COMBO"
)

// ParseServiceFamily accepts the canonical names plus the German module names.
func ParseServiceFamily(s string) (ServiceFamily, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MOVING", "UMZUG":
		return FamilyMoving, nil
	case "DISPOSAL", "ENTSORGUNG":
		return FamilyDisposal, nil
	case "ASSEMBLY", "MONTAGE":
		return FamilyAssembly, nil
	case "SPECIAL", "SPEZIALSERVICE":
		return FamilySpecial, nil
	case "COMBO", "BOTH":
		return FamilyCombo, nil
	}
	return "", types.Invalid("service", "unknown service family %q", s)
}

// UnmarshalText maps German aliases to the canonical family. Unknown names are
// kept as sent so ValidateDraft reports them against the service field.
func (f *ServiceFamily) UnmarshalText(b []byte) error {
	v, err := ParseServiceFamily(string(b))
	if err != nil {
		*f = ServiceFamily(strings.TrimSpace(string(b)))
		return nil
	}
	*f = v
	return nil
}

// HasRelocationLeg reports whether the family always moves goods between two addresses.
func (f ServiceFamily) HasRelocationLeg() bool {
	return f == FamilyMoving || f == FamilyCombo
}

// Module is the catalog module a single-location family books against.
func (f ServiceFamily) Module() Module {
	switch f {
	case FamilyDisposal:
		return ModuleDisposal
	case FamilyAssembly:
		return ModuleAssembly
	case FamilySpecial:
		return ModuleSpecial
	}
	return ""
}

type Module string

const (
	ModuleAssembly Module = "MONTAGE"
	ModuleDisposal Module = "ENTSORGUNG"
	ModuleSpecial  Module = "SPECIAL"
)

type Tier int

const (
	TierEconomy Tier = iota
	TierStandard
	TierExpress
)

const TierCount = 3

var Tiers = [TierCount]Tier{TierEconomy, TierStandard, TierExpress}

func (t Tier) String() string {
	switch t {
	case TierEconomy:
		return "ECONOMY"
	case TierStandard:
		return "STANDARD"
	case TierExpress:
		return "EXPRESS"
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

func (t Tier) Valid() bool {
	return t >= TierEconomy && t <= TierExpress
}

// ParseTier maps a tier name; empty selects STANDARD.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ECONOMY":
		return TierEconomy, nil
	case "", "STANDARD":
		return TierStandard, nil
	case "EXPRESS":
		return TierExpress, nil
	}
	return 0, types.Invalid("speed", "unknown speed tier %q", s)
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

type ElevatorSize string

const (
	ElevatorSmall ElevatorSize = "SMALL"
	ElevatorLarge ElevatorSize = "LARGE"
)

// Extras is the closed set of boolean add-ons a customer can tick.
type Extras struct {
	Packing       bool `json:"packing"`
	Stairs        bool `json:"stairs"`
	Express       bool `json:"express"`
	NoParkingZone bool `json:"noParkingZone"`
	DisposalBags  bool `json:"disposalBags"`
}

type SelectedOption struct {
	Code string `json:"code"`
	Qty  int    `json:"qty"`
}

type QuoteDraft struct {
	Service        ServiceFamily        `json:"service"`
	Speed          Tier                 `json:"speed"`
	VolumeM3       float64              `json:"volumeM3"`
	Floors         int                  `json:"floors"`
	HasElevator    bool                 `json:"hasElevator"`
	ElevatorSize   ElevatorSize         `json:"elevatorSize,omitempty"`
	NoParking      bool                 `json:"noParking"`
	From           *types.Address       `json:"from,omitempty"`
	To             *types.Address       `json:"to,omitempty"`
	Extras         Extras               `json:"extras"`
	Options        []SelectedOption     `json:"options,omitempty"`
	DistanceKm     float64              `json:"distanceKm"`
	DistanceSource types.DistanceSource `json:"distanceSource,omitempty"`
}

func (d QuoteDraft) hasFrom() bool { return d.From != nil && !d.From.IsZero() }
func (d QuoteDraft) hasTo() bool   { return d.To != nil && !d.To.IsZero() }

// NeedsDrive reports whether the draft carries a drive leg.
func (d QuoteDraft) NeedsDrive() bool {
	if d.Service.HasRelocationLeg() {
		return true
	}
	return d.hasFrom() && d.hasTo()
}

// FamilyTariff is the base fee, volume rate and minimum order for one service family.
type FamilyTariff struct {
	BaseFeeCents      int64 `json:"baseFeeCents"`
	PerM3Cents        int64 `json:"perM3Cents"`
	MinimumOrderCents int64 `json:"minimumOrderCents"`
}

type TierSettings struct {
	Multiplier float64 `json:"multiplier"`
	LeadDays   int     `json:"leadDays"`
}

type ExtraSurcharges struct {
	PackingCents       int64 `json:"packingCents"`
	StairsCents        int64 `json:"stairsCents"`
	ExpressCents       int64 `json:"expressCents"`
	NoParkingZoneCents int64 `json:"noParkingZoneCents"`
	DisposalBagsCents  int64 `json:"disposalBagsCents"`
}

// DefaultExtraSurcharges prices packing only; the other extras are already
// covered by floors, tier and the parking flag unless a tariff sets them.
func DefaultExtraSurcharges() ExtraSurcharges {
	return ExtraSurcharges{PackingCents: 2500}
}

// PricingConfig is the active tariff. It is read, never mutated, by Calculate.
type PricingConfig struct {
	ID                           string                         `json:"id"`
	Currency                     string                         `json:"currency"`
	Families                     map[ServiceFamily]FamilyTariff `json:"families"`
	StairsSurchargePerFloorCents int64                          `json:"stairsSurchargePerFloorCents"`
	NoParkingSurchargeCents      int64                          `json:"noParkingSurchargeCents"`
	ElevatorDiscountSmallCents   int64                          `json:"elevatorDiscountSmallCents"`
	ElevatorDiscountLargeCents   int64                          `json:"elevatorDiscountLargeCents"`
	PerKmCents                   int64                          `json:"perKmCents"`
	MinDriveCents                int64                          `json:"minDriveCents"`
	HeavyItemSurchargeCents      int64                          `json:"heavyItemSurchargeCents"`
	HourlyRateCents              int64                          `json:"hourlyRateCents"`
	UncertaintyPercent           float64                        `json:"uncertaintyPercent"`
	Tiers                        [TierCount]TierSettings        `json:"tiers"`
	Extras                       ExtraSurcharges                `json:"extras"`
	UpdatedAt                    time.Time                      `json:"updatedAt"`
}

// Tariff resolves the family tariff. For COMBO the base fees are summed and the
// volume rate is left to volumeRate, which averages both families.
func (c *PricingConfig) Tariff(f ServiceFamily) (FamilyTariff, error) {
	if f == FamilyCombo {
		mv, err := c.Tariff(FamilyMoving)
		if err != nil {
			return FamilyTariff{}, err
		}
		dp, err := c.Tariff(FamilyDisposal)
		if err != nil {
			return FamilyTariff{}, err
		}
		return FamilyTariff{
			BaseFeeCents:      mv.BaseFeeCents + dp.BaseFeeCents,
			MinimumOrderCents: max(mv.MinimumOrderCents, dp.MinimumOrderCents),
		}, nil
	}
	t, ok := c.Families[f]
	if !ok {
		return FamilyTariff{}, types.Misconfigured("no tariff for service family %s", f)
	}
	return t, nil
}

// Validate rejects tariffs that would produce meaningless prices.
func (c *PricingConfig) Validate() error {
	if c.UncertaintyPercent < 0 || c.UncertaintyPercent > 50 {
		return types.Misconfigured("uncertainty %.2f%% outside 0..50", c.UncertaintyPercent)
	}
	for _, t := range Tiers {
		s := c.Tiers[t]
		if s.Multiplier <= 0 {
			return types.Misconfigured("tier %s multiplier must be positive", t)
		}
		if s.LeadDays < 0 {
			return types.Misconfigured("tier %s lead days must not be negative", t)
		}
	}
	if c.PerKmCents < 0 || c.MinDriveCents < 0 {
		return types.Misconfigured("drive rates must not be negative")
	}
	for f, t := range c.Families {
		if t.BaseFeeCents < 0 || t.PerM3Cents < 0 || t.MinimumOrderCents < 0 {
			return types.Misconfigured("tariff for %s has negative amounts", f)
		}
	}
	return nil
}

type PricingType string

const (
	PricingFlat    PricingType = "FLAT"
	PricingPerUnit PricingType = "PER_UNIT"
	PricingPerM3   PricingType = "PER_M3"
	PricingPerHour PricingType = "PER_HOUR"
)

// ServiceOption is a catalog entry a draft can select by code.
type ServiceOption struct {
	Code                string      `json:"code"`
	Module              Module      `json:"module"`
	PricingType         PricingType `json:"pricingType"`
	DefaultPriceCents   int64       `json:"defaultPriceCents"`
	DefaultLaborMinutes int         `json:"defaultLaborMinutes"`
	DefaultVolumeM3     float64     `json:"defaultVolumeM3"`
	IsHeavy             bool        `json:"isHeavy"`
	RequiresQuantity    bool        `json:"requiresQuantity"`
	Active              bool        `json:"active"`
}

// Catalog indexes service options by code.
type Catalog map[string]ServiceOption

func NewCatalog(options []ServiceOption) Catalog {
	c := make(Catalog, len(options))
	for _, o := range options {
		c[strings.ToUpper(strings.TrimSpace(o.Code))] = o
	}
	return c
}

func (c Catalog) Lookup(code string) (ServiceOption, bool) {
	o, ok := c[strings.ToUpper(strings.TrimSpace(code))]
	return o, ok
}

type DiscountKind string

const (
	DiscountPercent DiscountKind = "PERCENT"
	DiscountFlat    DiscountKind = "FLAT_CENTS"
)

type PromoRule struct {
	ID               string        `json:"id"`
	Code             string        `json:"code"`
	Module           Module        `json:"module,omitempty"`
	ServiceFamily    ServiceFamily `json:"serviceFamily,omitempty"`
	Kind             DiscountKind  `json:"kind"`
	Value            float64       `json:"value"`
	MaxDiscountCents *int64        `json:"maxDiscountCents,omitempty"`
	MinOrderCents    int64         `json:"minOrderCents"`
	StartsAt         *time.Time    `json:"startsAt,omitempty"`
	EndsAt           *time.Time    `json:"endsAt,omitempty"`
	Active           bool          `json:"active"`
}

// PromoRequest asks Calculate to apply a code from the given rule set.
type PromoRequest struct {
	Code  string
	Rules []PromoRule
	Now   time.Time
}

type AppliedPromo struct {
	RuleID        string `json:"ruleId"`
	Code          string `json:"code"`
	DiscountCents int64  `json:"discountCents"`
}

type Breakdown struct {
	BaseFeeCents             int64 `json:"baseFeeCents"`
	VolumeCents              int64 `json:"volumeCents"`
	FloorSurchargeCents      int64 `json:"floorSurchargeCents"`
	ParkingSurchargeCents    int64 `json:"parkingSurchargeCents"`
	ElevatorDiscountCents    int64 `json:"elevatorDiscountCents"`
	ExtrasCents              int64 `json:"extrasCents"`
	ServiceOptionsCents      int64 `json:"serviceOptionsCents"`
	HeavyItemCents           int64 `json:"heavyItemCents"`
	AddonCents               int64 `json:"addonCents"`
	DriveChargeCents         int64 `json:"driveChargeCents"`
	MinimumOrderAppliedCents int64 `json:"minimumOrderAppliedCents"`
	DiscountCents            int64 `json:"discountCents"`
	SubtotalCents            int64 `json:"subtotalCents"`
}

type TierQuote struct {
	Tier          Tier    `json:"tier"`
	Multiplier    float64 `json:"multiplier"`
	LeadDays      int     `json:"leadDays"`
	SubtotalCents int64   `json:"subtotalCents"`
	PriceMinCents int64   `json:"priceMinCents"`
	PriceMaxCents int64   `json:"priceMaxCents"`
	NetCents      int64   `json:"netCents"`
	VATCents      int64   `json:"vatCents"`
	GrossCents    int64   `json:"grossCents"`
	DiscountCents int64   `json:"discountCents"`
}

type QuoteResult struct {
	Currency           string               `json:"currency"`
	Selected           Tier                 `json:"selected"`
	Tiers              [TierCount]TierQuote `json:"tiers"`
	Breakdown          Breakdown            `json:"breakdown"`
	Promo              *AppliedPromo        `json:"promo,omitempty"`
	VolumeM3           float64              `json:"volumeM3"`
	LaborHours         float64              `json:"laborHours"`
	JobDurationMinutes int                  `json:"jobDurationMinutes"`
	DistanceKm         float64              `json:"distanceKm"`
	DistanceSource     types.DistanceSource `json:"distanceSource,omitempty"`
}

// SelectedQuote returns the tier the customer asked for.
func (r QuoteResult) SelectedQuote() TierQuote {
	return r.Tiers[r.Selected]
}
