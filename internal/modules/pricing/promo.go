// README: Promo code resolution and bounded discount computation.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"quotecore/internal/types"
)

type PromoContext struct {
	Family          ServiceFamily
	OrderGrossCents int64
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ResolvePromo finds the rule for code that applies to ctx at now. Any rule
// that fails a check is treated as absent.
func ResolvePromo(code string, rules []PromoRule, ctx PromoContext, now time.Time) (PromoRule, bool) {
	code = normalizeCode(code)
	if code == "" {
		return PromoRule{}, false
	}
	for _, r := range rules {
		if normalizeCode(r.Code) != code {
			continue
		}
		if r.applies(ctx, now) {
			return r, true
		}
	}
	return PromoRule{}, false
}

func (r PromoRule) applies(ctx PromoContext, now time.Time) bool {
	if !r.Active {
		return false
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return false
	}
	if r.Module != "" && r.Module != ctx.Family.Module() {
		return false
	}
	if r.ServiceFamily != "" && r.ServiceFamily != ctx.Family {
		return false
	}
	return ctx.OrderGrossCents >= max(0, r.MinOrderCents)
}

// DiscountCents computes the discount against grossCents, capped first by
// the rule maximum and then by the gross itself.
func (r PromoRule) DiscountCents(grossCents int64) int64 {
	if grossCents <= 0 {
		return 0
	}
	var discount int64
	switch r.Kind {
	case DiscountPercent:
		pct := decimal.NewFromFloat(min(max(r.Value, 0), 100))
		discount = types.RoundCents(decimal.NewFromInt(grossCents).Mul(pct).Div(decimal.NewFromInt(100)))
	case DiscountFlat:
		discount = types.RoundCents(decimal.NewFromFloat(max(r.Value, 0)))
	}
	if r.MaxDiscountCents != nil {
		discount = min(discount, max(0, *r.MaxDiscountCents))
	}
	return min(discount, grossCents)
}
