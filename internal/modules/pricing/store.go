// README: Pricing store backed by PostgreSQL (active tariff, service-option catalog, promo rules).
package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// ActiveConfig loads the single active tariff. The tariff body is stored as
// JSONB in the shape of PricingConfig.
func (s *Store) ActiveConfig(ctx context.Context) (*PricingConfig, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, tariff, updated_at
		FROM pricing_configs
		WHERE active
		ORDER BY updated_at DESC
		LIMIT 1`)

	var (
		id        string
		cfg       PricingConfig
		updatedAt time.Time
	)
	err := row.Scan(&id, &cfg, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActiveConfig
	}
	if err != nil {
		return nil, fmt.Errorf("load active pricing config: %w", err)
	}
	cfg.ID = id
	cfg.UpdatedAt = updatedAt
	return &cfg, nil
}

func (s *Store) ServiceOptions(ctx context.Context) ([]ServiceOption, error) {
	rows, err := s.db.Query(ctx, `
		SELECT code, module, pricing_type, default_price_cents, default_labor_minutes,
		       default_volume_m3, is_heavy, requires_quantity, active
		FROM service_options
		ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list service options: %w", err)
	}
	defer rows.Close()

	var out []ServiceOption
	for rows.Next() {
		var o ServiceOption
		if err := rows.Scan(
			&o.Code, &o.Module, &o.PricingType, &o.DefaultPriceCents, &o.DefaultLaborMinutes,
			&o.DefaultVolumeM3, &o.IsHeavy, &o.RequiresQuantity, &o.Active,
		); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) PromoRulesByCode(ctx context.Context, code string) ([]PromoRule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, code, module, service_family, discount_kind, discount_value,
		       max_discount_cents, min_order_cents, starts_at, ends_at, active
		FROM promo_rules
		WHERE upper(code) = $1
		ORDER BY created_at DESC`, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, fmt.Errorf("list promo rules: %w", err)
	}
	defer rows.Close()

	var out []PromoRule
	for rows.Next() {
		var (
			r      PromoRule
			module *string
			family *string
		)
		if err := rows.Scan(
			&r.ID, &r.Code, &module, &family, &r.Kind, &r.Value,
			&r.MaxDiscountCents, &r.MinOrderCents, &r.StartsAt, &r.EndsAt, &r.Active,
		); err != nil {
			return nil, err
		}
		if module != nil {
			r.Module = Module(*module)
		}
		if family != nil {
			r.ServiceFamily = ServiceFamily(*family)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
