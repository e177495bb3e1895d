// README: Availability service; loads schedule data, applies lead times and commits bookings.
package availability

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"quotecore/internal/modules/pricing"
	"quotecore/internal/types"
)

const DefaultMaxSlots = 80

// Repository is the schedule store. *Store is the production implementation.
type Repository interface {
	Rules(ctx context.Context) ([]Rule, error)
	Exceptions(ctx context.Context, h Horizon) ([]Exception, error)
	Bookings(ctx context.Context, from, to time.Time) ([]BookingInterval, error)
	CommitBooking(ctx context.Context, b *BookingInterval, loc *time.Location, check func(DayState) error) error
	CancelByQuote(ctx context.Context, quoteID types.ID) error
}

// LeadTimes reports the minimum lead time per speed tier.
type LeadTimes interface {
	LeadDays(ctx context.Context, tier pricing.Tier) (int, error)
}

// Holds is a best-effort lock per slot start.
type Holds interface {
	Acquire(ctx context.Context, start time.Time, owner string) (bool, error)
	Release(ctx context.Context, start time.Time, owner string) error
}

type SlotQuery struct {
	From               civil.Date
	To                 civil.Date
	Speed              pricing.Tier
	JobDurationMinutes int
	VolumeM3           float64
}

type SlotsResult struct {
	Slots              []Slot `json:"slots"`
	Fallback           bool   `json:"fallback"`
	LeadDays           int    `json:"leadDays"`
	JobDurationMinutes int    `json:"jobDurationMinutes"`
}

type BookCommand struct {
	QuoteID            types.ID
	Start              time.Time
	JobDurationMinutes int
	Speed              pricing.Tier
}

type ServiceDeps struct {
	Repo           Repository
	Leads          LeadTimes
	Holds          Holds
	Location       *time.Location
	MaxHorizonDays int
	MaxSlots       int
	Logger         *zap.Logger
}

type Service struct {
	repo       Repository
	leads      LeadTimes
	holds      Holds
	engine     Engine
	maxHorizon int
	logger     *zap.Logger
}

func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxSlots := deps.MaxSlots
	if maxSlots <= 0 {
		maxSlots = DefaultMaxSlots
	}
	maxHorizon := deps.MaxHorizonDays
	if maxHorizon <= 0 {
		maxHorizon = 365
	}
	return &Service{
		repo:       deps.Repo,
		leads:      deps.Leads,
		holds:      deps.Holds,
		engine:     Engine{Location: deps.Location, MaxResults: maxSlots},
		maxHorizon: maxHorizon,
		logger:     logger.Named("availability"),
	}
}

// Location is the business timezone slots are computed in.
func (s *Service) Location() *time.Location {
	return s.engine.location()
}

// Slots lists bookable start times in the query horizon. Without any active
// rule the fallback schedule is used and the result is flagged.
func (s *Service) Slots(ctx context.Context, q SlotQuery) (SlotsResult, error) {
	h := Horizon{From: q.From, To: q.To}
	if !h.From.IsValid() || !h.To.IsValid() {
		return SlotsResult{}, types.Invalid("from", "from and to must be calendar dates")
	}
	if h.To.Before(h.From) {
		return SlotsResult{}, types.Invalid("to", "to %s is before from %s", h.To, h.From)
	}
	if h.Days() > s.maxHorizon {
		return SlotsResult{}, types.Invalid("to", "horizon of %d days exceeds %d", h.Days(), s.maxHorizon)
	}
	duration, err := jobDuration(q.JobDurationMinutes, q.VolumeM3)
	if err != nil {
		return SlotsResult{}, err
	}
	leadDays, err := s.leadDays(ctx, q.Speed)
	if err != nil {
		return SlotsResult{}, err
	}

	rules, fallback, err := s.rules(ctx)
	if err != nil {
		return SlotsResult{}, err
	}
	exceptions, err := s.repo.Exceptions(ctx, h)
	if err != nil {
		return SlotsResult{}, err
	}
	loc := s.Location()
	bookings, err := s.repo.Bookings(ctx, h.From.In(loc), h.To.AddDays(1).In(loc))
	if err != nil {
		return SlotsResult{}, err
	}

	slots := s.engine.ComputeSlots(rules, exceptions, bookings, h, duration, leadDays)
	if slots == nil {
		slots = []Slot{}
	}
	if fallback {
		s.logger.Info("no active availability rules, using fallback schedule")
	}
	return SlotsResult{
		Slots:              slots,
		Fallback:           fallback,
		LeadDays:           leadDays,
		JobDurationMinutes: duration,
	}, nil
}

// Commit books start for the quote if the slot is still offered when
// re-checked inside the store transaction.
func (s *Service) Commit(ctx context.Context, cmd BookCommand) (BookingInterval, error) {
	if cmd.QuoteID == "" {
		return BookingInterval{}, types.Invalid("quoteId", "required")
	}
	if cmd.Start.IsZero() {
		return BookingInterval{}, types.Invalid("start", "required")
	}
	if cmd.JobDurationMinutes <= 0 {
		return BookingInterval{}, types.Invalid("jobDurationMinutes", "must be positive")
	}
	leadDays, err := s.leadDays(ctx, cmd.Speed)
	if err != nil {
		return BookingInterval{}, err
	}

	owner := string(cmd.QuoteID)
	if s.holds != nil {
		ok, err := s.holds.Acquire(ctx, cmd.Start, owner)
		switch {
		case err != nil:
			s.logger.Warn("slot hold unavailable", zap.Error(err))
		case !ok:
			return BookingInterval{}, ErrSlotHeld
		default:
			defer func() {
				if err := s.holds.Release(context.WithoutCancel(ctx), cmd.Start, owner); err != nil {
					s.logger.Warn("release slot hold", zap.Error(err))
				}
			}()
		}
	}

	b := &BookingInterval{
		QuoteID: cmd.QuoteID,
		Start:   cmd.Start,
		End:     cmd.Start.Add(time.Duration(cmd.JobDurationMinutes) * time.Minute),
	}
	check := func(state DayState) error {
		if len(activeRules(state.Rules)) == 0 {
			state.Rules = FallbackRules()
		}
		return s.engine.CheckCommit(state, cmd.Start, cmd.JobDurationMinutes, leadDays)
	}
	if err := s.repo.CommitBooking(ctx, b, s.Location(), check); err != nil {
		return BookingInterval{}, err
	}
	s.logger.Info("booking committed",
		zap.String("quote_id", string(b.QuoteID)),
		zap.String("booking_id", b.ID),
		zap.Time("start", b.Start),
	)
	return *b, nil
}

// Release cancels the live booking of a quote, if any.
func (s *Service) Release(ctx context.Context, quoteID types.ID) error {
	return s.repo.CancelByQuote(ctx, quoteID)
}

func (s *Service) rules(ctx context.Context) ([]Rule, bool, error) {
	all, err := s.repo.Rules(ctx)
	if err != nil {
		return nil, false, err
	}
	active := activeRules(all)
	if len(active) == 0 {
		return FallbackRules(), true, nil
	}
	for _, r := range active {
		if r.SlotMinutes <= 0 {
			return nil, false, types.Invalid("slotMinutes", "rule %s has slot length %d", r.ID, r.SlotMinutes)
		}
	}
	return active, false, nil
}

func (s *Service) leadDays(ctx context.Context, tier pricing.Tier) (int, error) {
	if s.leads == nil {
		return 0, nil
	}
	return s.leads.LeadDays(ctx, tier)
}

func jobDuration(minutes int, volumeM3 float64) (int, error) {
	switch {
	case minutes < 0:
		return 0, types.Invalid("duration_minutes", "must not be negative")
	case minutes > 0:
		return minutes, nil
	case volumeM3 > 0:
		return pricing.JobDurationMinutes(pricing.LaborHoursForVolume(pricing.FamilyMoving, volumeM3)), nil
	}
	return 0, types.Invalid("duration_minutes", "duration or volume is required")
}
