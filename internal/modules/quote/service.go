// README: Quote service implements lifecycle transitions, recompute gating and expiry.
package quote

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"quotecore/internal/modules/availability"
	"quotecore/internal/modules/pricing"
	"quotecore/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("quote not found")
	ErrConflict     = errors.New("quote state conflict")
)

const expiryBatch = 100

// Repository persists snapshots. *Store is the production implementation.
type Repository interface {
	Create(ctx context.Context, q *Snapshot) error
	Get(ctx context.Context, id types.ID) (*Snapshot, error)
	Update(ctx context.Context, q *Snapshot, from Status, version int) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]*Snapshot, error)
}

type Pricer interface {
	Quote(ctx context.Context, draft pricing.QuoteDraft, promoCode string) (pricing.QuoteResult, error)
}

// Booker commits and releases calendar slots.
type Booker interface {
	Commit(ctx context.Context, cmd availability.BookCommand) (availability.BookingInterval, error)
	Release(ctx context.Context, quoteID types.ID) error
}

type CreateCommand struct {
	Draft     pricing.QuoteDraft
	PromoCode string
}

type RecomputeCommand struct {
	QuoteID   types.ID
	Patch     DraftPatch
	PromoCode *string
}

type ScheduleCommand struct {
	QuoteID types.ID
	Start   time.Time
}

type CancelCommand struct {
	QuoteID   types.ID
	ActorType string
	Reason    string
}

type ServiceDeps struct {
	Repo   Repository
	Pricer Pricer
	Booker Booker
	TTL    time.Duration
	Logger *zap.Logger
}

type Service struct {
	repo   Repository
	pricer Pricer
	booker Booker
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		repo:   deps.Repo,
		pricer: deps.Pricer,
		booker: deps.Booker,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.Named("quote"),
	}
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Snapshot, error) {
	res, err := s.pricer.Quote(ctx, cmd.Draft, cmd.PromoCode)
	if err != nil {
		return nil, err
	}
	now := s.now()
	q := &Snapshot{
		ID:                 types.NewID(types.QuotePrefix, now),
		Status:             StatusQuote,
		StatusVersion:      0,
		Draft:              withResolvedDistance(cmd.Draft, res),
		PromoCode:          appliedCode(res),
		RequestedPromoCode: strings.TrimSpace(cmd.PromoCode),
		Result:             res,
		CreatedAt:          now,
		UpdatedAt:          now,
		ExpiresAt:          now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, q.ID, StatusNone, StatusQuote, "customer", "")
	return q, nil
}

// Get returns a live snapshot. Unknown and expired quotes are both
// reported as ErrNotFound. Only QUOTE and PENDING_SIGNATURE expire on read;
// signed quotes (CONFIRMED, SCHEDULED) are exempt from the expiry clock.
func (s *Service) Get(ctx context.Context, id types.ID) (*Snapshot, error) {
	if !id.HasPrefix(types.QuotePrefix) {
		return nil, ErrNotFound
	}
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.DueForExpiry(s.now()) {
		if err := s.expire(ctx, q); err != nil && !errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, ErrNotFound
	}
	if q.Status == StatusExpired {
		return nil, ErrNotFound
	}
	return q, nil
}

// Recompute applies a draft patch and re-prices. Only QUOTE is editable.
func (s *Service) Recompute(ctx context.Context, cmd RecomputeCommand) (*Snapshot, error) {
	q, err := s.Get(ctx, cmd.QuoteID)
	if err != nil {
		return nil, err
	}
	if q.Status != StatusQuote {
		return nil, ErrInvalidState
	}
	draft := cmd.Patch.Apply(q.Draft)
	code := q.RequestedPromoCode
	if cmd.PromoCode != nil {
		code = strings.TrimSpace(*cmd.PromoCode)
	}
	res, err := s.pricer.Quote(ctx, draft, code)
	if err != nil {
		return nil, err
	}

	next := *q
	next.Draft = withResolvedDistance(draft, res)
	next.PromoCode = appliedCode(res)
	next.RequestedPromoCode = code
	next.Result = res
	next.UpdatedAt = s.now()
	ok, err := s.repo.Update(ctx, &next, q.Status, q.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	next.StatusVersion++
	return &next, nil
}

func (s *Service) RequestSignature(ctx context.Context, id types.ID) (*Snapshot, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, q, StatusPendingSignature, "customer", "", nil)
}

func (s *Service) Confirm(ctx context.Context, id types.ID) (*Snapshot, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, q, StatusConfirmed, "customer", "", nil)
}

// Schedule commits a booking for the confirmed quote and moves it to
// SCHEDULED. The booking is released again if the transition loses a race.
func (s *Service) Schedule(ctx context.Context, cmd ScheduleCommand) (*Snapshot, error) {
	q, err := s.Get(ctx, cmd.QuoteID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(q.Status, StatusScheduled) {
		return nil, ErrInvalidState
	}
	b, err := s.booker.Commit(ctx, availability.BookCommand{
		QuoteID:            q.ID,
		Start:              cmd.Start,
		JobDurationMinutes: q.Result.JobDurationMinutes,
		Speed:              q.Draft.Speed,
	})
	if err != nil {
		return nil, err
	}
	next, err := s.transition(ctx, q, StatusScheduled, "customer", "", func(n *Snapshot) {
		n.Booking = &Booking{ID: b.ID, Start: b.Start, End: b.End}
	})
	if err != nil {
		if rerr := s.booker.Release(context.WithoutCancel(ctx), q.ID); rerr != nil {
			s.logger.Error("release booking after failed schedule", zap.String("quote_id", string(q.ID)), zap.Error(rerr))
		}
		return nil, err
	}
	return next, nil
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Snapshot, error) {
	q, err := s.Get(ctx, cmd.QuoteID)
	if err != nil {
		return nil, err
	}
	actor := cmd.ActorType
	if actor == "" {
		actor = "customer"
	}
	next, err := s.transition(ctx, q, StatusCancelled, actor, cmd.Reason, func(n *Snapshot) {
		if cmd.Reason != "" {
			reason := cmd.Reason
			n.CancelReason = &reason
		}
	})
	if err != nil {
		return nil, err
	}
	if q.Booking != nil && s.booker != nil {
		if err := s.booker.Release(ctx, q.ID); err != nil {
			s.logger.Error("release booking", zap.String("quote_id", string(q.ID)), zap.Error(err))
		}
	}
	return next, nil
}

// ExpireDue moves every overdue unsigned quote to EXPIRED and returns how
// many were expired.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	expired := 0
	for {
		due, err := s.repo.ListDueForExpiry(ctx, s.now(), expiryBatch)
		if err != nil {
			return expired, err
		}
		progressed := false
		for _, q := range due {
			err := s.expire(ctx, q)
			if errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidState) {
				continue
			}
			if err != nil {
				return expired, err
			}
			expired++
			progressed = true
		}
		if len(due) < expiryBatch || !progressed {
			return expired, nil
		}
	}
}

func (s *Service) RunExpiryMonitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.ExpireDue(ctx)
			if err != nil {
				s.logger.Error("expire quotes", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("quotes expired", zap.Int("count", n))
			}
		}
	}
}

func (s *Service) expire(ctx context.Context, q *Snapshot) error {
	_, err := s.transition(ctx, q, StatusExpired, "system", "ttl", nil)
	return err
}

func (s *Service) transition(ctx context.Context, q *Snapshot, to Status, actor, reason string, mutate func(*Snapshot)) (*Snapshot, error) {
	if !CanTransition(q.Status, to) {
		return nil, ErrInvalidState
	}
	next := *q
	next.Status = to
	next.UpdatedAt = s.now()
	if mutate != nil {
		mutate(&next)
	}
	ok, err := s.repo.Update(ctx, &next, q.Status, q.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	next.StatusVersion++
	s.appendEvent(ctx, q.ID, q.Status, to, actor, reason)
	s.logger.Info("quote transitioned",
		zap.String("quote_id", string(q.ID)),
		zap.String("from", string(q.Status)),
		zap.String("to", string(to)),
	)
	return &next, nil
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, actor, reason string) {
	err := s.repo.AppendEvent(ctx, &Event{
		QuoteID:    id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actor,
		Reason:     reason,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.logger.Warn("append quote event", zap.String("quote_id", string(id)), zap.Error(err))
	}
}

func withResolvedDistance(d pricing.QuoteDraft, res pricing.QuoteResult) pricing.QuoteDraft {
	d.DistanceKm = res.DistanceKm
	d.DistanceSource = res.DistanceSource
	return d
}

// appliedCode keeps the promo code only when it produced a discount.
func appliedCode(res pricing.QuoteResult) string {
	if res.Promo == nil {
		return ""
	}
	return res.Promo.Code
}
