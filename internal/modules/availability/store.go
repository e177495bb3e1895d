// README: Availability store backed by PostgreSQL; booking commit re-checks capacity in a serializable transaction.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"quotecore/internal/types"
)

const (
	pgSerializationFailure = "40001"
	pgUniqueViolation      = "23505"
)

var ErrAlreadyBooked = errors.New("quote already has a booking")

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Rules(ctx context.Context) ([]Rule, error) {
	return loadRules(ctx, s.db)
}

func (s *Store) Exceptions(ctx context.Context, h Horizon) ([]Exception, error) {
	return loadExceptions(ctx, s.db, h)
}

func (s *Store) Bookings(ctx context.Context, from, to time.Time) ([]BookingInterval, error) {
	return loadBookings(ctx, s.db, from, to)
}

// CommitBooking loads the state of the booking's day inside a serializable
// transaction, lets check veto the booking, then inserts it. Concurrent
// commits that would both pass the check fail with ErrCapacityExceeded.
func (s *Store) CommitBooking(ctx context.Context, b *BookingInterval, loc *time.Location, check func(DayState) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	day := civil.DateOf(b.Start.In(loc))
	dayStart := day.In(loc)
	dayEnd := day.AddDays(1).In(loc)

	var state DayState
	if state.Rules, err = loadRules(ctx, tx); err != nil {
		return mapCommitError(err)
	}
	if state.Exceptions, err = loadExceptions(ctx, tx, Horizon{From: day, To: day}); err != nil {
		return mapCommitError(err)
	}
	if state.Bookings, err = loadBookings(ctx, tx, dayStart, maxTime(dayEnd, b.End)); err != nil {
		return mapCommitError(err)
	}
	if err := check(state); err != nil {
		return err
	}

	if b.ID == "" {
		b.ID = string(types.NewID(types.BookingPrefix, time.Now()))
	}
	b.Status = BookingConfirmed
	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (id, quote_id, starts_at, ends_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())`,
		b.ID, string(b.QuoteID), b.Start, b.End, string(b.Status),
	)
	if err != nil {
		return mapCommitError(err)
	}
	return mapCommitError(tx.Commit(ctx))
}

func (s *Store) CancelByQuote(ctx context.Context, quoteID types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE bookings SET status = 'CANCELLED'
		WHERE quote_id = $1 AND status <> 'CANCELLED'`, string(quoteID))
	return err
}

func mapCommitError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure:
			return ErrCapacityExceeded
		case pgUniqueViolation:
			return ErrAlreadyBooked
		}
	}
	return err
}

func loadRules(ctx context.Context, q querier) ([]Rule, error) {
	rows, err := q.Query(ctx, `
		SELECT id, weekday, start_time, end_time, slot_minutes, capacity, active
		FROM availability_rules
		ORDER BY weekday, start_time`)
	if err != nil {
		return nil, fmt.Errorf("list availability rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var (
			r          Rule
			start, end pgtype.Time
		)
		if err := rows.Scan(&r.ID, &r.Weekday, &start, &end, &r.SlotMinutes, &r.Capacity, &r.Active); err != nil {
			return nil, err
		}
		r.Start = clockFromPG(start)
		r.End = clockFromPG(end)
		out = append(out, r)
	}
	return out, rows.Err()
}

func loadExceptions(ctx context.Context, q querier, h Horizon) ([]Exception, error) {
	rows, err := q.Query(ctx, `
		SELECT day, closed, override_capacity, COALESCE(note, '')
		FROM availability_exceptions
		WHERE day BETWEEN $1 AND $2`,
		h.From.In(time.UTC), h.To.In(time.UTC),
	)
	if err != nil {
		return nil, fmt.Errorf("list availability exceptions: %w", err)
	}
	defer rows.Close()

	var out []Exception
	for rows.Next() {
		var (
			ex  Exception
			day time.Time
		)
		if err := rows.Scan(&day, &ex.Closed, &ex.OverrideCapacity, &ex.Note); err != nil {
			return nil, err
		}
		ex.Date = civil.DateOf(day)
		out = append(out, ex)
	}
	return out, rows.Err()
}

func loadBookings(ctx context.Context, q querier, from, to time.Time) ([]BookingInterval, error) {
	rows, err := q.Query(ctx, `
		SELECT id, quote_id, starts_at, ends_at, status
		FROM bookings
		WHERE status <> 'CANCELLED' AND starts_at < $2 AND ends_at > $1
		ORDER BY starts_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var out []BookingInterval
	for rows.Next() {
		var b BookingInterval
		if err := rows.Scan(&b.ID, &b.QuoteID, &b.Start, &b.End, &b.Status); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func clockFromPG(t pgtype.Time) civil.Time {
	d := time.Duration(t.Microseconds) * time.Microsecond
	return civil.Time{
		Hour:   int(d / time.Hour),
		Minute: int(d % time.Hour / time.Minute),
		Second: int(d % time.Minute / time.Second),
	}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
