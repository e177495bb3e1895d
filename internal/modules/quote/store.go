// README: Quote store backed by PostgreSQL; writes are guarded by status_version.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quotecore/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const snapshotColumns = `
	id, status, status_version, draft, promo_code, requested_promo_code, result,
	booking_id, slot_start, slot_end, cancel_reason,
	created_at, updated_at, expires_at`

func (s *Store) Create(ctx context.Context, q *Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO quotes (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		string(q.ID),
		string(q.Status),
		q.StatusVersion,
		q.Draft,
		q.PromoCode,
		q.RequestedPromoCode,
		q.Result,
		bookingID(q.Booking),
		bookingStart(q.Booking),
		bookingEnd(q.Booking),
		q.CancelReason,
		q.CreatedAt,
		q.UpdatedAt,
		q.ExpiresAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Snapshot, error) {
	row := s.db.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM quotes WHERE id = $1`, string(id))
	q, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load quote %s: %w", id, err)
	}
	return q, nil
}

// Update writes q if the stored row is still at (from, version) and bumps
// the version. It reports false when another writer got there first.
func (s *Store) Update(ctx context.Context, q *Snapshot, from Status, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE quotes
		SET status = $1,
		    status_version = status_version + 1,
		    draft = $2,
		    promo_code = $3,
		    requested_promo_code = $4,
		    result = $5,
		    booking_id = $6,
		    slot_start = $7,
		    slot_end = $8,
		    cancel_reason = $9,
		    updated_at = $10
		WHERE id = $11 AND status = $12 AND status_version = $13`,
		string(q.Status),
		q.Draft,
		q.PromoCode,
		q.RequestedPromoCode,
		q.Result,
		bookingID(q.Booking),
		bookingStart(q.Booking),
		bookingEnd(q.Booking),
		q.CancelReason,
		q.UpdatedAt,
		string(q.ID),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO quote_events (
			quote_id, from_status, to_status, actor_type, reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.QuoteID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		e.Reason,
		e.CreatedAt,
	)
	return err
}

// ListDueForExpiry returns unsigned quotes whose expiry has passed.
func (s *Store) ListDueForExpiry(ctx context.Context, now time.Time, limit int) ([]*Snapshot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM quotes
		WHERE status IN ('QUOTE', 'PENDING_SIGNATURE') AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired quotes: %w", err)
	}
	defer rows.Close()

	var out []*Snapshot
	for rows.Next() {
		q, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) Events(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, quote_id, from_status, to_status, actor_type, reason, created_at
		FROM quote_events
		WHERE quote_id = $1
		ORDER BY id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.QuoteID, &e.FromStatus, &e.ToStatus, &e.ActorType, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var (
		q                  Snapshot
		bookingID          *string
		slotStart, slotEnd *time.Time
	)
	err := row.Scan(
		&q.ID, &q.Status, &q.StatusVersion, &q.Draft, &q.PromoCode, &q.RequestedPromoCode, &q.Result,
		&bookingID, &slotStart, &slotEnd, &q.CancelReason,
		&q.CreatedAt, &q.UpdatedAt, &q.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	if bookingID != nil && slotStart != nil && slotEnd != nil {
		q.Booking = &Booking{ID: *bookingID, Start: *slotStart, End: *slotEnd}
	}
	return &q, nil
}

func bookingID(b *Booking) *string {
	if b == nil {
		return nil
	}
	return &b.ID
}

func bookingStart(b *Booking) *time.Time {
	if b == nil {
		return nil
	}
	return &b.Start
}

func bookingEnd(b *Booking) *time.Time {
	if b == nil {
		return nil
	}
	return &b.End
}
