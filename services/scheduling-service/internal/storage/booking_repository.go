package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/meetslot/libs/db"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/outbox"
)

type BookingRepository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outboxRepo: outboxRepo}
}

const (
	ListUpcoming = "upcoming"
	ListPast     = "past"
)

const selectBookingColumns = `
	SELECT id::text, COALESCE(event_id::text, ''), user_id, name, email, COALESCE(additional_info, ''),
		start_time, end_time, status, cancelled_at, COALESCE(cancellation_reason, ''), created_at
	FROM bookings
`

// ListBusy returns the host's booked intervals overlapping [from, to).
// Cancelled bookings do not block.
func (r *BookingRepository) ListBusy(ctx context.Context, userID string, from, to time.Time) ([]model.Booking, error) {
	return r.query(ctx, selectBookingColumns+`
		WHERE user_id = $1
			AND status = 'booked'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, userID, from, to)
}

// ListByUser returns upcoming bookings soonest first, or past bookings most recent first.
func (r *BookingRepository) ListByUser(ctx context.Context, userID, kind string, now time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	if kind == ListPast {
		return r.query(ctx, selectBookingColumns+`
			WHERE user_id = $1 AND start_time < $2
			ORDER BY start_time DESC
			LIMIT $3
		`, userID, now, limit)
	}
	return r.query(ctx, selectBookingColumns+`
		WHERE user_id = $1 AND start_time >= $2
		ORDER BY start_time ASC
		LIMIT $3
	`, userID, now, limit)
}

// Create stores b as booked and queues the created event in the same transaction.
// An overlapping booked interval for the same host yields ErrSlotTaken.
func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) (model.Booking, error) {
	var out model.Booking
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = insertBooking(ctx, tx, r.outboxRepo, b)
		return err
	})
	if err != nil {
		if isConflict(err) {
			return model.Booking{}, ErrSlotTaken
		}
		return model.Booking{}, err
	}
	return out, nil
}

// insertBooking writes b with a fresh id and its created event inside tx.
// Bookings made from meeting requests have no event and store a NULL event_id.
func insertBooking(ctx context.Context, tx pgx.Tx, outboxRepo *outbox.Repository, b *model.Booking) (model.Booking, error) {
	out := *b
	out.ID = uuid.NewString()
	out.Status = model.BookingStatusBooked

	if err := tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, event_id, user_id, name, email, additional_info, start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, out.ID, nullIfEmpty(out.EventID), out.UserID, out.Name, out.Email, out.AdditionalInfo,
		out.StartTime, out.EndTime, out.Status).Scan(&out.CreatedAt); err != nil {
		return model.Booking{}, err
	}
	evt, err := outbox.BookingCreated(out)
	if err != nil {
		return model.Booking{}, err
	}
	if err := outboxRepo.Insert(ctx, tx, evt); err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Cancel marks the host's booking cancelled. Cancelling twice returns the original record.
func (r *BookingRepository) Cancel(ctx context.Context, userID, bookingID, reason string) (model.Booking, error) {
	var out model.Booking
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx, selectBookingColumns+`
			WHERE id = $1 AND user_id = $2
			FOR UPDATE
		`, bookingID, userID))
		if err != nil {
			if isNotFound(err) {
				return ErrNotFound
			}
			return err
		}
		if b.Status == model.BookingStatusCancelled {
			out = b
			return nil
		}

		var cancelledAt time.Time
		if err := tx.QueryRow(ctx, `
			UPDATE bookings
			SET status = 'cancelled',
				cancelled_at = now(),
				cancellation_reason = $2
			WHERE id = $1
			RETURNING cancelled_at
		`, b.ID, reason).Scan(&cancelledAt); err != nil {
			return err
		}
		b.Status = model.BookingStatusCancelled
		b.CancelledAt = &cancelledAt
		b.CancelReason = reason

		evt, err := outbox.BookingCancelled(b)
		if err != nil {
			return err
		}
		if err := r.outboxRepo.Insert(ctx, tx, evt); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

func (r *BookingRepository) query(ctx context.Context, sql string, args ...any) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return bookings, nil
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var cancelledAt *time.Time
	err := row.Scan(
		&b.ID,
		&b.EventID,
		&b.UserID,
		&b.Name,
		&b.Email,
		&b.AdditionalInfo,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&cancelledAt,
		&b.CancelReason,
		&b.CreatedAt,
	)
	b.CancelledAt = cancelledAt
	return b, err
}
