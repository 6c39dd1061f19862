package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/meetslot/libs/db"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/model"
)

type EventRepository struct {
	pool *db.Pool
}

func NewEventRepository(pool *db.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Create(ctx context.Context, evt *model.Event) (model.Event, error) {
	out := *evt
	out.ID = uuid.NewString()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO events (id, user_id, title, description, duration_minutes, is_private)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, out.ID, out.UserID, out.Title, out.Description, out.DurationMinutes, out.IsPrivate).Scan(&out.CreatedAt)
	if err != nil {
		return model.Event{}, err
	}
	return out, nil
}

const selectEventColumns = `
	SELECT e.id::text, e.user_id, e.title, e.description, e.duration_minutes, e.is_private,
		(SELECT count(*) FROM bookings b WHERE b.event_id = e.id AND b.status = 'booked'),
		e.created_at
	FROM events e
`

func (r *EventRepository) Get(ctx context.Context, eventID string) (model.Event, error) {
	evt, err := scanEvent(r.pool.QueryRow(ctx, selectEventColumns+`WHERE e.id = $1`, eventID))
	if err != nil {
		if isNotFound(err) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, err
	}
	return evt, nil
}

func (r *EventRepository) ListByUser(ctx context.Context, userID string) ([]model.Event, error) {
	return r.list(ctx, selectEventColumns+`
		WHERE e.user_id = $1
		ORDER BY e.created_at DESC
	`, userID)
}

// ListPublicByUser returns the host's events that guests may browse. Private events stay
// bookable through a direct event id but are not listed.
func (r *EventRepository) ListPublicByUser(ctx context.Context, userID string) ([]model.Event, error) {
	return r.list(ctx, selectEventColumns+`
		WHERE e.user_id = $1 AND NOT e.is_private
		ORDER BY e.created_at DESC
	`, userID)
}

// Update replaces the editable fields of the caller's event.
func (r *EventRepository) Update(ctx context.Context, userID string, evt *model.Event) (model.Event, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE events
		SET title = $3, description = $4, duration_minutes = $5, is_private = $6
		WHERE id = $1 AND user_id = $2
	`, evt.ID, userID, evt.Title, evt.Description, evt.DurationMinutes, evt.IsPrivate)
	if err != nil {
		if isNotFound(err) {
			return model.Event{}, ErrNotFound
		}
		return model.Event{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Event{}, ErrNotFound
	}
	return r.Get(ctx, evt.ID)
}

func (r *EventRepository) list(ctx context.Context, sql string, args ...any) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// Delete removes the caller's event unless it still has upcoming booked meetings.
func (r *EventRepository) Delete(ctx context.Context, userID, eventID string) error {
	return r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `
			SELECT id::text FROM events
			WHERE id = $1 AND user_id = $2
			FOR UPDATE
		`, eventID, userID).Scan(&id)
		if err != nil {
			if isNotFound(err) {
				return ErrNotFound
			}
			return err
		}

		var active int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM bookings
			WHERE event_id = $1 AND status = 'booked' AND end_time > now()
		`, id).Scan(&active); err != nil {
			return err
		}
		if active > 0 {
			return ErrHasBookings
		}

		_, err = tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
		return err
	})
}

func scanEvent(row pgx.Row) (model.Event, error) {
	var evt model.Event
	err := row.Scan(
		&evt.ID,
		&evt.UserID,
		&evt.Title,
		&evt.Description,
		&evt.DurationMinutes,
		&evt.IsPrivate,
		&evt.BookingCount,
		&evt.CreatedAt,
	)
	return evt, err
}
