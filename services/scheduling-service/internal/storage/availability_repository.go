package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/meetslot/libs/db"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/model"
)

type AvailabilityRepository struct {
	pool *db.Pool
}

func NewAvailabilityRepository(pool *db.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool}
}

func (r *AvailabilityRepository) GetByUser(ctx context.Context, userID string) (*model.WeeklyAvailability, error) {
	avail := &model.WeeklyAvailability{UserID: userID}
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, time_gap
		FROM availability
		WHERE user_id = $1
	`, userID).Scan(&avail.ID, &avail.TimeGap)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT day, is_available, start_time, end_time
		FROM availability_days
		WHERE availability_id = $1
	`, avail.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		day := &model.DayAvailability{}
		if err := rows.Scan(&name, &day.IsAvailable, &day.StartTime, &day.EndTime); err != nil {
			return nil, err
		}
		wd, ok := model.ParseWeekday(name)
		if !ok {
			return nil, fmt.Errorf("availability %s: unknown day %q", avail.ID, name)
		}
		avail.SetDay(wd, day)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return avail, nil
}

// Upsert stores avail as the user's only template, replacing every day row.
func (r *AvailabilityRepository) Upsert(ctx context.Context, userID string, avail *model.WeeklyAvailability) (*model.WeeklyAvailability, error) {
	var id string
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO availability (id, user_id, time_gap)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE
			SET time_gap = EXCLUDED.time_gap,
				updated_at = now()
			RETURNING id::text
		`, uuid.NewString(), userID, avail.TimeGap).Scan(&id); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM availability_days WHERE availability_id = $1`, id); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, wd := range model.Weekdays {
			day := avail.Day(wd)
			if day == nil {
				day = &model.DayAvailability{}
			}
			batch.Queue(`
				INSERT INTO availability_days (availability_id, day, is_available, start_time, end_time)
				VALUES ($1, $2, $3, $4, $5)
			`, id, model.WeekdayName(wd), day.IsAvailable, day.StartTime, day.EndTime)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, err
	}

	out := *avail
	out.ID = id
	out.UserID = userID
	return &out, nil
}

func (r *AvailabilityRepository) DeleteByUser(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM availability WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
