package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrSlotTaken   = errors.New("time slot already booked")
	ErrHasBookings = errors.New("event has active bookings")
	ErrNotPending  = errors.New("meeting request is not pending")
	ErrExpired     = errors.New("meeting request start time has passed")
)

const (
	pgExclusionViolation = "23P01"
	pgInvalidText        = "22P02"
)

// isConflict reports an exclusion-constraint violation, raised when two booked
// intervals for one host overlap.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}

// isNotFound also covers malformed uuids, which can never match a row.
func isNotFound(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgInvalidText
}
