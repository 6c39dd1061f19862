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

type MeetingRequestRepository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewMeetingRequestRepository(pool *db.Pool, outboxRepo *outbox.Repository) *MeetingRequestRepository {
	return &MeetingRequestRepository{pool: pool, outboxRepo: outboxRepo}
}

// Mailbox selects which side of a user's meeting requests to list.
const (
	MailboxPending  = "pending"  // received and still pending
	MailboxReceived = "received" // every request addressed to the user
	MailboxSent     = "sent"     // every request the user made
)

const selectMeetingRequestColumns = `
	SELECT id::text, requester_id, requester_name, requester_email, receiver_id, title,
		COALESCE(description, ''), start_time, end_time, status,
		COALESCE(rejection_reason, ''), COALESCE(booking_id::text, ''), created_at, updated_at
	FROM meeting_requests
`

// Create stores m as pending and queues the created event for the receiver's notification.
func (r *MeetingRequestRepository) Create(ctx context.Context, m *model.MeetingRequest) (model.MeetingRequest, error) {
	out := *m
	out.ID = uuid.NewString()
	out.Status = model.MeetingRequestPending

	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO meeting_requests
				(id, requester_id, requester_name, requester_email, receiver_id, title, description, start_time, end_time, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at, updated_at
		`, out.ID, out.RequesterID, out.RequesterName, out.RequesterEmail, out.ReceiverID, out.Title,
			out.Description, out.StartTime, out.EndTime, out.Status).Scan(&out.CreatedAt, &out.UpdatedAt); err != nil {
			return err
		}
		return r.queue(ctx, tx, outbox.EventMeetingRequestCreated, out)
	})
	if err != nil {
		return model.MeetingRequest{}, err
	}
	return out, nil
}

// Get returns the request when userID is its requester or receiver.
func (r *MeetingRequestRepository) Get(ctx context.Context, userID, requestID string) (model.MeetingRequest, error) {
	m, err := scanMeetingRequest(r.pool.QueryRow(ctx, selectMeetingRequestColumns+`
		WHERE id = $1 AND (requester_id = $2 OR receiver_id = $2)
	`, requestID, userID))
	if err != nil {
		if isNotFound(err) {
			return model.MeetingRequest{}, ErrNotFound
		}
		return model.MeetingRequest{}, err
	}
	return m, nil
}

// List returns the user's requests in mailbox, soonest meeting first.
func (r *MeetingRequestRepository) List(ctx context.Context, userID, mailbox string) ([]model.MeetingRequest, error) {
	var where string
	args := []any{userID}
	switch mailbox {
	case MailboxSent:
		where = `WHERE requester_id = $1`
	case MailboxPending:
		where = `WHERE receiver_id = $1 AND status = $2`
		args = append(args, model.MeetingRequestPending)
	default:
		where = `WHERE receiver_id = $1`
	}

	rows, err := r.pool.Query(ctx, selectMeetingRequestColumns+where+` ORDER BY start_time ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MeetingRequest
	for rows.Next() {
		m, err := scanMeetingRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Approve books the requested interval on the receiver's calendar and marks the request
// approved, all in one transaction. Only the receiver may approve, only while pending and
// before the meeting starts. An overlapping booking yields ErrSlotTaken.
func (r *MeetingRequestRepository) Approve(ctx context.Context, receiverID, requestID string, now time.Time) (model.MeetingRequest, model.Booking, error) {
	var (
		out     model.MeetingRequest
		booking model.Booking
	)
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		m, err := r.lockPending(ctx, tx, `receiver_id`, receiverID, requestID)
		if err != nil {
			return err
		}
		if !m.StartTime.After(now) {
			return ErrExpired
		}

		booking, err = insertBooking(ctx, tx, r.outboxRepo, &model.Booking{
			UserID:         m.ReceiverID,
			Name:           m.RequesterName,
			Email:          m.RequesterEmail,
			AdditionalInfo: m.Description,
			StartTime:      m.StartTime,
			EndTime:        m.EndTime,
		})
		if err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, `
			UPDATE meeting_requests
			SET status = $2, booking_id = $3, updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`, m.ID, model.MeetingRequestApproved, booking.ID).Scan(&m.UpdatedAt); err != nil {
			return err
		}
		m.Status = model.MeetingRequestApproved
		m.BookingID = booking.ID
		out = m
		return r.queue(ctx, tx, outbox.EventMeetingRequestApproved, m)
	})
	if err != nil {
		if isConflict(err) {
			return model.MeetingRequest{}, model.Booking{}, ErrSlotTaken
		}
		return model.MeetingRequest{}, model.Booking{}, err
	}
	return out, booking, nil
}

// Reject closes a pending request addressed to receiverID.
func (r *MeetingRequestRepository) Reject(ctx context.Context, receiverID, requestID, reason string) (model.MeetingRequest, error) {
	if reason == "" {
		reason = model.DefaultRejectionReason
	}
	return r.close(ctx, `receiver_id`, receiverID, requestID, model.MeetingRequestRejected, reason, outbox.EventMeetingRequestRejected)
}

// Cancel withdraws a pending request made by requesterID.
func (r *MeetingRequestRepository) Cancel(ctx context.Context, requesterID, requestID string) (model.MeetingRequest, error) {
	return r.close(ctx, `requester_id`, requesterID, requestID, model.MeetingRequestCancelled, "", outbox.EventMeetingRequestCancelled)
}

func (r *MeetingRequestRepository) close(ctx context.Context, owner, userID, requestID, status, reason, eventType string) (model.MeetingRequest, error) {
	var out model.MeetingRequest
	err := r.pool.WithTx(ctx, func(tx pgx.Tx) error {
		m, err := r.lockPending(ctx, tx, owner, userID, requestID)
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, `
			UPDATE meeting_requests
			SET status = $2, rejection_reason = NULLIF($3, ''), updated_at = now()
			WHERE id = $1
			RETURNING updated_at
		`, m.ID, status, reason).Scan(&m.UpdatedAt); err != nil {
			return err
		}
		m.Status = status
		m.RejectionReason = reason
		out = m
		return r.queue(ctx, tx, eventType, m)
	})
	if err != nil {
		return model.MeetingRequest{}, err
	}
	return out, nil
}

// lockPending loads the request owned by userID through column owner and requires it pending.
// owner is one of two fixed column names and never user input.
func (r *MeetingRequestRepository) lockPending(ctx context.Context, tx pgx.Tx, owner, userID, requestID string) (model.MeetingRequest, error) {
	m, err := scanMeetingRequest(tx.QueryRow(ctx, selectMeetingRequestColumns+`
		WHERE id = $1 AND `+owner+` = $2
		FOR UPDATE
	`, requestID, userID))
	if err != nil {
		if isNotFound(err) {
			return model.MeetingRequest{}, ErrNotFound
		}
		return model.MeetingRequest{}, err
	}
	if m.Status != model.MeetingRequestPending {
		return model.MeetingRequest{}, ErrNotPending
	}
	return m, nil
}

func (r *MeetingRequestRepository) queue(ctx context.Context, tx pgx.Tx, eventType string, m model.MeetingRequest) error {
	evt, err := outbox.MeetingRequestEvent(eventType, m)
	if err != nil {
		return err
	}
	return r.outboxRepo.Insert(ctx, tx, evt)
}

func scanMeetingRequest(row pgx.Row) (model.MeetingRequest, error) {
	var m model.MeetingRequest
	err := row.Scan(
		&m.ID,
		&m.RequesterID,
		&m.RequesterName,
		&m.RequesterEmail,
		&m.ReceiverID,
		&m.Title,
		&m.Description,
		&m.StartTime,
		&m.EndTime,
		&m.Status,
		&m.RejectionReason,
		&m.BookingID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}
