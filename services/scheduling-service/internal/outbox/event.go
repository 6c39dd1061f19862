package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventBookingCreated   = "scheduling.booking.created.v1"
	EventBookingCancelled = "scheduling.booking.cancelled.v1"

	EventMeetingRequestCreated   = "scheduling.meeting_request.created.v1"
	EventMeetingRequestApproved  = "scheduling.meeting_request.approved.v1"
	EventMeetingRequestRejected  = "scheduling.meeting_request.rejected.v1"
	EventMeetingRequestCancelled = "scheduling.meeting_request.cancelled.v1"

	aggregateBooking        = "booking"
	aggregateMeetingRequest = "meeting_request"
)

type bookingPayload struct {
	BookingID      string `json:"booking_id"`
	EventID        string `json:"event_id"`
	HostUserID     string `json:"host_user_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	AdditionalInfo string `json:"additional_info,omitempty"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	CancelledAt    string `json:"cancelled_at,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

func newBookingPayload(b model.Booking) bookingPayload {
	return bookingPayload{
		BookingID:      b.ID,
		EventID:        b.EventID,
		HostUserID:     b.UserID,
		Name:           b.Name,
		Email:          b.Email,
		AdditionalInfo: b.AdditionalInfo,
		StartTime:      b.StartTime.UTC().Format(time.RFC3339),
		EndTime:        b.EndTime.UTC().Format(time.RFC3339),
	}
}

// BookingCreated is consumed downstream to send confirmations and create calendar entries.
func BookingCreated(b model.Booking) (Event, error) {
	body, err := json.Marshal(newBookingPayload(b))
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: aggregateBooking, AggregateID: b.ID, EventType: EventBookingCreated, Payload: body}, nil
}

func BookingCancelled(b model.Booking) (Event, error) {
	p := newBookingPayload(b)
	p.Reason = b.CancelReason
	if b.CancelledAt != nil {
		p.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: aggregateBooking, AggregateID: b.ID, EventType: EventBookingCancelled, Payload: body}, nil
}

type meetingRequestPayload struct {
	RequestID       string `json:"request_id"`
	RequesterID     string `json:"requester_id"`
	RequesterName   string `json:"requester_name,omitempty"`
	RequesterEmail  string `json:"requester_email,omitempty"`
	ReceiverID      string `json:"receiver_id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	BookingID       string `json:"booking_id,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// MeetingRequestEvent records a status change of m. Notification consumers pick the
// recipient from the event type: the receiver on created, the requester otherwise.
func MeetingRequestEvent(eventType string, m model.MeetingRequest) (Event, error) {
	body, err := json.Marshal(meetingRequestPayload{
		RequestID:       m.ID,
		RequesterID:     m.RequesterID,
		RequesterName:   m.RequesterName,
		RequesterEmail:  m.RequesterEmail,
		ReceiverID:      m.ReceiverID,
		Title:           m.Title,
		Description:     m.Description,
		StartTime:       m.StartTime.UTC().Format(time.RFC3339),
		EndTime:         m.EndTime.UTC().Format(time.RFC3339),
		Status:          m.Status,
		BookingID:       m.BookingID,
		RejectionReason: m.RejectionReason,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateType: aggregateMeetingRequest, AggregateID: m.ID, EventType: eventType, Payload: body}, nil
}
