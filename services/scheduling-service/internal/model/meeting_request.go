package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrInvalidMeetingRequest = errors.New("invalid meeting request")

const (
	MeetingRequestPending   = "pending"
	MeetingRequestApproved  = "approved"
	MeetingRequestRejected  = "rejected"
	MeetingRequestCancelled = "cancelled"
)

// DefaultRejectionReason is recorded when the receiver rejects without a reason.
const DefaultRejectionReason = "No reason provided"

// MeetingRequest asks ReceiverID to meet RequesterID at one of the receiver's open slots.
// Approval turns it into a booking on the receiver's calendar.
type MeetingRequest struct {
	ID              string
	RequesterID     string
	RequesterName   string
	RequesterEmail  string
	ReceiverID      string
	Title           string
	Description     string
	StartTime       time.Time
	EndTime         time.Time
	Status          string
	RejectionReason string
	BookingID       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (m *MeetingRequest) Validate() error {
	switch {
	case strings.TrimSpace(m.RequesterID) == "" || strings.TrimSpace(m.ReceiverID) == "":
		return fmt.Errorf("%w: requester and receiver are required", ErrInvalidMeetingRequest)
	case m.RequesterID == m.ReceiverID:
		return fmt.Errorf("%w: cannot request a meeting with yourself", ErrInvalidMeetingRequest)
	}
	title := strings.TrimSpace(m.Title)
	if title == "" || utf8.RuneCountInString(title) > maxEventTitle {
		return fmt.Errorf("%w: title must be 1 to %d characters", ErrInvalidMeetingRequest, maxEventTitle)
	}
	if utf8.RuneCountInString(m.Description) > maxEventDescription {
		return fmt.Errorf("%w: description must be at most %d characters", ErrInvalidMeetingRequest, maxEventDescription)
	}
	if !m.EndTime.After(m.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidMeetingRequest)
	}
	return nil
}
