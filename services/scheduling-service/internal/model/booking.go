package model

import "time"

const (
	BookingStatusBooked    = "booked"
	BookingStatusCancelled = "cancelled"
)

type Booking struct {
	ID             string
	EventID        string
	UserID         string
	Name           string
	Email          string
	AdditionalInfo string
	StartTime      time.Time
	EndTime        time.Time
	Status         string
	CancelledAt    *time.Time
	CancelReason   string
	CreatedAt      time.Time
}
