package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrInvalidEvent = errors.New("invalid event")

// Event is a bookable meeting type published by a user.
type Event struct {
	ID              string
	UserID          string
	Title           string
	Description     string
	DurationMinutes int
	IsPrivate       bool
	BookingCount    int
	CreatedAt       time.Time
}

const (
	maxEventTitle       = 100
	maxEventDescription = 500
)

func (e *Event) Validate() error {
	title := strings.TrimSpace(e.Title)
	if title == "" || utf8.RuneCountInString(title) > maxEventTitle {
		return fmt.Errorf("%w: title must be 1 to %d characters", ErrInvalidEvent, maxEventTitle)
	}
	desc := strings.TrimSpace(e.Description)
	if desc == "" || utf8.RuneCountInString(desc) > maxEventDescription {
		return fmt.Errorf("%w: description must be 1 to %d characters", ErrInvalidEvent, maxEventDescription)
	}
	if e.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidEvent)
	}
	return nil
}
