package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidAvailability = errors.New("invalid availability")

// DayAvailability is one weekday of a weekly template. StartTime and EndTime are
// 24-hour "HH:MM" wall-clock values and only matter when IsAvailable is set.
type DayAvailability struct {
	IsAvailable bool   `json:"isAvailable"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
}

// WeeklyAvailability is a user's recurring schedule. A nil day is unavailable.
// TimeGap is in minutes.
type WeeklyAvailability struct {
	ID        string           `json:"id,omitempty"`
	UserID    string           `json:"userId,omitempty"`
	Monday    *DayAvailability `json:"monday"`
	Tuesday   *DayAvailability `json:"tuesday"`
	Wednesday *DayAvailability `json:"wednesday"`
	Thursday  *DayAvailability `json:"thursday"`
	Friday    *DayAvailability `json:"friday"`
	Saturday  *DayAvailability `json:"saturday"`
	Sunday    *DayAvailability `json:"sunday"`
	TimeGap   int              `json:"timeGap"`
}

var weekdayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

// Weekdays lists the days in the order the schedule is edited and stored.
var Weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

func WeekdayName(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return ""
	}
	return weekdayNames[d]
}

func ParseWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range weekdayNames {
		if n == name {
			return time.Weekday(i), true
		}
	}
	return 0, false
}

// Day returns the entry for d, or nil when a is nil or the day is absent.
func (a *WeeklyAvailability) Day(d time.Weekday) *DayAvailability {
	if a == nil {
		return nil
	}
	switch d {
	case time.Monday:
		return a.Monday
	case time.Tuesday:
		return a.Tuesday
	case time.Wednesday:
		return a.Wednesday
	case time.Thursday:
		return a.Thursday
	case time.Friday:
		return a.Friday
	case time.Saturday:
		return a.Saturday
	case time.Sunday:
		return a.Sunday
	}
	return nil
}

func (a *WeeklyAvailability) SetDay(d time.Weekday, day *DayAvailability) {
	switch d {
	case time.Monday:
		a.Monday = day
	case time.Tuesday:
		a.Tuesday = day
	case time.Wednesday:
		a.Wednesday = day
	case time.Thursday:
		a.Thursday = day
	case time.Friday:
		a.Friday = day
	case time.Saturday:
		a.Saturday = day
	case time.Sunday:
		a.Sunday = day
	}
}

// Available reports whether d has a usable window.
func (a *WeeklyAvailability) Available(d time.Weekday) bool {
	day := a.Day(d)
	return day != nil && day.IsAvailable
}

// ClockMinutes parses "HH:MM" into minutes after midnight.
func ClockMinutes(s string) (int, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("time %q must be HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("time %q has invalid hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q has invalid minute", s)
	}
	return h*60 + m, nil
}

// Window returns the day's start and end as minutes after midnight.
// ok is false when the day is unavailable or the window is malformed or empty.
func (d *DayAvailability) Window() (start, end int, ok bool) {
	if d == nil || !d.IsAvailable {
		return 0, 0, false
	}
	start, err := ClockMinutes(d.StartTime)
	if err != nil {
		return 0, 0, false
	}
	end, err = ClockMinutes(d.EndTime)
	if err != nil {
		return 0, 0, false
	}
	if start >= end {
		return 0, 0, false
	}
	return start, end, true
}

// Validate applies the rules enforced when a user saves their schedule.
func (a *WeeklyAvailability) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: missing availability", ErrInvalidAvailability)
	}
	if a.TimeGap < 0 {
		return fmt.Errorf("%w: timeGap must be 0 or greater", ErrInvalidAvailability)
	}
	for _, wd := range Weekdays {
		day := a.Day(wd)
		if day == nil || !day.IsAvailable {
			continue
		}
		name := WeekdayName(wd)
		start, err := ClockMinutes(day.StartTime)
		if err != nil {
			return fmt.Errorf("%w: %s startTime: %v", ErrInvalidAvailability, name, err)
		}
		end, err := ClockMinutes(day.EndTime)
		if err != nil {
			return fmt.Errorf("%w: %s endTime: %v", ErrInvalidAvailability, name, err)
		}
		if start >= end {
			return fmt.Errorf("%w: %s start time must be before end time", ErrInvalidAvailability, name)
		}
	}
	return nil
}
