// Package slots expands a weekly availability template into concrete bookable
// dates and time slots. Every function is pure: "now" is always passed in.
package slots

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/model"
)

var ErrInvalidArgument = errors.New("invalid argument")

// DefaultWindowDays is how far ahead bookings are offered.
const DefaultWindowDays = 30

const (
	dateValueLayout = "2006-01-02"
	dateLabelLayout = "Monday, January 2, 2006"
	slotValueLayout = "15:04"
	slotLabelLayout = "3:04 PM"
)

// Interval is a half-open busy range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) overlaps(start, end time.Time) bool {
	return start.Before(i.End) && i.Start.Before(end)
}

type AvailableDate struct {
	Date    time.Time // midnight in the reference location
	Weekday time.Weekday
}

func (d AvailableDate) Value() string { return d.Date.Format(dateValueLayout) }
func (d AvailableDate) Label() string { return d.Date.Format(dateLabelLayout) }

type Slot struct {
	Start    time.Time
	Duration time.Duration
}

func (s Slot) Time() string { return s.Start.Format(slotValueLayout) }
func (s Slot) Label() string { return s.Start.Format(slotLabelLayout) }
func (s Slot) End() time.Time { return s.Start.Add(s.Duration) }
func (s Slot) Interval() Interval { return Interval{Start: s.Start, End: s.End()} }

type DaySlots struct {
	Date  AvailableDate
	Slots []Slot
}

// Policy tunes slot generation. The zero value applies timeGap only after "now".
type Policy struct {
	// BufferAroundBookings widens every busy interval by the template's timeGap on both sides.
	BufferAroundBookings bool
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// DayRange returns [midnight, next midnight) for the calendar day of date in loc.
// Only the Y/M/D fields of date are used.
func DayRange(date time.Time, loc *time.Location) Interval {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return Interval{Start: start, End: time.Date(y, m, d+1, 0, 0, 0, 0, loc)}
}

// WindowRange returns the range covered by AvailableDates for the same arguments.
func WindowRange(windowDays int, now time.Time) Interval {
	start := StartOfDay(now, now.Location())
	y, m, d := start.Date()
	return Interval{Start: start, End: time.Date(y, m, d+windowDays+1, 0, 0, 0, 0, now.Location())}
}

// AvailableDates lists the dates from today through today+windowDays (inclusive) whose
// weekday is marked available. Dates are midnights in now's location.
func AvailableDates(avail *model.WeeklyAvailability, windowDays int, now time.Time) ([]AvailableDate, error) {
	if windowDays <= 0 {
		return nil, fmt.Errorf("%w: windowDays must be positive (got %d)", ErrInvalidArgument, windowDays)
	}
	if avail == nil {
		return nil, nil
	}

	loc := now.Location()
	y, m, d := now.Date()
	var out []AvailableDate
	for i := 0; i <= windowDays; i++ {
		day := time.Date(y, m, d+i, 0, 0, 0, 0, loc)
		if avail.Available(day.Weekday()) {
			out = append(out, AvailableDate{Date: day, Weekday: day.Weekday()})
		}
	}
	return out, nil
}

// TimeSlots returns the open slots on date using the default Policy.
func TimeSlots(date time.Time, avail *model.WeeklyAvailability, busy []Interval, durationMinutes int, now time.Time) ([]Slot, error) {
	return Policy{}.TimeSlots(date, avail, busy, durationMinutes, now)
}

// TimeSlots walks a fixed grid from the day's start time in steps of durationMinutes and
// keeps every slot that fits before the end time and overlaps no busy interval. On today's
// date, once now is past the start time, grid points before now+timeGap are skipped. Past dates, unavailable days and
// malformed windows yield no slots.
func (p Policy) TimeSlots(date time.Time, avail *model.WeeklyAvailability, busy []Interval, durationMinutes int, now time.Time) ([]Slot, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: durationMinutes must be positive (got %d)", ErrInvalidArgument, durationMinutes)
	}
	if avail == nil {
		return nil, nil
	}

	loc := now.Location()
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	startMin, endMin, ok := avail.Day(midnight.Weekday()).Window()
	if !ok {
		return nil, nil
	}

	today := StartOfDay(now, loc)
	if midnight.Before(today) {
		return nil, nil
	}

	dayStart := time.Date(y, m, d, startMin/60, startMin%60, 0, 0, loc)
	dayEnd := time.Date(y, m, d, endMin/60, endMin%60, 0, 0, loc)
	gap := time.Duration(max(avail.TimeGap, 0)) * time.Minute

	// The lead time only applies once the day has opened; before that the grid starts at dayStart.
	earliest := dayStart
	if midnight.Equal(today) && dayStart.Before(now) {
		earliest = now.Add(gap)
	}
	if earliest.After(dayEnd) {
		return nil, nil
	}

	if p.BufferAroundBookings && gap > 0 {
		busy = widen(busy, gap)
	}

	step := time.Duration(durationMinutes) * time.Minute
	var out []Slot
	for t := dayStart; !t.Add(step).After(dayEnd); t = t.Add(step) {
		if t.Before(earliest) {
			continue
		}
		if overlapsAny(t, t.Add(step), busy) {
			continue
		}
		out = append(out, Slot{Start: t, Duration: step})
	}
	return out, nil
}

// Schedule pairs each available date in the window with its open slots. Dates without
// any open slot are omitted.
func Schedule(avail *model.WeeklyAvailability, busy []Interval, durationMinutes, windowDays int, now time.Time, p Policy) ([]DaySlots, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("%w: durationMinutes must be positive (got %d)", ErrInvalidArgument, durationMinutes)
	}
	dates, err := AvailableDates(avail, windowDays, now)
	if err != nil {
		return nil, err
	}
	var out []DaySlots
	for _, date := range dates {
		day, err := p.TimeSlots(date.Date, avail, busy, durationMinutes, now)
		if err != nil {
			return nil, err
		}
		if len(day) > 0 {
			out = append(out, DaySlots{Date: date, Slots: day})
		}
	}
	return out, nil
}

// Find returns the slot starting exactly at start.
func Find(slots []Slot, start time.Time) (Slot, bool) {
	for _, s := range slots {
		if s.Start.Equal(start) {
			return s, true
		}
	}
	return Slot{}, false
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.overlaps(start, end) {
			return true
		}
	}
	return false
}

func widen(busy []Interval, gap time.Duration) []Interval {
	out := make([]Interval, len(busy))
	for i, b := range busy {
		out[i] = Interval{Start: b.Start.Add(-gap), End: b.End.Add(gap)}
	}
	return out
}
