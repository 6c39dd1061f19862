package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/storage"
)

type dateItem struct {
	Date    string `json:"date"`
	Label   string `json:"label"`
	Weekday string `json:"weekday"`
}

type slotItem struct {
	Time      string `json:"time"`
	Label     string `json:"label"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type daySlotsItem struct {
	dateItem
	Slots []slotItem `json:"slots"`
}

type bookRequest struct {
	EventID        string `json:"event_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	AdditionalInfo string `json:"additional_info"`
	TZ             string `json:"tz"`
}

type bookResponse struct {
	BookingID string `json:"booking_id"`
	EventID   string `json:"event_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

const (
	maxNameLength           = 100
	maxAdditionalInfoLength = 1000
)

func toDateItem(d slots.AvailableDate) dateItem {
	return dateItem{Date: d.Value(), Label: d.Label(), Weekday: model.WeekdayName(d.Weekday)}
}

func toSlotItems(in []slots.Slot) []slotItem {
	out := make([]slotItem, 0, len(in))
	for _, s := range in {
		out = append(out, slotItem{
			Time:      s.Time(),
			Label:     s.Label(),
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End().UTC().Format(time.RFC3339),
		})
	}
	return out
}

// Dates lists the bookable dates of user_id over the next window_days days.
func (h *SchedulingHandler) Dates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	loc, err := h.location(r)
	if err != nil {
		http.Error(w, "invalid tz", http.StatusBadRequest)
		return
	}
	windowDays, err := intParam(r, "window_days", h.cfg.WindowDays)
	if err != nil {
		http.Error(w, "invalid window_days", http.StatusBadRequest)
		return
	}

	avail, err := h.loadAvailability(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "failed to load availability", err)
		return
	}
	dates, err := slots.AvailableDates(avail, windowDays, h.now().In(loc))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	items := make([]dateItem, 0, len(dates))
	for _, d := range dates {
		items = append(items, toDateItem(d))
	}
	h.writeJSON(w, http.StatusOK, items)
}

// Slots lists the open slots of one date. The duration comes from event_id when set,
// otherwise from duration_minutes.
func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user_id"))
	eventID := strings.TrimSpace(q.Get("event_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if (userID == "" && eventID == "") || dateStr == "" {
		http.Error(w, "date and user_id or event_id are required", http.StatusBadRequest)
		return
	}
	loc, err := h.location(r)
	if err != nil {
		http.Error(w, "invalid tz", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	duration := h.cfg.DefaultSlotMinutes
	if eventID != "" {
		evt, err := h.events.Get(r.Context(), eventID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "event not found", http.StatusNotFound)
				return
			}
			h.internalError(w, r, "failed to load event", err)
			return
		}
		if userID != "" && userID != evt.UserID {
			http.Error(w, "event does not belong to user", http.StatusBadRequest)
			return
		}
		userID = evt.UserID
		duration = evt.DurationMinutes
	} else if duration, err = intParam(r, "duration_minutes", duration); err != nil {
		http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
		return
	}

	avail, err := h.loadAvailability(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "failed to load availability", err)
		return
	}
	open, err := h.openSlots(r, userID, avail, date, duration, loc)
	if err != nil {
		if errors.Is(err, slots.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.internalError(w, r, "failed to load booked slots", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toSlotItems(open))
}

func (h *SchedulingHandler) openSlots(r *http.Request, userID string, avail *model.WeeklyAvailability, date time.Time, duration int, loc *time.Location) ([]slots.Slot, error) {
	if duration <= 0 {
		return nil, slots.ErrInvalidArgument
	}
	if avail == nil {
		return nil, nil
	}
	busy, err := h.busyIntervals(r.Context(), userID, avail, slots.DayRange(date, loc))
	if err != nil {
		return nil, err
	}
	return h.cfg.Policy.TimeSlots(date, avail, busy, duration, h.now().In(loc))
}

// Schedule returns every available date in the window with its open slots.
func (h *SchedulingHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	loc, err := h.location(r)
	if err != nil {
		http.Error(w, "invalid tz", http.StatusBadRequest)
		return
	}
	duration, err := intParam(r, "duration_minutes", h.cfg.DefaultSlotMinutes)
	if err != nil {
		http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
		return
	}
	windowDays, err := intParam(r, "window_days", h.cfg.WindowDays)
	if err != nil {
		http.Error(w, "invalid window_days", http.StatusBadRequest)
		return
	}
	if duration <= 0 || windowDays <= 0 {
		http.Error(w, "duration_minutes and window_days must be positive", http.StatusBadRequest)
		return
	}

	avail, err := h.loadAvailability(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "failed to load availability", err)
		return
	}
	items := []daySlotsItem{}
	if avail == nil {
		h.writeJSON(w, http.StatusOK, items)
		return
	}

	now := h.now().In(loc)
	busy, err := h.busyIntervals(r.Context(), userID, avail, slots.WindowRange(windowDays, now))
	if err != nil {
		h.internalError(w, r, "failed to load booked slots", err)
		return
	}
	days, err := slots.Schedule(avail, busy, duration, windowDays, now, h.cfg.Policy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	for _, d := range days {
		items = append(items, daySlotsItem{dateItem: toDateItem(d.Date), Slots: toSlotItems(d.Slots)})
	}
	h.writeJSON(w, http.StatusOK, items)
}

// Book reserves one computed slot of an event for a guest.
func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.EventID = strings.TrimSpace(req.EventID)
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.AdditionalInfo = strings.TrimSpace(req.AdditionalInfo)
	if msg := validateBookRequest(req); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	date, start, loc, msg := h.requestedStart(req.Date, req.Time, req.TZ)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	evt, err := h.events.Get(ctx, req.EventID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "event not found", http.StatusNotFound)
			return
		}
		h.internalError(w, r, "failed to load event", err)
		return
	}
	avail, err := h.loadAvailability(ctx, evt.UserID)
	if err != nil {
		h.internalError(w, r, "failed to load availability", err)
		return
	}
	open, err := h.openSlots(r, evt.UserID, avail, date, evt.DurationMinutes, loc)
	if err != nil {
		if errors.Is(err, slots.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.internalError(w, r, "failed to load booked slots", err)
		return
	}
	slot, ok := slots.Find(open, start)
	if !ok {
		http.Error(w, "requested time is not available", http.StatusUnprocessableEntity)
		return
	}

	booking, err := h.bookings.Create(ctx, &model.Booking{
		EventID:        evt.ID,
		UserID:         evt.UserID,
		Name:           req.Name,
		Email:          req.Email,
		AdditionalInfo: req.AdditionalInfo,
		StartTime:      slot.Start,
		EndTime:        slot.End(),
	})
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		h.internalError(w, r, "failed to create booking", err)
		return
	}
	h.logger.Info("booking created", "booking_id", booking.ID, "event_id", evt.ID, "start_time", booking.StartTime.UTC().Format(time.RFC3339))

	h.writeJSON(w, http.StatusCreated, bookResponse{
		BookingID: booking.ID,
		EventID:   booking.EventID,
		StartTime: booking.StartTime.UTC().Format(time.RFC3339),
		EndTime:   booking.EndTime.UTC().Format(time.RFC3339),
		Status:    booking.Status,
	})
}

func validateBookRequest(req bookRequest) string {
	switch {
	case req.EventID == "":
		return "event_id required"
	case utf8.RuneCountInString(req.AdditionalInfo) > maxAdditionalInfoLength:
		return "additional_info is too long"
	case req.Date == "" || req.Time == "":
		return "date and time required"
	}
	return validateGuest(req.Name, req.Email)
}

// validateGuest checks the name and bare email address of the person asking for a slot.
func validateGuest(name, email string) string {
	switch {
	case name == "" || utf8.RuneCountInString(name) > maxNameLength:
		return "name must be 1 to 100 characters"
	case email == "":
		return "email required"
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "invalid email"
	}
	return ""
}

// requestedStart resolves a yyyy-MM-dd date and HH:mm time in tz (or the default zone).
// A non-empty message describes the first invalid input.
func (h *SchedulingHandler) requestedStart(dateStr, clockStr, tz string) (date, start time.Time, loc *time.Location, msg string) {
	loc = h.cfg.DefaultLocation
	if tz = strings.TrimSpace(tz); tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			return time.Time{}, time.Time{}, nil, "invalid tz"
		}
	}
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(dateStr), loc)
	if err != nil {
		return time.Time{}, time.Time{}, nil, "date must be yyyy-MM-dd"
	}
	clock, err := model.ClockMinutes(strings.TrimSpace(clockStr))
	if err != nil {
		return time.Time{}, time.Time{}, nil, "time must be HH:mm"
	}
	start = time.Date(date.Year(), date.Month(), date.Day(), clock/60, clock%60, 0, 0, loc)
	return date, start, loc, ""
}
