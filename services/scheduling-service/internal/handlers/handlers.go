package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/meetslot/libs/httpx"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/storage"
)

// UserIDHeader carries the authenticated caller, set by the upstream gateway.
const UserIDHeader = "X-User-Id"

type AvailabilityStore interface {
	GetByUser(ctx context.Context, userID string) (*model.WeeklyAvailability, error)
	Upsert(ctx context.Context, userID string, avail *model.WeeklyAvailability) (*model.WeeklyAvailability, error)
	DeleteByUser(ctx context.Context, userID string) error
}

type EventStore interface {
	Create(ctx context.Context, evt *model.Event) (model.Event, error)
	Get(ctx context.Context, eventID string) (model.Event, error)
	ListByUser(ctx context.Context, userID string) ([]model.Event, error)
	ListPublicByUser(ctx context.Context, userID string) ([]model.Event, error)
	Update(ctx context.Context, userID string, evt *model.Event) (model.Event, error)
	Delete(ctx context.Context, userID, eventID string) error
}

type BookingStore interface {
	ListBusy(ctx context.Context, userID string, from, to time.Time) ([]model.Booking, error)
	ListByUser(ctx context.Context, userID, kind string, now time.Time, limit int) ([]model.Booking, error)
	Create(ctx context.Context, b *model.Booking) (model.Booking, error)
	Cancel(ctx context.Context, userID, bookingID, reason string) (model.Booking, error)
}

type MeetingRequestStore interface {
	Create(ctx context.Context, m *model.MeetingRequest) (model.MeetingRequest, error)
	List(ctx context.Context, userID, mailbox string) ([]model.MeetingRequest, error)
	Approve(ctx context.Context, receiverID, requestID string, now time.Time) (model.MeetingRequest, model.Booking, error)
	Reject(ctx context.Context, receiverID, requestID, reason string) (model.MeetingRequest, error)
	Cancel(ctx context.Context, requesterID, requestID string) (model.MeetingRequest, error)
}

// Stores groups the persistence the handler reads and writes.
type Stores struct {
	Availability    AvailabilityStore
	Events          EventStore
	Bookings        BookingStore
	MeetingRequests MeetingRequestStore
}

type Config struct {
	DefaultLocation    *time.Location
	DefaultSlotMinutes int
	WindowDays         int
	Policy             slots.Policy
}

type SchedulingHandler struct {
	availability AvailabilityStore
	events       EventStore
	bookings     BookingStore
	requests     MeetingRequestStore
	logger       *slog.Logger
	cfg          Config
	now          func() time.Time
}

func NewSchedulingHandler(stores Stores, logger *slog.Logger, cfg Config) *SchedulingHandler {
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	if cfg.DefaultSlotMinutes <= 0 {
		cfg.DefaultSlotMinutes = 30
	}
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = slots.DefaultWindowDays
	}
	return &SchedulingHandler{
		availability: stores.Availability,
		events:       stores.Events,
		bookings:     stores.Bookings,
		requests:     stores.MeetingRequests,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// WithClock replaces the clock used as the reference "now".
func (h *SchedulingHandler) WithClock(now func() time.Time) *SchedulingHandler {
	h.now = now
	return h
}

// Register mounts every route on mux. public wraps the unauthenticated booking routes.
func (h *SchedulingHandler) Register(mux *http.ServeMux, public ...httpx.Middleware) {
	mux.HandleFunc("/api/v1/availability", h.Availability)
	mux.HandleFunc("/api/v1/events", h.Events)
	mux.HandleFunc("/api/v1/bookings", h.ListBookings)
	mux.HandleFunc("/api/v1/bookings/cancel", h.CancelBooking)
	mux.HandleFunc("/api/v1/meeting-requests", h.MeetingRequests)
	mux.HandleFunc("/api/v1/meeting-requests/approve", h.ApproveMeetingRequest)
	mux.HandleFunc("/api/v1/meeting-requests/reject", h.RejectMeetingRequest)
	mux.HandleFunc("/api/v1/meeting-requests/cancel", h.CancelMeetingRequest)

	mux.Handle("/api/v1/public/events", httpx.Chain(http.HandlerFunc(h.PublicEvents), public...))
	mux.Handle("/api/v1/public/dates", httpx.Chain(http.HandlerFunc(h.Dates), public...))
	mux.Handle("/api/v1/public/slots", httpx.Chain(http.HandlerFunc(h.Slots), public...))
	mux.Handle("/api/v1/public/availability", httpx.Chain(http.HandlerFunc(h.Schedule), public...))
	mux.Handle("/api/v1/public/book", httpx.Chain(http.HandlerFunc(h.Book), public...))
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if id == "" {
		http.Error(w, "missing "+UserIDHeader, http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

func (h *SchedulingHandler) location(r *http.Request) (*time.Location, error) {
	name := strings.TrimSpace(r.URL.Query().Get("tz"))
	if name == "" {
		return h.cfg.DefaultLocation, nil
	}
	return time.LoadLocation(name)
}

// intParam returns fallback when the parameter is absent. Any present value must parse.
func intParam(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// loadAvailability returns nil without error when the host has no schedule yet.
func (h *SchedulingHandler) loadAvailability(ctx context.Context, userID string) (*model.WeeklyAvailability, error) {
	avail, err := h.availability.GetByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return avail, err
}

// busyIntervals loads the host's booked intervals covering rng, widened by the template's
// timeGap so buffered bookings just outside the range still count.
func (h *SchedulingHandler) busyIntervals(ctx context.Context, userID string, avail *model.WeeklyAvailability, rng slots.Interval) ([]slots.Interval, error) {
	pad := time.Duration(max(avail.TimeGap, 0)) * time.Minute
	booked, err := h.bookings.ListBusy(ctx, userID, rng.Start.Add(-pad), rng.End.Add(pad))
	if err != nil {
		return nil, err
	}
	busy := make([]slots.Interval, 0, len(booked))
	for _, b := range booked {
		busy = append(busy, slots.Interval{Start: b.StartTime, End: b.EndTime})
	}
	return busy, nil
}

func (h *SchedulingHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *SchedulingHandler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
	http.Error(w, msg, http.StatusInternalServerError)
}
