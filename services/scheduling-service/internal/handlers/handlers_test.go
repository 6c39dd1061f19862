package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/storage"
)

type fakeAvailability struct {
	mu    sync.Mutex
	byUID map[string]*model.WeeklyAvailability
}

func (f *fakeAvailability) GetByUser(_ context.Context, userID string) (*model.WeeklyAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byUID[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a, nil
}

func (f *fakeAvailability) Upsert(_ context.Context, userID string, avail *model.WeeklyAvailability) (*model.WeeklyAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *avail
	out.ID = "avail-" + userID
	out.UserID = userID
	f.byUID[userID] = &out
	return &out, nil
}

func (f *fakeAvailability) DeleteByUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byUID[userID]; !ok {
		return storage.ErrNotFound
	}
	delete(f.byUID, userID)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	byID   map[string]model.Event
	nextID int
	booked map[string]bool
}

func (f *fakeEvents) Create(_ context.Context, evt *model.Event) (model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	out := *evt
	out.ID = fmt.Sprintf("ev-%d", f.nextID)
	out.CreatedAt = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f.byID[out.ID] = out
	return out, nil
}

func (f *fakeEvents) Get(_ context.Context, eventID string) (model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	evt, ok := f.byID[eventID]
	if !ok {
		return model.Event{}, storage.ErrNotFound
	}
	return evt, nil
}

func (f *fakeEvents) ListByUser(_ context.Context, userID string) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Event
	for _, evt := range f.byID {
		if evt.UserID == userID {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (f *fakeEvents) ListPublicByUser(ctx context.Context, userID string) ([]model.Event, error) {
	all, _ := f.ListByUser(ctx, userID)
	var out []model.Event
	for _, evt := range all {
		if !evt.IsPrivate {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (f *fakeEvents) Update(_ context.Context, userID string, evt *model.Event) (model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.byID[evt.ID]
	if !ok || existing.UserID != userID {
		return model.Event{}, storage.ErrNotFound
	}
	out := *evt
	out.UserID = userID
	f.byID[out.ID] = out
	return out, nil
}

func (f *fakeEvents) Delete(_ context.Context, userID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	evt, ok := f.byID[eventID]
	if !ok || evt.UserID != userID {
		return storage.ErrNotFound
	}
	if f.booked[eventID] {
		return storage.ErrHasBookings
	}
	delete(f.byID, eventID)
	return nil
}

type fakeBookings struct {
	mu        sync.Mutex
	items     []model.Booking
	forceTake bool
}

func (f *fakeBookings) ListBusy(_ context.Context, userID string, from, to time.Time) ([]model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Booking
	for _, b := range f.items {
		if b.UserID == userID && b.Status == model.BookingStatusBooked && b.StartTime.Before(to) && b.EndTime.After(from) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookings) ListByUser(_ context.Context, userID, kind string, now time.Time, _ int) ([]model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Booking
	for _, b := range f.items {
		if b.UserID != userID {
			continue
		}
		if (kind == storage.ListPast) == b.StartTime.Before(now) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookings) Create(_ context.Context, b *model.Booking) (model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceTake {
		return model.Booking{}, storage.ErrSlotTaken
	}
	for _, existing := range f.items {
		if existing.UserID == b.UserID && existing.Status == model.BookingStatusBooked &&
			b.StartTime.Before(existing.EndTime) && existing.StartTime.Before(b.EndTime) {
			return model.Booking{}, storage.ErrSlotTaken
		}
	}
	out := *b
	out.ID = fmt.Sprintf("bk-%d", len(f.items)+1)
	out.Status = model.BookingStatusBooked
	f.items = append(f.items, out)
	return out, nil
}

func (f *fakeBookings) Cancel(_ context.Context, userID, bookingID, reason string) (model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.items {
		if b.ID != bookingID || b.UserID != userID {
			continue
		}
		if b.Status != model.BookingStatusCancelled {
			at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
			b.Status = model.BookingStatusCancelled
			b.CancelledAt = &at
			b.CancelReason = reason
			f.items[i] = b
		}
		return b, nil
	}
	return model.Booking{}, storage.ErrNotFound
}

type fakeMeetingRequests struct {
	mu       sync.Mutex
	items    []model.MeetingRequest
	bookings *fakeBookings
}

func (f *fakeMeetingRequests) Create(_ context.Context, m *model.MeetingRequest) (model.MeetingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *m
	out.ID = fmt.Sprintf("mr-%d", len(f.items)+1)
	out.Status = model.MeetingRequestPending
	f.items = append(f.items, out)
	return out, nil
}

func (f *fakeMeetingRequests) List(_ context.Context, userID, mailbox string) ([]model.MeetingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.MeetingRequest
	for _, m := range f.items {
		switch mailbox {
		case storage.MailboxSent:
			if m.RequesterID == userID {
				out = append(out, m)
			}
		case storage.MailboxPending:
			if m.ReceiverID == userID && m.Status == model.MeetingRequestPending {
				out = append(out, m)
			}
		default:
			if m.ReceiverID == userID {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (f *fakeMeetingRequests) pending(owner func(model.MeetingRequest) string, userID, requestID string) (int, error) {
	for i, m := range f.items {
		if m.ID != requestID || owner(m) != userID {
			continue
		}
		if m.Status != model.MeetingRequestPending {
			return 0, storage.ErrNotPending
		}
		return i, nil
	}
	return 0, storage.ErrNotFound
}

func receiverOf(m model.MeetingRequest) string  { return m.ReceiverID }
func requesterOf(m model.MeetingRequest) string { return m.RequesterID }

func (f *fakeMeetingRequests) Approve(ctx context.Context, receiverID, requestID string, now time.Time) (model.MeetingRequest, model.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.pending(receiverOf, receiverID, requestID)
	if err != nil {
		return model.MeetingRequest{}, model.Booking{}, err
	}
	m := f.items[i]
	if !m.StartTime.After(now) {
		return model.MeetingRequest{}, model.Booking{}, storage.ErrExpired
	}
	b, err := f.bookings.Create(ctx, &model.Booking{
		UserID: m.ReceiverID, Name: m.RequesterName, Email: m.RequesterEmail,
		StartTime: m.StartTime, EndTime: m.EndTime,
	})
	if err != nil {
		return model.MeetingRequest{}, model.Booking{}, err
	}
	m.Status = model.MeetingRequestApproved
	m.BookingID = b.ID
	f.items[i] = m
	return m, b, nil
}

func (f *fakeMeetingRequests) Reject(_ context.Context, receiverID, requestID, reason string) (model.MeetingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.pending(receiverOf, receiverID, requestID)
	if err != nil {
		return model.MeetingRequest{}, err
	}
	if reason == "" {
		reason = model.DefaultRejectionReason
	}
	f.items[i].Status = model.MeetingRequestRejected
	f.items[i].RejectionReason = reason
	return f.items[i], nil
}

func (f *fakeMeetingRequests) Cancel(_ context.Context, requesterID, requestID string) (model.MeetingRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i, err := f.pending(requesterOf, requesterID, requestID)
	if err != nil {
		return model.MeetingRequest{}, err
	}
	f.items[i].Status = model.MeetingRequestCancelled
	return f.items[i], nil
}

// Monday 2025-03-10, 08:00 UTC.
var testNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	mux      *http.ServeMux
	avail    *fakeAvailability
	events   *fakeEvents
	bookings *fakeBookings
	requests *fakeMeetingRequests
	now      time.Time
}

func (e *testEnv) stores() Stores {
	return Stores{Availability: e.avail, Events: e.events, Bookings: e.bookings, MeetingRequests: e.requests}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		mux:      http.NewServeMux(),
		avail:    &fakeAvailability{byUID: map[string]*model.WeeklyAvailability{}},
		events:   &fakeEvents{byID: map[string]model.Event{}, booked: map[string]bool{}},
		bookings: &fakeBookings{},
		now:      testNow,
	}
	env.requests = &fakeMeetingRequests{bookings: env.bookings}
	env.avail.byUID["host-1"] = &model.WeeklyAvailability{
		UserID: "host-1",
		Monday: &model.DayAvailability{IsAvailable: true, StartTime: "09:00", EndTime: "10:00"},
	}
	env.events.byID["ev-hour"] = model.Event{ID: "ev-hour", UserID: "host-1", Title: "Deep dive", Description: "d", DurationMinutes: 60}
	env.events.byID["ev-half"] = model.Event{ID: "ev-half", UserID: "host-1", Title: "Quick chat", Description: "d", DurationMinutes: 30}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewSchedulingHandler(env.stores(), logger, Config{}).
		WithClock(func() time.Time { return env.now })
	h.Register(env.mux)
	return env
}

func (e *testEnv) do(method, target, userID, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if userID != "" {
		req.Header.Set(UserIDHeader, userID)
	}
	rw := httptest.NewRecorder()
	e.mux.ServeHTTP(rw, req)
	return rw
}

func decodeSlots(t *testing.T, rw *httptest.ResponseRecorder) []slotItem {
	t.Helper()
	var items []slotItem
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode slots: %v (%s)", err, rw.Body.String())
	}
	return items
}

func slotTimes(items []slotItem) string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		out = append(out, s.Time)
	}
	return strings.Join(out, ",")
}

func TestSlotsForDate(t *testing.T) {
	env := newTestEnv(t)
	rw := env.do(http.MethodGet, "/api/v1/public/slots?user_id=host-1&date=2025-03-10&duration_minutes=30", "", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	items := decodeSlots(t, rw)
	if slotTimes(items) != "09:00,09:30" {
		t.Fatalf("unexpected slots %s", slotTimes(items))
	}
	if items[0].Label != "9:00 AM" || items[0].StartTime != "2025-03-10T09:00:00Z" || items[0].EndTime != "2025-03-10T09:30:00Z" {
		t.Fatalf("unexpected slot %+v", items[0])
	}
}

func TestSlotsExcludeBookedAndUseEventDuration(t *testing.T) {
	env := newTestEnv(t)
	env.bookings.items = append(env.bookings.items, model.Booking{
		ID: "bk-x", UserID: "host-1", Status: model.BookingStatusBooked,
		StartTime: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	})

	rw := env.do(http.MethodGet, "/api/v1/public/slots?user_id=host-1&date=2025-03-10", "", "")
	if got := slotTimes(decodeSlots(t, rw)); got != "09:30" {
		t.Fatalf("expected 09:30, got %s", got)
	}

	env.bookings.items = nil
	rw = env.do(http.MethodGet, "/api/v1/public/slots?event_id=ev-hour&date=2025-03-10", "", "")
	if got := slotTimes(decodeSlots(t, rw)); got != "09:00" {
		t.Fatalf("expected one hour slot at 09:00, got %s", got)
	}
}

func TestSlotsRespectTimeZone(t *testing.T) {
	env := newTestEnv(t)
	// 08:00 UTC is 17:00 in Tokyo, so Monday's 09:00 and 09:30 are already past there.
	rw := env.do(http.MethodGet, "/api/v1/public/slots?user_id=host-1&date=2025-03-10&tz=Asia/Tokyo", "", "")
	if rw.Code != http.StatusOK || rw.Body.String() != "[]" {
		t.Fatalf("expected empty list, got %d %s", rw.Code, rw.Body.String())
	}
	rw = env.do(http.MethodGet, "/api/v1/public/slots?user_id=host-1&date=2025-03-17&tz=Asia/Tokyo", "", "")
	items := decodeSlots(t, rw)
	if slotTimes(items) != "09:00,09:30" || items[0].StartTime != "2025-03-17T00:00:00Z" {
		t.Fatalf("unexpected Tokyo slots %+v", items)
	}
}

func TestSlotsBadInput(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]int{
		"/api/v1/public/slots?user_id=host-1&date=2025-03-10&duration_minutes=0":   http.StatusBadRequest,
		"/api/v1/public/slots?user_id=host-1&date=2025-03-10&duration_minutes=abc": http.StatusBadRequest,
		"/api/v1/public/slots?user_id=host-1&date=10/03/2025":                      http.StatusBadRequest,
		"/api/v1/public/slots?user_id=host-1&date=2025-03-10&tz=Mars/Base":         http.StatusBadRequest,
		"/api/v1/public/slots?date=2025-03-10":                                     http.StatusBadRequest,
		"/api/v1/public/slots?event_id=missing&date=2025-03-10":                    http.StatusNotFound,
		"/api/v1/public/slots?user_id=other&event_id=ev-hour&date=2025-03-10":      http.StatusBadRequest,
	}
	for target, want := range cases {
		if rw := env.do(http.MethodGet, target, "", ""); rw.Code != want {
			t.Fatalf("%s: expected %d, got %d", target, want, rw.Code)
		}
	}
	if rw := env.do(http.MethodPost, "/api/v1/public/slots", "", ""); rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}

func TestSlotsUnknownHostIsEmpty(t *testing.T) {
	env := newTestEnv(t)
	rw := env.do(http.MethodGet, "/api/v1/public/slots?user_id=nobody&date=2025-03-10", "", "")
	if rw.Code != http.StatusOK || rw.Body.String() != "[]" {
		t.Fatalf("expected [], got %d %s", rw.Code, rw.Body.String())
	}
}

func TestDates(t *testing.T) {
	env := newTestEnv(t)
	rw := env.do(http.MethodGet, "/api/v1/public/dates?user_id=host-1", "", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var items []dateItem
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 5 || items[0].Date != "2025-03-10" || items[0].Weekday != "monday" || items[4].Date != "2025-04-07" {
		t.Fatalf("unexpected dates %+v", items)
	}
	if items[0].Label != "Monday, March 10, 2025" {
		t.Fatalf("unexpected label %q", items[0].Label)
	}

	rw = env.do(http.MethodGet, "/api/v1/public/dates?user_id=host-1&window_days=6", "", "")
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil || len(items) != 1 {
		t.Fatalf("expected one date in a 6 day window, got %s", rw.Body.String())
	}

	if rw := env.do(http.MethodGet, "/api/v1/public/dates?user_id=host-1&window_days=0", "", ""); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for window_days=0, got %d", rw.Code)
	}
	if rw := env.do(http.MethodGet, "/api/v1/public/dates?user_id=nobody", "", ""); rw.Body.String() != "[]" {
		t.Fatalf("expected [], got %s", rw.Body.String())
	}
}

func TestSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.now = time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	rw := env.do(http.MethodGet, "/api/v1/public/availability?user_id=host-1&window_days=7", "", "")
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var items []daySlotsItem
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected two Mondays, got %+v", items)
	}
	if items[0].Date != "2025-03-10" || slotTimes(items[0].Slots) != "09:30" {
		t.Fatalf("unexpected today %+v", items[0])
	}
	if items[1].Date != "2025-03-17" || slotTimes(items[1].Slots) != "09:00,09:30" {
		t.Fatalf("unexpected next week %+v", items[1])
	}

	if rw := env.do(http.MethodGet, "/api/v1/public/availability?user_id=host-1&duration_minutes=-5", "", ""); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}
	if rw := env.do(http.MethodGet, "/api/v1/public/availability?user_id=nobody", "", ""); rw.Body.String() != "[]" {
		t.Fatalf("expected [], got %s", rw.Body.String())
	}
}

func TestBookFlow(t *testing.T) {
	env := newTestEnv(t)
	body := `{"event_id":"ev-half","name":"Ada","email":"ada@example.com","date":"2025-03-10","time":"09:30"}`

	rw := env.do(http.MethodPost, "/api/v1/public/book", "", body)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	var resp bookResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StartTime != "2025-03-10T09:30:00Z" || resp.EndTime != "2025-03-10T10:00:00Z" || resp.Status != model.BookingStatusBooked {
		t.Fatalf("unexpected response %+v", resp)
	}

	// The slot is no longer offered, so a second attempt is rejected before storage.
	if rw := env.do(http.MethodPost, "/api/v1/public/book", "", body); rw.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for taken slot, got %d", rw.Code)
	}
	rw = env.do(http.MethodGet, "/api/v1/public/slots?event_id=ev-half&date=2025-03-10", "", "")
	if got := slotTimes(decodeSlots(t, rw)); got != "09:00" {
		t.Fatalf("expected only 09:00 left, got %s", got)
	}
}

func TestBookRejections(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing name", `{"event_id":"ev-half","email":"a@example.com","date":"2025-03-10","time":"09:00"}`, http.StatusBadRequest},
		{"bad email", `{"event_id":"ev-half","name":"A","email":"not-an-email","date":"2025-03-10","time":"09:00"}`, http.StatusBadRequest},
		{"display name email", `{"event_id":"ev-half","name":"A","email":"A <a@example.com>","date":"2025-03-10","time":"09:00"}`, http.StatusBadRequest},
		{"bad date", `{"event_id":"ev-half","name":"A","email":"a@example.com","date":"March 10","time":"09:00"}`, http.StatusBadRequest},
		{"bad time", `{"event_id":"ev-half","name":"A","email":"a@example.com","date":"2025-03-10","time":"9am"}`, http.StatusBadRequest},
		{"unknown event", `{"event_id":"nope","name":"A","email":"a@example.com","date":"2025-03-10","time":"09:00"}`, http.StatusNotFound},
		{"off grid", `{"event_id":"ev-half","name":"A","email":"a@example.com","date":"2025-03-10","time":"09:15"}`, http.StatusUnprocessableEntity},
		{"unavailable day", `{"event_id":"ev-half","name":"A","email":"a@example.com","date":"2025-03-11","time":"09:00"}`, http.StatusUnprocessableEntity},
		{"past date", `{"event_id":"ev-half","name":"A","email":"a@example.com","date":"2025-03-03","time":"09:00"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		if rw := env.do(http.MethodPost, "/api/v1/public/book", "", tc.body); rw.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.want, rw.Code, rw.Body.String())
		}
	}
}

func TestBookConcurrentConflict(t *testing.T) {
	env := newTestEnv(t)
	env.bookings.forceTake = true
	body := `{"event_id":"ev-half","name":"Ada","email":"ada@example.com","date":"2025-03-10","time":"09:00"}`
	if rw := env.do(http.MethodPost, "/api/v1/public/book", "", body); rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rw.Code)
	}
}

func TestAvailabilityCRUD(t *testing.T) {
	env := newTestEnv(t)
	if rw := env.do(http.MethodGet, "/api/v1/availability", "", ""); rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without caller, got %d", rw.Code)
	}
	if rw := env.do(http.MethodGet, "/api/v1/availability", "host-2", ""); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}

	invalid := `{"friday":{"isAvailable":true,"startTime":"17:00","endTime":"09:00"},"timeGap":0}`
	if rw := env.do(http.MethodPut, "/api/v1/availability", "host-2", invalid); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted window, got %d", rw.Code)
	}

	valid := `{"friday":{"isAvailable":true,"startTime":"09:00","endTime":"12:00"},"timeGap":10}`
	if rw := env.do(http.MethodPut, "/api/v1/availability", "host-2", valid); rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	rw := env.do(http.MethodGet, "/api/v1/availability", "host-2", "")
	var got model.WeeklyAvailability
	if err := json.Unmarshal(rw.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Available(time.Friday) || got.TimeGap != 10 || got.UserID != "host-2" {
		t.Fatalf("unexpected availability %+v", got)
	}

	if rw := env.do(http.MethodDelete, "/api/v1/availability", "host-2", ""); rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if rw := env.do(http.MethodDelete, "/api/v1/availability", "host-2", ""); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rw.Code)
	}
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t)
	rw := env.do(http.MethodPost, "/api/v1/events", "host-2", `{"title":"Office hours","description":"Open Q&A","duration_minutes":45}`)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	var created eventItem
	if err := json.Unmarshal(rw.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.EventID == "" || created.UserID != "host-2" || created.DurationMinutes != 45 {
		t.Fatalf("unexpected event %+v", created)
	}

	if rw := env.do(http.MethodPost, "/api/v1/events", "host-2", `{"title":"","description":"x","duration_minutes":45}`); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}

	rw = env.do(http.MethodGet, "/api/v1/events", "host-2", "")
	var list []eventItem
	if err := json.Unmarshal(rw.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("expected one event, got %s", rw.Body.String())
	}
	if rw := env.do(http.MethodGet, "/api/v1/events", "host-3", ""); rw.Body.String() != "[]" {
		t.Fatalf("expected [], got %s", rw.Body.String())
	}

	env.events.booked["ev-half"] = true
	if rw := env.do(http.MethodDelete, "/api/v1/events?event_id=ev-half", "host-1", ""); rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rw.Code)
	}
	if rw := env.do(http.MethodDelete, "/api/v1/events?event_id="+created.EventID, "host-1", ""); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another host's event, got %d", rw.Code)
	}
	if rw := env.do(http.MethodDelete, "/api/v1/events?event_id="+created.EventID, "host-2", ""); rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
}

func TestBookingsListAndCancel(t *testing.T) {
	env := newTestEnv(t)
	env.bookings.items = []model.Booking{
		{ID: "bk-past", UserID: "host-1", Status: model.BookingStatusBooked, StartTime: testNow.Add(-48 * time.Hour), EndTime: testNow.Add(-47 * time.Hour)},
		{ID: "bk-next", UserID: "host-1", Status: model.BookingStatusBooked, StartTime: testNow.Add(time.Hour), EndTime: testNow.Add(90 * time.Minute)},
	}

	rw := env.do(http.MethodGet, "/api/v1/bookings", "host-1", "")
	var items []bookingItem
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil || len(items) != 1 || items[0].BookingID != "bk-next" {
		t.Fatalf("unexpected upcoming %s", rw.Body.String())
	}
	rw = env.do(http.MethodGet, "/api/v1/bookings?type=past", "host-1", "")
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil || len(items) != 1 || items[0].BookingID != "bk-past" {
		t.Fatalf("unexpected past %s", rw.Body.String())
	}
	if rw := env.do(http.MethodGet, "/api/v1/bookings?type=all", "host-1", ""); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rw.Code)
	}

	rw = env.do(http.MethodPost, "/api/v1/bookings/cancel", "host-1", `{"booking_id":"bk-next","reason":"sick"}`)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var cancelled cancelBookingResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &cancelled); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cancelled.Status != model.BookingStatusCancelled || cancelled.CancelledAt == "" {
		t.Fatalf("unexpected cancel response %+v", cancelled)
	}
	if rw := env.do(http.MethodPost, "/api/v1/bookings/cancel", "host-1", `{"booking_id":"bk-next"}`); rw.Code != http.StatusOK {
		t.Fatalf("expected repeat cancel to succeed, got %d", rw.Code)
	}
	if rw := env.do(http.MethodPost, "/api/v1/bookings/cancel", "host-2", `{"booking_id":"bk-next"}`); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another host, got %d", rw.Code)
	}
}

func TestStrictBufferPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.avail.byUID["host-1"] = &model.WeeklyAvailability{
		UserID:  "host-1",
		Monday:  &model.DayAvailability{IsAvailable: true, StartTime: "09:00", EndTime: "12:00"},
		TimeGap: 15,
	}
	env.bookings.items = []model.Booking{{
		ID: "bk-1", UserID: "host-1", Status: model.BookingStatusBooked,
		StartTime: time.Date(2025, 3, 17, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 3, 17, 10, 30, 0, 0, time.UTC),
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	NewSchedulingHandler(env.stores(), logger, Config{Policy: slots.Policy{BufferAroundBookings: true}}).
		WithClock(func() time.Time { return testNow }).
		Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?user_id=host-1&date=2025-03-17", nil)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if got := slotTimes(decodeSlots(t, rw)); got != "09:00,11:00,11:30" {
		t.Fatalf("expected buffered slots, got %s", got)
	}

	rw = env.do(http.MethodGet, "/api/v1/public/slots?user_id=host-1&date=2025-03-17", "", "")
	if got := slotTimes(decodeSlots(t, rw)); got != "09:00,09:30,10:30,11:00,11:30" {
		t.Fatalf("expected unbuffered slots by default, got %s", got)
	}
}

func TestEventVisibilityAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	rw := env.do(http.MethodPost, "/api/v1/events", "host-1", `{"title":"Board sync","description":"Monthly","duration_minutes":30}`)
	var private eventItem
	if err := json.Unmarshal(rw.Body.Bytes(), &private); err != nil || rw.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rw.Code, rw.Body.String())
	}
	if !private.IsPrivate {
		t.Fatal("events without is_private must default to private")
	}
	rw = env.do(http.MethodPost, "/api/v1/events", "host-1", `{"title":"Open office","description":"Drop in","duration_minutes":30,"is_private":false}`)
	var public eventItem
	if err := json.Unmarshal(rw.Body.Bytes(), &public); err != nil || public.IsPrivate {
		t.Fatalf("expected public event, got %s", rw.Body.String())
	}

	listed := func() map[string]bool {
		t.Helper()
		rw := env.do(http.MethodGet, "/api/v1/public/events?user_id=host-1", "", "")
		var items []eventItem
		if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
			t.Fatalf("decode: %v (%s)", err, rw.Body.String())
		}
		ids := map[string]bool{}
		for _, it := range items {
			ids[it.EventID] = true
		}
		return ids
	}
	ids := listed()
	if ids[private.EventID] || !ids[public.EventID] || !ids["ev-half"] || len(ids) != 3 {
		t.Fatalf("unexpected public listing %v", ids)
	}
	if rw := env.do(http.MethodGet, "/api/v1/public/events", "", ""); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without user_id, got %d", rw.Code)
	}

	rw = env.do(http.MethodGet, "/api/v1/events?event_id=ev-half", "host-1", "")
	var one eventItem
	if err := json.Unmarshal(rw.Body.Bytes(), &one); err != nil || one.Title != "Quick chat" {
		t.Fatalf("expected ev-half, got %d %s", rw.Code, rw.Body.String())
	}
	if rw := env.do(http.MethodGet, "/api/v1/events?event_id=ev-half", "host-2", ""); rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another host, got %d", rw.Code)
	}

	rw = env.do(http.MethodPut, "/api/v1/events?event_id=ev-half", "host-1", `{"title":"Longer chat","description":"d","duration_minutes":45}`)
	var updated eventItem
	if err := json.Unmarshal(rw.Body.Bytes(), &updated); err != nil || rw.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rw.Code, rw.Body.String())
	}
	if updated.Title != "Longer chat" || updated.DurationMinutes != 45 || updated.IsPrivate {
		t.Fatalf("unexpected update %+v", updated)
	}
	if rw := env.do(http.MethodPut, "/api/v1/events?event_id=ev-half", "host-1", `{"title":"Longer chat","description":"d","duration_minutes":45,"is_private":true}`); rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if listed()["ev-half"] {
		t.Fatal("event made private must leave the public listing")
	}

	cases := []struct {
		name, target, user, body string
		want                     int
	}{
		{"other host", "/api/v1/events?event_id=ev-hour", "host-2", `{"title":"x","description":"d","duration_minutes":30}`, http.StatusNotFound},
		{"invalid", "/api/v1/events?event_id=ev-hour", "host-1", `{"title":"x","description":"d","duration_minutes":0}`, http.StatusBadRequest},
		{"missing id", "/api/v1/events", "host-1", `{"title":"x","description":"d","duration_minutes":30}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if rw := env.do(http.MethodPut, tc.target, tc.user, tc.body); rw.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, rw.Code)
		}
	}
}

func decodeMeetingRequest(t *testing.T, rw *httptest.ResponseRecorder) meetingRequestItem {
	t.Helper()
	var item meetingRequestItem
	if err := json.Unmarshal(rw.Body.Bytes(), &item); err != nil {
		t.Fatalf("decode meeting request: %v (%s)", err, rw.Body.String())
	}
	return item
}

func requestBody(clock string) string {
	return `{"receiver_id":"host-1","requester_name":"Ada","requester_email":"ada@example.com","date":"2025-03-10","time":"` + clock + `","description":"Intro"}`
}

func TestMeetingRequestApproveFlow(t *testing.T) {
	env := newTestEnv(t)
	rw := env.do(http.MethodPost, "/api/v1/meeting-requests", "guest-1", requestBody("09:00"))
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	created := decodeMeetingRequest(t, rw)
	if created.Status != model.MeetingRequestPending || created.Title != "Meeting request" || created.EndTime != "2025-03-10T09:30:00Z" {
		t.Fatalf("unexpected request %+v", created)
	}

	rw = env.do(http.MethodGet, "/api/v1/meeting-requests?box=pending", "host-1", "")
	var pending []meetingRequestItem
	if err := json.Unmarshal(rw.Body.Bytes(), &pending); err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending request, got %s", rw.Body.String())
	}
	if rw := env.do(http.MethodGet, "/api/v1/meeting-requests?box=sent", "guest-1", ""); !strings.Contains(rw.Body.String(), created.RequestID) {
		t.Fatalf("expected request in sent box, got %s", rw.Body.String())
	}
	if rw := env.do(http.MethodGet, "/api/v1/meeting-requests?box=sent", "host-1", ""); rw.Body.String() != "[]" {
		t.Fatalf("expected empty sent box, got %s", rw.Body.String())
	}
	if rw := env.do(http.MethodGet, "/api/v1/meeting-requests?box=archive", "host-1", ""); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown box, got %d", rw.Code)
	}

	action := `{"request_id":"` + created.RequestID + `"}`
	if rw := env.do(http.MethodPost, "/api/v1/meeting-requests/approve", "guest-1", action); rw.Code != http.StatusNotFound {
		t.Fatalf("only the receiver may approve, got %d", rw.Code)
	}
	rw = env.do(http.MethodPost, "/api/v1/meeting-requests/approve", "host-1", action)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var approved approveResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &approved); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if approved.Request.Status != model.MeetingRequestApproved || approved.Booking.BookingID == "" || approved.Request.BookingID != approved.Booking.BookingID {
		t.Fatalf("unexpected approval %+v", approved)
	}
	if approved.Booking.StartTime != "2025-03-10T09:00:00Z" || approved.Booking.EventID != "" {
		t.Fatalf("unexpected booking %+v", approved.Booking)
	}

	rw = env.do(http.MethodGet, "/api/v1/public/slots?user_id=host-1&date=2025-03-10", "", "")
	if got := slotTimes(decodeSlots(t, rw)); got != "09:30" {
		t.Fatalf("approved request must block its slot, got %s", got)
	}
	if rw := env.do(http.MethodPost, "/api/v1/meeting-requests/approve", "host-1", action); rw.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second approval, got %d", rw.Code)
	}
	if rw := env.do(http.MethodPost, "/api/v1/meeting-requests", "guest-2", requestBody("09:00")); rw.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a booked slot, got %d", rw.Code)
	}
}

func TestMeetingRequestRejectAndCancel(t *testing.T) {
	env := newTestEnv(t)
	first := decodeMeetingRequest(t, env.do(http.MethodPost, "/api/v1/meeting-requests", "guest-1", requestBody("09:30")))

	rw := env.do(http.MethodPost, "/api/v1/meeting-requests/reject", "host-1", `{"request_id":"`+first.RequestID+`"}`)
	rejected := decodeMeetingRequest(t, rw)
	if rejected.Status != model.MeetingRequestRejected || rejected.RejectionReason != model.DefaultRejectionReason {
		t.Fatalf("unexpected rejection %+v", rejected)
	}
	if rw := env.do(http.MethodPost, "/api/v1/meeting-requests/cancel", "guest-1", `{"request_id":"`+first.RequestID+`"}`); rw.Code != http.StatusConflict {
		t.Fatalf("expected 409 cancelling a rejected request, got %d", rw.Code)
	}

	// A rejected request does not hold the slot.
	rw = env.do(http.MethodPost, "/api/v1/meeting-requests", "guest-1", requestBody("09:30"))
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}
	second := decodeMeetingRequest(t, rw)
	if rw := env.do(http.MethodPost, "/api/v1/meeting-requests/cancel", "host-1", `{"request_id":"`+second.RequestID+`"}`); rw.Code != http.StatusNotFound {
		t.Fatalf("only the requester may cancel, got %d", rw.Code)
	}
	cancelled := decodeMeetingRequest(t, env.do(http.MethodPost, "/api/v1/meeting-requests/cancel", "guest-1", `{"request_id":"`+second.RequestID+`"}`))
	if cancelled.Status != model.MeetingRequestCancelled {
		t.Fatalf("unexpected cancel %+v", cancelled)
	}
}

func TestMeetingRequestExpiredApproval(t *testing.T) {
	env := newTestEnv(t)
	m := decodeMeetingRequest(t, env.do(http.MethodPost, "/api/v1/meeting-requests", "guest-1", requestBody("09:30")))
	env.now = time.Date(2025, 3, 10, 9, 45, 0, 0, time.UTC)
	if rw := env.do(http.MethodPost, "/api/v1/meeting-requests/approve", "host-1", `{"request_id":"`+m.RequestID+`"}`); rw.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a request whose start has passed, got %d", rw.Code)
	}
}

func TestMeetingRequestRejections(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name, user, body string
		want             int
	}{
		{"no caller", "", requestBody("09:00"), http.StatusUnauthorized},
		{"bad json", "guest-1", `{`, http.StatusBadRequest},
		{"missing receiver", "guest-1", `{"requester_name":"Ada","requester_email":"ada@example.com","date":"2025-03-10","time":"09:00"}`, http.StatusBadRequest},
		{"self", "host-1", requestBody("09:00"), http.StatusBadRequest},
		{"bad email", "guest-1", `{"receiver_id":"host-1","requester_name":"Ada","requester_email":"nope","date":"2025-03-10","time":"09:00"}`, http.StatusBadRequest},
		{"bad time", "guest-1", requestBody("9am"), http.StatusBadRequest},
		{"off grid", "guest-1", requestBody("09:15"), http.StatusUnprocessableEntity},
		{"unknown receiver", "guest-1", `{"receiver_id":"host-9","requester_name":"Ada","requester_email":"ada@example.com","date":"2025-03-10","time":"09:00"}`, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		if rw := env.do(http.MethodPost, "/api/v1/meeting-requests", tc.user, tc.body); rw.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.want, rw.Code, rw.Body.String())
		}
	}
	if rw := env.do(http.MethodPost, "/api/v1/meeting-requests/approve", "host-1", `{}`); rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without request_id, got %d", rw.Code)
	}
	if rw := env.do(http.MethodGet, "/api/v1/meeting-requests/reject", "host-1", ""); rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}
