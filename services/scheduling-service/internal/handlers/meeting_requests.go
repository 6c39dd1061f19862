package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/storage"
)

const (
	defaultRequestTitle      = "Meeting request"
	maxRejectionReasonLength = 500
)

type createMeetingRequestBody struct {
	ReceiverID      string `json:"receiver_id"`
	RequesterName   string `json:"requester_name"`
	RequesterEmail  string `json:"requester_email"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	TZ              string `json:"tz"`
}

type meetingRequestActionBody struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

type meetingRequestItem struct {
	RequestID       string `json:"request_id"`
	RequesterID     string `json:"requester_id"`
	RequesterName   string `json:"requester_name"`
	RequesterEmail  string `json:"requester_email"`
	ReceiverID      string `json:"receiver_id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	BookingID       string `json:"booking_id,omitempty"`
	CreatedAt       string `json:"created_at"`
}

type approveResponse struct {
	Request meetingRequestItem `json:"request"`
	Booking bookResponse       `json:"booking"`
}

func toMeetingRequestItem(m model.MeetingRequest) meetingRequestItem {
	return meetingRequestItem{
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
		RejectionReason: m.RejectionReason,
		BookingID:       m.BookingID,
		CreatedAt:       m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// MeetingRequests lists the caller's requests (GET ?box=pending|received|sent) or asks
// receiver_id for one of their open slots (POST).
func (h *SchedulingHandler) MeetingRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.listMeetingRequests(w, r, userID)
	case http.MethodPost:
		h.createMeetingRequest(w, r, userID)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SchedulingHandler) listMeetingRequests(w http.ResponseWriter, r *http.Request, userID string) {
	box := strings.TrimSpace(r.URL.Query().Get("box"))
	switch box {
	case "":
		box = storage.MailboxReceived
	case storage.MailboxPending, storage.MailboxReceived, storage.MailboxSent:
	default:
		http.Error(w, "box must be pending, received or sent", http.StatusBadRequest)
		return
	}
	requests, err := h.requests.List(r.Context(), userID, box)
	if err != nil {
		h.internalError(w, r, "failed to list meeting requests", err)
		return
	}
	items := make([]meetingRequestItem, 0, len(requests))
	for _, m := range requests {
		items = append(items, toMeetingRequestItem(m))
	}
	h.writeJSON(w, http.StatusOK, items)
}

func (h *SchedulingHandler) createMeetingRequest(w http.ResponseWriter, r *http.Request, requesterID string) {
	var body createMeetingRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	body.ReceiverID = strings.TrimSpace(body.ReceiverID)
	body.RequesterName = strings.TrimSpace(body.RequesterName)
	body.RequesterEmail = strings.TrimSpace(body.RequesterEmail)
	body.Title = strings.TrimSpace(body.Title)
	body.Description = strings.TrimSpace(body.Description)
	if body.ReceiverID == "" {
		http.Error(w, "receiver_id required", http.StatusBadRequest)
		return
	}
	if msg := validateGuest(body.RequesterName, body.RequesterEmail); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}
	if body.Title == "" {
		body.Title = defaultRequestTitle
	}
	duration := body.DurationMinutes
	if duration == 0 {
		duration = h.cfg.DefaultSlotMinutes
	}
	if duration < 0 {
		http.Error(w, "duration_minutes must be positive", http.StatusBadRequest)
		return
	}
	date, start, loc, msg := h.requestedStart(body.Date, body.Time, body.TZ)
	if msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	m := &model.MeetingRequest{
		RequesterID:    requesterID,
		RequesterName:  body.RequesterName,
		RequesterEmail: body.RequesterEmail,
		ReceiverID:     body.ReceiverID,
		Title:          body.Title,
		Description:    body.Description,
		StartTime:      start,
		EndTime:        start.Add(time.Duration(duration) * time.Minute),
	}
	if err := m.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	avail, err := h.loadAvailability(ctx, body.ReceiverID)
	if err != nil {
		h.internalError(w, r, "failed to load availability", err)
		return
	}
	open, err := h.openSlots(r, body.ReceiverID, avail, date, duration, loc)
	if err != nil {
		h.internalError(w, r, "failed to load booked slots", err)
		return
	}
	if _, ok := slots.Find(open, start); !ok {
		http.Error(w, "requested time is not available", http.StatusUnprocessableEntity)
		return
	}

	created, err := h.requests.Create(ctx, m)
	if err != nil {
		h.internalError(w, r, "failed to create meeting request", err)
		return
	}
	h.logger.Info("meeting request created", "request_id", created.ID, "receiver_id", created.ReceiverID, "start_time", created.StartTime.UTC().Format(time.RFC3339))
	h.writeJSON(w, http.StatusCreated, toMeetingRequestItem(created))
}

// ApproveMeetingRequest books the requested slot on the caller's calendar.
func (h *SchedulingHandler) ApproveMeetingRequest(w http.ResponseWriter, r *http.Request) {
	userID, body, ok := h.meetingRequestAction(w, r)
	if !ok {
		return
	}
	m, booking, err := h.requests.Approve(r.Context(), userID, body.RequestID, h.now())
	if err != nil {
		h.meetingRequestError(w, r, "failed to approve meeting request", err)
		return
	}
	h.logger.Info("meeting request approved", "request_id", m.ID, "booking_id", booking.ID)
	h.writeJSON(w, http.StatusOK, approveResponse{
		Request: toMeetingRequestItem(m),
		Booking: bookResponse{
			BookingID: booking.ID,
			EventID:   booking.EventID,
			StartTime: booking.StartTime.UTC().Format(time.RFC3339),
			EndTime:   booking.EndTime.UTC().Format(time.RFC3339),
			Status:    booking.Status,
		},
	})
}

// RejectMeetingRequest closes a pending request addressed to the caller.
func (h *SchedulingHandler) RejectMeetingRequest(w http.ResponseWriter, r *http.Request) {
	userID, body, ok := h.meetingRequestAction(w, r)
	if !ok {
		return
	}
	if utf8.RuneCountInString(body.Reason) > maxRejectionReasonLength {
		http.Error(w, "reason is too long", http.StatusBadRequest)
		return
	}
	m, err := h.requests.Reject(r.Context(), userID, body.RequestID, body.Reason)
	if err != nil {
		h.meetingRequestError(w, r, "failed to reject meeting request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMeetingRequestItem(m))
}

// CancelMeetingRequest withdraws a pending request the caller made.
func (h *SchedulingHandler) CancelMeetingRequest(w http.ResponseWriter, r *http.Request) {
	userID, body, ok := h.meetingRequestAction(w, r)
	if !ok {
		return
	}
	m, err := h.requests.Cancel(r.Context(), userID, body.RequestID)
	if err != nil {
		h.meetingRequestError(w, r, "failed to cancel meeting request", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toMeetingRequestItem(m))
}

func (h *SchedulingHandler) meetingRequestAction(w http.ResponseWriter, r *http.Request) (string, meetingRequestActionBody, bool) {
	var body meetingRequestActionBody
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", body, false
	}
	userID, ok := callerID(w, r)
	if !ok {
		return "", body, false
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return "", body, false
	}
	body.RequestID = strings.TrimSpace(body.RequestID)
	body.Reason = strings.TrimSpace(body.Reason)
	if body.RequestID == "" {
		http.Error(w, "request_id required", http.StatusBadRequest)
		return "", body, false
	}
	return userID, body, true
}

func (h *SchedulingHandler) meetingRequestError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "meeting request not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrNotPending), errors.Is(err, storage.ErrExpired), errors.Is(err, storage.ErrSlotTaken):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.internalError(w, r, msg, err)
	}
}
