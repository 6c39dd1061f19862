package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/storage"
)

type bookingItem struct {
	BookingID      string `json:"booking_id"`
	EventID        string `json:"event_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	AdditionalInfo string `json:"additional_info,omitempty"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Status         string `json:"status"`
	CancelledAt    string `json:"cancelled_at,omitempty"`
	CancelReason   string `json:"cancel_reason,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type cancelBookingResponse struct {
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at"`
}

func toBookingItem(b model.Booking) bookingItem {
	item := bookingItem{
		BookingID:      b.ID,
		EventID:        b.EventID,
		Name:           b.Name,
		Email:          b.Email,
		AdditionalInfo: b.AdditionalInfo,
		StartTime:      b.StartTime.UTC().Format(time.RFC3339),
		EndTime:        b.EndTime.UTC().Format(time.RFC3339),
		Status:         b.Status,
		CancelReason:   b.CancelReason,
		CreatedAt:      b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

// ListBookings returns the caller's meetings; type=upcoming (default) or type=past.
func (h *SchedulingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	kind := strings.TrimSpace(r.URL.Query().Get("type"))
	if kind == "" {
		kind = storage.ListUpcoming
	}
	if kind != storage.ListUpcoming && kind != storage.ListPast {
		http.Error(w, "type must be upcoming or past", http.StatusBadRequest)
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil || limit <= 0 || limit > 200 {
		http.Error(w, "limit must be between 1 and 200", http.StatusBadRequest)
		return
	}

	bookings, err := h.bookings.ListByUser(r.Context(), userID, kind, h.now(), limit)
	if err != nil {
		h.internalError(w, r, "failed to list bookings", err)
		return
	}
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingItem(b))
	}
	h.writeJSON(w, http.StatusOK, items)
}

func (h *SchedulingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	b, err := h.bookings.Cancel(r.Context(), userID, req.BookingID, strings.TrimSpace(req.Reason))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		h.internalError(w, r, "failed to cancel booking", err)
		return
	}

	resp := cancelBookingResponse{BookingID: b.ID, Status: b.Status}
	if b.CancelledAt != nil {
		resp.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	h.writeJSON(w, http.StatusOK, resp)
}
