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

// eventRequest is the body of create and update. A missing is_private means private on
// create and unchanged on update.
type eventRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	IsPrivate       *bool  `json:"is_private"`
}

type eventItem struct {
	EventID         string `json:"event_id"`
	UserID          string `json:"user_id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	IsPrivate       bool   `json:"is_private"`
	BookingCount    int    `json:"booking_count"`
	CreatedAt       string `json:"created_at"`
}

func toEventItem(evt model.Event) eventItem {
	return eventItem{
		EventID:         evt.ID,
		UserID:          evt.UserID,
		Title:           evt.Title,
		Description:     evt.Description,
		DurationMinutes: evt.DurationMinutes,
		IsPrivate:       evt.IsPrivate,
		BookingCount:    evt.BookingCount,
		CreatedAt:       evt.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Events serves the caller's event types: GET lists them (or returns one with ?event_id=),
// POST creates, PUT ?event_id= updates and DELETE ?event_id= removes.
func (h *SchedulingHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	eventID := strings.TrimSpace(r.URL.Query().Get("event_id"))

	switch r.Method {
	case http.MethodGet:
		if eventID != "" {
			evt, ok := h.ownEvent(w, r, userID, eventID)
			if ok {
				h.writeJSON(w, http.StatusOK, toEventItem(evt))
			}
			return
		}
		events, err := h.events.ListByUser(r.Context(), userID)
		if err != nil {
			h.internalError(w, r, "failed to list events", err)
			return
		}
		h.writeJSON(w, http.StatusOK, toEventItems(events))

	case http.MethodPost:
		req, ok := decodeEventRequest(w, r)
		if !ok {
			return
		}
		evt := &model.Event{
			UserID:          userID,
			Title:           strings.TrimSpace(req.Title),
			Description:     strings.TrimSpace(req.Description),
			DurationMinutes: req.DurationMinutes,
			IsPrivate:       req.IsPrivate == nil || *req.IsPrivate,
		}
		if err := evt.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		created, err := h.events.Create(r.Context(), evt)
		if err != nil {
			h.internalError(w, r, "failed to create event", err)
			return
		}
		h.writeJSON(w, http.StatusCreated, toEventItem(created))

	case http.MethodPut:
		if eventID == "" {
			http.Error(w, "event_id required", http.StatusBadRequest)
			return
		}
		req, ok := decodeEventRequest(w, r)
		if !ok {
			return
		}
		existing, ok := h.ownEvent(w, r, userID, eventID)
		if !ok {
			return
		}
		existing.Title = strings.TrimSpace(req.Title)
		existing.Description = strings.TrimSpace(req.Description)
		existing.DurationMinutes = req.DurationMinutes
		if req.IsPrivate != nil {
			existing.IsPrivate = *req.IsPrivate
		}
		if err := existing.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		updated, err := h.events.Update(r.Context(), userID, &existing)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "event not found", http.StatusNotFound)
				return
			}
			h.internalError(w, r, "failed to update event", err)
			return
		}
		h.writeJSON(w, http.StatusOK, toEventItem(updated))

	case http.MethodDelete:
		if eventID == "" {
			http.Error(w, "event_id required", http.StatusBadRequest)
			return
		}
		if err := h.events.Delete(r.Context(), userID, eventID); err != nil {
			switch {
			case errors.Is(err, storage.ErrNotFound):
				http.Error(w, "event not found", http.StatusNotFound)
			case errors.Is(err, storage.ErrHasBookings):
				http.Error(w, "event has upcoming bookings", http.StatusConflict)
			default:
				h.internalError(w, r, "failed to delete event", err)
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// PublicEvents lists the non-private event types of user_id for guests.
func (h *SchedulingHandler) PublicEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	events, err := h.events.ListPublicByUser(r.Context(), userID)
	if err != nil {
		h.internalError(w, r, "failed to list events", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toEventItems(events))
}

// ownEvent loads eventID and hides events of other hosts behind a 404.
func (h *SchedulingHandler) ownEvent(w http.ResponseWriter, r *http.Request, userID, eventID string) (model.Event, bool) {
	evt, err := h.events.Get(r.Context(), eventID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.internalError(w, r, "failed to load event", err)
		return model.Event{}, false
	}
	if err != nil || evt.UserID != userID {
		http.Error(w, "event not found", http.StatusNotFound)
		return model.Event{}, false
	}
	return evt, true
}

func decodeEventRequest(w http.ResponseWriter, r *http.Request) (eventRequest, bool) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return eventRequest{}, false
	}
	return req, true
}

func toEventItems(events []model.Event) []eventItem {
	items := make([]eventItem, 0, len(events))
	for _, evt := range events {
		items = append(items, toEventItem(evt))
	}
	return items
}
