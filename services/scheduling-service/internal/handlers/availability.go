package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/meetslot/services/scheduling-service/internal/storage"
)

// Availability serves the caller's weekly template: GET reads, PUT replaces, DELETE removes.
func (h *SchedulingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		avail, err := h.availability.GetByUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "availability not found", http.StatusNotFound)
				return
			}
			h.internalError(w, r, "failed to load availability", err)
			return
		}
		h.writeJSON(w, http.StatusOK, avail)

	case http.MethodPut:
		var req model.WeeklyAvailability
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if err := req.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		saved, err := h.availability.Upsert(r.Context(), userID, &req)
		if err != nil {
			h.internalError(w, r, "failed to save availability", err)
			return
		}
		h.writeJSON(w, http.StatusOK, saved)

	case http.MethodDelete:
		if err := h.availability.DeleteByUser(r.Context(), userID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				http.Error(w, "availability not found", http.StatusNotFound)
				return
			}
			h.internalError(w, r, "failed to delete availability", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
