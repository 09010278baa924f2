package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// PresenceResponse reports a user's presence.
type PresenceResponse struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// Presence handles presence lookup. Users without a live record are offline.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "userId")

	// Validate UUID format
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid user ID format")
		return
	}

	status, err := h.redis.GetPresence(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "presence lookup failed")
		return
	}

	h.JSON(w, http.StatusOK, PresenceResponse{
		UserID: id.String(),
		Status: status,
	})
}
