package rest

import (
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/osa030/19dig/internal/app/interaction"
	"github.com/osa030/19dig/internal/app/library"
	"github.com/osa030/19dig/internal/domain/preference"
)

type interactionRequest struct {
	SongID       string `json:"song_id" validate:"required"`
	Action       string `json:"action" validate:"required"`
	PlayDuration int    `json:"play_duration" validate:"gte=0"`
	Completed    bool   `json:"completed"`
}

func (h *Handler) addSong(w http.ResponseWriter, r *http.Request) {
	var req library.AddSongRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields", err)
		return
	}

	song, created, err := h.library.AddSong(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to add song", err)
		return
	}

	status, msg := http.StatusCreated, "Song added to database successfully"
	if !created {
		status, msg = http.StatusOK, "Song already exists in database"
	}
	writeJSON(w, status, map[string]any{"message": msg, "data": song})
}

func (h *Handler) trackInteraction(w http.ResponseWriter, r *http.Request) {
	var req interactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields", err)
		return
	}
	action, ok := interaction.ParseAction(req.Action)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid action", nil)
		return
	}

	err := h.interactions.Record(r.Context(), UserID(r.Context()), req.SongID, action, req.PlayDuration, req.Completed)
	if err != nil {
		if errors.Is(err, preference.ErrInvalidUpdate) {
			writeError(w, http.StatusBadRequest, "Invalid interaction", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to track interaction", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Interaction tracked successfully",
		"action":  action,
	})
}

func (h *Handler) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.interactions.Get(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": prefs})
}

func (h *Handler) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch preference.Patch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	prefs, err := h.interactions.Update(r.Context(), UserID(r.Context()), patch)
	if err != nil {
		if errors.Is(err, preference.ErrInvalidUpdate) {
			writeError(w, http.StatusBadRequest, "Invalid preferences", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to update preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Preferences updated successfully",
		"data":    prefs,
	})
}
