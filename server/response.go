package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"Resona/core/engine"
	"Resona/core/player"
	"Resona/logger"

	"github.com/disgoorg/snowflake/v2"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			logger.Error("failed to encode response", logger.ErrorField(err))
		}
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps orchestration errors onto HTTP statuses. Anything
// unrecognized is logged with guild and action context and surfaced as a
// generic 500.
func writeServiceError(w http.ResponseWriter, err error, guildID snowflake.ID, action string) {
	switch {
	case errors.Is(err, engine.ErrNoPlayer):
		writeError(w, http.StatusNotFound, "No active player found")
	case errors.Is(err, player.ErrTrackNotFound):
		writeError(w, http.StatusNotFound, "Track not found")
	case errors.Is(err, engine.ErrTrackLoad):
		writeError(w, http.StatusBadRequest, "Failed to load track")
	case errors.Is(err, player.ErrVolumeRange):
		writeError(w, http.StatusBadRequest, "Volume must be between 0 and 100")
	case errors.Is(err, engine.ErrUnknownFilter):
		writeError(w, http.StatusBadRequest, "Unknown filter")
	case errors.Is(err, player.ErrBadRepeatMode):
		writeError(w, http.StatusBadRequest, "Invalid repeat mode")
	default:
		logger.Error("request failed",
			logger.ErrorField(err),
			logger.Guild(guildID),
			logger.String("action", action))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
