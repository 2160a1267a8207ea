package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/verho/replayd/internal/apperr"
	"github.com/verho/replayd/internal/player"
	"github.com/verho/replayd/internal/recorder"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps engine errors to HTTP statuses. Unknown errors are
// logged and reported as a plain 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrEmptyMacro):
		writeJSON(w, http.StatusBadRequest, errorBody("macro has no steps"))
	case errors.Is(err, apperr.ErrAlreadyActive):
		writeJSON(w, http.StatusConflict, errorBody("engine is busy"))
	case errors.Is(err, recorder.ErrNotRecording):
		writeJSON(w, http.StatusConflict, errorBody("no recording in progress"))
	case errors.Is(err, player.ErrNotPlaying):
		writeJSON(w, http.StatusConflict, errorBody("no playback in progress"))
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
