package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nomis52/adlift/pipeline"
	"github.com/nomis52/adlift/selection"
	"github.com/nomis52/adlift/server/launch"
	"github.com/nomis52/adlift/store"
)

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError maps domain errors to HTTP statuses. Missing sessions are 404,
// a concurrent launch is 409, bad selections are 400, everything else is an
// internal error.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), ErrorResponse{Error: err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, launch.ErrNotProvisioned):
		return http.StatusConflict
	case isValidationError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func isValidationError(err error) bool {
	for _, sentinel := range []error{
		selection.ErrUnknownObjective,
		selection.ErrMissingConnection,
		selection.ErrNoCreativeSelected,
		selection.ErrNoCopySelected,
		selection.ErrMissingLeadForm,
		selection.ErrMissingPhoneNumber,
		selection.ErrMissingDestinationURL,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
