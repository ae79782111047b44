package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ActivateRequest defines the request body for POST /activate.
type ActivateRequest struct {
	SessionID string `json:"session_id"`
}

// ActivateHandler handles requests to publish a provisioned session.
type ActivateHandler struct {
	logger   *slog.Logger
	launcher Launcher
}

// NewActivateHandler creates a new ActivateHandler.
func NewActivateHandler(logger *slog.Logger, launcher Launcher) *ActivateHandler {
	return &ActivateHandler{
		logger:   logger,
		launcher: launcher,
	}
}

// ServeHTTP implements http.Handler.
func (h *ActivateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid JSON: %v", err),
		})
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "session_id is required",
		})
		return
	}

	if err := h.launcher.Activate(r.Context(), req.SessionID); err != nil {
		h.logger.Error("activation failed", "session_id", req.SessionID, "error", err)
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
