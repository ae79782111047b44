package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nomis52/adlift/store"
)

// LaunchRequest defines the request body for POST /launch.
type LaunchRequest struct {
	SessionID string `json:"session_id"`

	// Publish activates the ad immediately after a complete chain.
	Publish bool `json:"publish"`
}

// LaunchResponse is returned when every step completed.
type LaunchResponse struct {
	SessionID string           `json:"session_id"`
	RunID     string           `json:"run_id"`
	Resources store.Checkpoint `json:"resources"`
	Published bool             `json:"published"`
}

// StepFailureResponse is returned when a provisioning step failed. The
// resources map still lists everything created before the failure; a retry
// resumes from there.
type StepFailureResponse struct {
	SessionID  string           `json:"session_id"`
	RunID      string           `json:"run_id"`
	FailedStep string           `json:"failed_step"`
	Resources  store.Checkpoint `json:"resources"`
	Error      string           `json:"error"`
}

// LaunchHandler handles requests to run the provisioning pipeline.
type LaunchHandler struct {
	logger   *slog.Logger
	launcher Launcher
}

// NewLaunchHandler creates a new LaunchHandler.
func NewLaunchHandler(logger *slog.Logger, launcher Launcher) *LaunchHandler {
	return &LaunchHandler{
		logger:   logger,
		launcher: launcher,
	}
}

// ServeHTTP implements http.Handler.
func (h *LaunchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req LaunchRequest
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

	result, err := h.launcher.Launch(r.Context(), req.SessionID, req.Publish)
	if err != nil {
		h.logger.Error("launch failed", "session_id", req.SessionID, "error", err)
		writeError(w, err)
		return
	}

	if !result.Succeeded() {
		writeJSON(w, http.StatusBadGateway, StepFailureResponse{
			SessionID:  result.SessionID,
			RunID:      result.RunID,
			FailedStep: result.FailedStep,
			Resources:  result.Resources,
			Error:      result.Message,
		})
		return
	}

	writeJSON(w, http.StatusOK, LaunchResponse{
		SessionID: result.SessionID,
		RunID:     result.RunID,
		Resources: result.Resources,
		Published: req.Publish,
	})
}
