package handlers

import "net/http"

// SessionHandler returns the launch state of a session.
type SessionHandler struct {
	launcher Launcher
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(launcher Launcher) *SessionHandler {
	return &SessionHandler{launcher: launcher}
}

// ServeHTTP implements http.Handler.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "id query parameter is required",
		})
		return
	}

	status, err := h.launcher.SessionStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
