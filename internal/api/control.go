package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
)

// controlHandler serves the runtime control and debug endpoints.
type controlHandler struct {
	logger *slog.Logger
	web    WebToggle
}

// enableWebSearch flips the web augmentation flag. An absent or
// unparsable enabled parameter turns the feature on, matching a bare
// GET /control/enable_web_search used as an "on switch".
func (h *controlHandler) enableWebSearch(w http.ResponseWriter, r *http.Request) {
	enabled := true
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			enabled = v
		}
	}

	h.web.SetEnabled(enabled)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "success",
		"web_search_enabled": enabled,
	})
}

// debugEcho echoes the decoded JSON body back, a quick connectivity and
// serialization check for clients.
func (h *controlHandler) debugEcho(w http.ResponseWriter, r *http.Request) {
	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON format")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"received_body": body,
	})
}
