package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ragrelay/ragrelay/internal/relay"
)

// writeJSON writes a JSON response with the given status code.
// Uses buffer-first strategy to ensure headers are only sent after successful
// encoding. This allows returning a proper 500 error if JSON encoding fails.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff") // Prevent MIME type sniffing attacks
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		// Log at debug level - client disconnects are common and expected
		slog.Debug("failed to write response body", "error", err)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeBackendError maps a relay failure to the appropriate HTTP error:
// connection failures to 503, backend-reported errors to 502.
func writeBackendError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var connErr *relay.ConnectError
	if errors.As(err, &connErr) {
		logger.Error("backend unreachable", "op", op, "error", err)
		writeError(w, http.StatusServiceUnavailable, "backend_unavailable", "inference backend is unreachable")
		return
	}

	var upstreamErr *relay.UpstreamError
	if errors.As(err, &upstreamErr) {
		logger.Error("backend error", "op", op, "status", upstreamErr.StatusCode, "error", err)
		writeError(w, http.StatusBadGateway, "upstream_error",
			fmt.Sprintf("backend returned status %d: %s", upstreamErr.StatusCode, upstreamErr.Snippet()))
		return
	}

	logger.Error("backend call failed", "op", op, "error", err)
	writeError(w, http.StatusBadGateway, "upstream_error", "backend call failed")
}
