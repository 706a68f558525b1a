package api

import (
	"io"
	"log/slog"
	"net/http"
)

// maxPassthroughBody bounds bodies buffered for the typed pass-through
// endpoints. The catch-all proxy streams instead and has no bound.
const maxPassthroughBody = 10 << 20

// passthroughHandler forwards requests to the backend without
// augmentation.
type passthroughHandler struct {
	logger  *slog.Logger
	backend Backend
}

// embeddings forwards the raw body to the backend embeddings endpoint.
// The proxy neither validates nor rewrites it: embedding requests carry
// no question to augment.
func (h *passthroughHandler) embeddings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPassthroughBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "failed to read request body")
		return
	}

	reply, err := h.backend.Embeddings(r.Context(), body)
	if err != nil {
		writeBackendError(w, h.logger, "embeddings", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(reply); err != nil {
		h.logger.Debug("failed to write response body", "error", err)
	}
}

// tags forwards the model list request.
func (h *passthroughHandler) tags(w http.ResponseWriter, r *http.Request) {
	reply, err := h.backend.Tags(r.Context())
	if err != nil {
		writeBackendError(w, h.logger, "tags", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(reply); err != nil {
		h.logger.Debug("failed to write response body", "error", err)
	}
}

// proxy is the catch-all: any unrecognized path is forwarded to the
// backend with method, headers, body, status, and streamed bytes
// preserved. Backend error statuses pass through untouched here, unlike
// the typed endpoints which map them.
func (h *passthroughHandler) proxy(w http.ResponseWriter, r *http.Request) {
	pathAndQuery := r.URL.Path
	if r.URL.RawQuery != "" {
		pathAndQuery += "?" + r.URL.RawQuery
	}

	resp, err := h.backend.Proxy(r.Context(), r.Method, pathAndQuery, r.Header, r.Body)
	if err != nil {
		writeBackendError(w, h.logger, "proxy", err)
		return
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			h.logger.Debug("closing proxied body", "error", cerr)
		}
	}()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				h.logger.Debug("client disconnected mid-proxy", "error", werr)
				return
			}
			if ferr := rc.Flush(); ferr != nil {
				h.logger.Debug("flushing proxied chunk", "error", ferr)
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				h.logger.Warn("proxied stream interrupted", "error", rerr)
			}
			return
		}
	}
}
