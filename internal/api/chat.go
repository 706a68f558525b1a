package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/ragrelay/ragrelay/internal/augment"
	"github.com/ragrelay/ragrelay/internal/relay"
)

// chatHandler serves POST /api/chat.
type chatHandler struct {
	logger    *slog.Logger
	augmenter Augmenter
	backend   Backend
	model     string
}

// chat augments the last user turn with retrieved context, then relays
// the conversation to the backend. Earlier turns pass through untouched
// so the model sees its own prior answers verbatim.
func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req relay.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "messages are required")
		return
	}
	if req.Model == "" {
		req.Model = h.model
	}

	if last := &req.Messages[len(req.Messages)-1]; last.Role == "user" {
		last.Content = h.augmenter.Augment(r.Context(), augment.ModeChat, last.Content)
	}

	if req.Stream != nil && *req.Stream {
		h.chatStream(w, r, req)
		return
	}

	reply, err := h.backend.Chat(r.Context(), req)
	if err != nil {
		writeBackendError(w, h.logger, "chat", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(reply); err != nil {
		h.logger.Debug("failed to write response body", "error", err)
	}
}

// chatStream relays the backend's NDJSON reply as produced. Unlike the
// generate relay there is no SSE framing: chat clients consume the
// backend's native line protocol, so bytes are copied through with a
// flush per read.
func (h *chatHandler) chatStream(w http.ResponseWriter, r *http.Request, req relay.ChatRequest) {
	body, err := h.backend.ChatStream(r.Context(), req)
	if err != nil {
		writeBackendError(w, h.logger, "chat stream", err)
		return
	}
	defer func() {
		if cerr := body.Close(); cerr != nil {
			h.logger.Debug("closing backend stream", "error", cerr)
		}
	}()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)

	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				h.logger.Debug("client disconnected mid-stream", "error", werr)
				return
			}
			if ferr := rc.Flush(); ferr != nil {
				h.logger.Debug("flushing stream chunk", "error", ferr)
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				h.logger.Warn("backend stream interrupted", "error", rerr)
			}
			return
		}
	}
}
