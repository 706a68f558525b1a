package api

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ragrelay/ragrelay/internal/augment"
	"github.com/ragrelay/ragrelay/internal/cache"
	"github.com/ragrelay/ragrelay/internal/relay"
)

// maxStreamLineSize bounds a single backend NDJSON line. The final
// generate chunk carries the full context token array, which easily
// exceeds bufio.Scanner's 64KB default.
const maxStreamLineSize = 1 << 20

// SSE framing for the streaming generate relay.
const (
	sseErrorFrame = "event: error\ndata: Invalid JSON line\n\n"
	sseEndFrame   = "event: end\ndata: Stream completed\n\n"
)

// generateHandler serves POST /api/generate.
type generateHandler struct {
	logger    *slog.Logger
	augmenter Augmenter
	backend   Backend
	cache     *cache.Store
	model     string
}

// GenerateResponse is the non-streaming /api/generate reply: the stable
// field subset of the backend's completion, plus cache provenance.
type GenerateResponse struct {
	Model         string          `json:"model"`
	CreatedAt     string          `json:"created_at"`
	Response      string          `json:"response"`
	Done          bool            `json:"done"`
	Context       json.RawMessage `json:"context,omitempty"`
	TotalDuration int64           `json:"total_duration,omitempty"`
	Cached        bool            `json:"cached"`
}

func (h *generateHandler) generate(w http.ResponseWriter, r *http.Request) {
	var req relay.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		return
	}
	if req.Model == "" {
		req.Model = h.model
	}

	if req.Stream != nil && *req.Stream {
		h.generateStream(w, r, req)
		return
	}
	h.generateOnce(w, r, req)
}

// generateOnce handles the non-streaming path, consulting the response
// cache before augmentation so repeated questions skip the backend.
func (h *generateHandler) generateOnce(w http.ResponseWriter, r *http.Request, req relay.GenerateRequest) {
	question := req.Prompt

	if h.cache.Enabled() {
		if answer, ok := h.cache.Get(question); ok {
			h.logger.Debug("serving cached response", "model", req.Model)
			writeJSON(w, http.StatusOK, GenerateResponse{
				Model:     req.Model,
				CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
				Response:  answer,
				Done:      true,
				Cached:    true,
			})
			return
		}
	}

	req.Prompt = h.augmenter.Augment(r.Context(), augment.ModeGenerate, question)

	resp, err := h.backend.Generate(r.Context(), req)
	if err != nil {
		writeBackendError(w, h.logger, "generate", err)
		return
	}

	h.cache.Put(question, resp.Response)

	writeJSON(w, http.StatusOK, GenerateResponse{
		Model:         resp.Model,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339Nano),
		Response:      resp.Response,
		Done:          resp.Done,
		Context:       resp.Context,
		TotalDuration: resp.TotalDuration,
		Cached:        false,
	})
}

// generateStream relays the backend's NDJSON stream as Server-Sent
// Events. Each backend line becomes one data frame, byte for byte; the
// stream always ends with an explicit end event so clients can tell a
// completed stream from a dropped connection.
func (h *generateHandler) generateStream(w http.ResponseWriter, r *http.Request, req relay.GenerateRequest) {
	req.Prompt = h.augmenter.Augment(r.Context(), augment.ModeGenerate, req.Prompt)

	body, err := h.backend.GenerateStream(r.Context(), req)
	if err != nil {
		writeBackendError(w, h.logger, "generate stream", err)
		return
	}
	defer func() {
		if cerr := body.Close(); cerr != nil {
			h.logger.Debug("closing backend stream", "error", cerr)
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	responseChars := 0

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk struct {
			Response string `json:"response"`
			Done     bool   `json:"done"`
		}
		if err := json.Unmarshal(line, &chunk); err != nil {
			h.logger.Warn("invalid JSON line in backend stream", "error", err)
			if !h.writeFrame(w, rc, []byte(sseErrorFrame)) {
				return
			}
			continue
		}

		frame := make([]byte, 0, len(line)+8)
		frame = append(frame, "data: "...)
		frame = append(frame, line...)
		frame = append(frame, "\n\n"...)
		if !h.writeFrame(w, rc, frame) {
			return
		}

		responseChars += len(chunk.Response)
		if chunk.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		h.logger.Warn("backend stream interrupted", "error", err)
	}

	h.writeFrame(w, rc, []byte(sseEndFrame))
	h.logger.Debug("stream completed", "model", req.Model, "response_chars", responseChars)
}

// writeFrame writes and flushes a single SSE frame. A false return means
// the client is gone and relaying should stop.
func (h *generateHandler) writeFrame(w http.ResponseWriter, rc *http.ResponseController, frame []byte) bool {
	if _, err := w.Write(frame); err != nil {
		h.logger.Debug("client disconnected mid-stream", "error", err)
		return false
	}
	if err := rc.Flush(); err != nil {
		h.logger.Debug("flushing stream frame", "error", err)
	}
	return true
}
