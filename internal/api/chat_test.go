package api

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragrelay/ragrelay/internal/augment"
	"github.com/ragrelay/ragrelay/internal/relay"
)

func TestChat_AugmentsLastUserMessage(t *testing.T) {
	f := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)

		var req relay.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		require.Len(t, req.Messages, 4)
		assert.Equal(t, relay.Message{Role: "system", Content: "be brief"}, req.Messages[0])
		assert.Equal(t, relay.Message{Role: "user", Content: "first question"}, req.Messages[1])
		assert.Equal(t, relay.Message{Role: "assistant", Content: "first answer"}, req.Messages[2])
		assert.Equal(t, "user", req.Messages[3].Role)
		assert.Equal(t, augmented(augment.ModeChat, "second question"), req.Messages[3].Content)

		_, _ = w.Write([]byte(`{"model":"m1","message":{"role":"assistant","content":"hi"},"done":true}`))
	}))

	body := `{
		"model": "m1",
		"messages": [
			{"role": "system", "content": "be brief"},
			{"role": "user", "content": "first question"},
			{"role": "assistant", "content": "first answer"},
			{"role": "user", "content": "second question"}
		]
	}`

	w := postJSON(f, "/api/chat", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(1), f.augmenter.calls.Load(), "only the last user turn is augmented")
	assert.Equal(t, int64(augment.ModeChat), f.augmenter.mode.Load())

	// Non-streaming chat replies pass through verbatim.
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, `{"model":"m1","message":{"role":"assistant","content":"hi"},"done":true}`, w.Body.String())
}

func TestChat_LastMessageNotUser(t *testing.T) {
	f := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req relay.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "tool output", req.Messages[len(req.Messages)-1].Content)
		_, _ = w.Write([]byte(`{"done":true}`))
	}))

	body := `{
		"model": "m1",
		"messages": [
			{"role": "user", "content": "run it"},
			{"role": "tool", "content": "tool output"}
		]
	}`

	w := postJSON(f, "/api/chat", body)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), f.augmenter.calls.Load(), "non-user tail must pass through untouched")
}

func TestChat_ForwardsBackendFields(t *testing.T) {
	f := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))

		assert.JSONEq(t, `"json"`, string(raw["format"]))
		assert.JSONEq(t, `{"temperature":0.3}`, string(raw["options"]))
		assert.JSONEq(t, `"5m"`, string(raw["keep_alive"]))
		_, _ = w.Write([]byte(`{"done":true}`))
	}))

	body := `{
		"model": "m1",
		"messages": [{"role": "user", "content": "q"}],
		"format": "json",
		"options": {"temperature": 0.3},
		"keep_alive": "5m"
	}`

	w := postJSON(f, "/api/chat", body)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestChat_InvalidRequest(t *testing.T) {
	var backendCalls atomic.Int64

	f := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		backendCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name string
		body string
	}{
		{"malformed JSON", `{"model": "m1", "messages"`},
		{"missing messages", `{"model":"m1"}`},
		{"empty messages", `{"model":"m1","messages":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(f, "/api/chat", tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_request", decodeErrorBody(t, w).Error)
		})
	}

	assert.Equal(t, int64(0), backendCalls.Load())
}

func TestChat_DefaultModel(t *testing.T) {
	f := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req relay.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3:13b", req.Model)
		_, _ = w.Write([]byte(`{"done":true}`))
	}))

	w := postJSON(f, "/api/chat", `{"messages":[{"role":"user","content":"q"}]}`)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestChat_Streaming(t *testing.T) {
	ndjson := `{"message":{"role":"assistant","content":"He"},"done":false}
{"message":{"role":"assistant","content":"llo"},"done":false}
{"done":true,"total_duration":9}
`

	f := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req relay.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.Stream)
		assert.True(t, *req.Stream)

		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(ndjson))
	}))

	body := `{"model":"m1","messages":[{"role":"user","content":"say hello"}],"stream":true}`
	w := postJSON(f, "/api/chat", body)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.Equal(t, ndjson, w.Body.String(), "chat stream must pass through byte for byte")
}

func TestChat_BackendDown(t *testing.T) {
	f := newTestServer(t, http.NotFoundHandler())
	f.backend.Close()

	for _, body := range []string{
		`{"messages":[{"role":"user","content":"q"}]}`,
		`{"messages":[{"role":"user","content":"q"}],"stream":true}`,
	} {
		w := postJSON(f, "/api/chat", body)

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "backend_unavailable", decodeErrorBody(t, w).Error)
	}
}

func TestChat_UpstreamError(t *testing.T) {
	f := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))

	w := postJSON(f, "/api/chat", `{"messages":[{"role":"user","content":"q"}]}`)

	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeErrorBody(t, w)
	assert.Equal(t, "upstream_error", body.Error)
	assert.Contains(t, body.Message, "503")
}
