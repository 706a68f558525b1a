package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragrelay/ragrelay/internal/log"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{BaseURL: srv.URL, Logger: log.NewNop()})
}

func TestGenerate(t *testing.T) {
	var gotReq GenerateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Write([]byte(`{"model":"llama3:13b","created_at":"2024-01-01T00:00:00Z","response":"hello","done":true,"context":[1,2],"total_duration":12345,"eval_count":42}`))
	})

	out, err := c.Generate(context.Background(), GenerateRequest{
		Model:  "llama3:13b",
		Prompt: "augmented prompt",
	})

	require.NoError(t, err)
	assert.Equal(t, "llama3:13b", out.Model)
	assert.Equal(t, "hello", out.Response)
	assert.True(t, out.Done)
	assert.JSONEq(t, "[1,2]", string(out.Context))
	assert.Equal(t, int64(12345), out.TotalDuration)

	assert.Equal(t, "augmented prompt", gotReq.Prompt)
	require.NotNil(t, gotReq.Stream)
	assert.False(t, *gotReq.Stream, "non-streaming call must force stream off")
}

func TestGenerateStream(t *testing.T) {
	lines := []string{
		`{"response":"package","done":false}`,
		`{"response":" main","done":false}`,
		`{"response":"","done":true}`,
	}

	var gotReq GenerateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			io.WriteString(w, line+"\n")
			flusher.Flush()
		}
	})

	body, err := c.GenerateStream(context.Background(), GenerateRequest{Prompt: "p"})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(lines, "\n")+"\n", string(data), "frames must arrive verbatim and in order")

	require.NotNil(t, gotReq.Stream)
	assert.True(t, *gotReq.Stream)
}

func TestChat(t *testing.T) {
	reply := `{"model":"llama3:13b","message":{"role":"assistant","content":"hi"},"done":true}`

	var gotReq ChatRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(reply))
	})

	out, err := c.Chat(context.Background(), ChatRequest{
		Model: "llama3:13b",
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "augmented question"},
		},
		Format:  json.RawMessage(`"json"`),
		Options: json.RawMessage(`{"temperature":0}`),
	})

	require.NoError(t, err)
	assert.Equal(t, reply, string(out), "non-streaming chat reply passes through verbatim")

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "augmented question", gotReq.Messages[1].Content)
	assert.JSONEq(t, `"json"`, string(gotReq.Format))
	assert.JSONEq(t, `{"temperature":0}`, string(gotReq.Options))
	require.NotNil(t, gotReq.Stream)
	assert.False(t, *gotReq.Stream)
}

func TestChatStream(t *testing.T) {
	lines := []string{
		`{"message":{"role":"assistant","content":"he"},"done":false}`,
		`{"message":{"role":"assistant","content":"llo"},"done":true}`,
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, line := range lines {
			io.WriteString(w, line+"\n")
			flusher.Flush()
		}
	})

	body, err := c.ChatStream(context.Background(), ChatRequest{})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(lines, "\n")+"\n", string(data))
}

func TestEmbeddings_PassThrough(t *testing.T) {
	in := []byte(`{"model":"nomic-embed-text","prompt":"some text"}`)
	reply := `{"embedding":[0.1,0.2]}`

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, string(in), string(body), "request body must pass through untouched")
		w.Write([]byte(reply))
	})

	out, err := c.Embeddings(context.Background(), in)

	require.NoError(t, err)
	assert.Equal(t, reply, string(out))
}

func TestTags_PassThrough(t *testing.T) {
	reply := `{"models":[{"name":"llama3:13b"}]}`

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(reply))
	})

	out, err := c.Tags(context.Background())

	require.NoError(t, err)
	assert.Equal(t, reply, string(out))
}

func TestUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	})

	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusInternalServerError, upstream.StatusCode)
	assert.Contains(t, string(upstream.Body), "model exploded")
}

func TestConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := New(Config{BaseURL: srv.URL, Logger: log.NewNop()})

	_, err := c.Tags(context.Background())

	var connect *ConnectError
	require.ErrorAs(t, err, &connect)
}

func TestGenerate_TimeoutIsConnectError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	c.timeout = 50 * time.Millisecond

	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "p"})

	var connect *ConnectError
	require.ErrorAs(t, err, &connect)
}

func TestProxy_PreservesStatusHeadersAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/blobs/sha256:abc", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("insecure"))
		assert.Equal(t, "yes", r.Header.Get("X-Custom"))
		assert.Empty(t, r.Header.Get("Proxy-Connection"), "hop-by-hop headers must be stripped")

		w.Header().Set("X-Backend", "ollama")
		w.WriteHeader(http.StatusTeapot)
		io.WriteString(w, "teapot")
	})

	header := http.Header{}
	header.Set("X-Custom", "yes")
	header.Set("Proxy-Connection", "keep-alive")

	resp, err := c.Proxy(context.Background(), http.MethodPut, "/api/blobs/sha256:abc?insecure=1",
		header, strings.NewReader("blob data"))

	require.NoError(t, err, "non-2xx statuses pass through the catch-all proxy")
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "ollama", resp.Header.Get("X-Backend"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "teapot", string(body))
}
