// Package relay is the typed client for the inference backend. It carries
// augmented prompts to the Ollama API, distinguishes backend-down from
// backend-rejected through its error types, and hands streaming bodies back
// untouched so the HTTP layer can forward frames exactly as they arrive.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Default configuration values.
const (
	DefaultBaseURL = "http://127.0.0.1:11434"
	DefaultTimeout = 120 * time.Second
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest is the /api/generate payload. Raw fields pass through to
// the backend without interpretation.
type GenerateRequest struct {
	Model     string          `json:"model"`
	Prompt    string          `json:"prompt"`
	Stream    *bool           `json:"stream,omitempty"`
	Format    json.RawMessage `json:"format,omitempty"`
	Options   json.RawMessage `json:"options,omitempty"`
	KeepAlive json.RawMessage `json:"keep_alive,omitempty"`
}

// ChatRequest is the /api/chat payload.
type ChatRequest struct {
	Model     string          `json:"model"`
	Messages  []Message       `json:"messages"`
	Stream    *bool           `json:"stream,omitempty"`
	Format    json.RawMessage `json:"format,omitempty"`
	Options   json.RawMessage `json:"options,omitempty"`
	KeepAlive json.RawMessage `json:"keep_alive,omitempty"`
}

// GenerateResponse is the stable subset of a non-streaming completion
// reply. Extra backend fields are dropped on decode.
type GenerateResponse struct {
	Model         string          `json:"model"`
	Response      string          `json:"response"`
	Done          bool            `json:"done"`
	Context       json.RawMessage `json:"context,omitempty"`
	TotalDuration int64           `json:"total_duration,omitempty"`
}

// Config holds configuration for the relay client.
type Config struct {
	// BaseURL is the backend base URL (default: http://127.0.0.1:11434).
	BaseURL string

	// Timeout bounds non-streaming calls. Streaming calls are bounded by
	// their request context instead (default: 120s).
	Timeout time.Duration

	// Logger for debugging (nil = use default).
	Logger *slog.Logger
}

// Client talks to the inference backend. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	logger     *slog.Logger
}

// New creates a relay client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		// No client-level timeout: it would cut long-lived streaming
		// bodies. Non-streaming methods bound themselves via context.
		httpClient: &http.Client{},
		baseURL:    cfg.BaseURL,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger,
	}
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Generate runs a non-streaming completion.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream := false
	req.Stream = &stream

	resp, err := c.postJSON(ctx, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}
	return &out, nil
}

// GenerateStream runs a streaming completion. The returned body carries the
// backend's NDJSON frames; the caller must close it.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) (io.ReadCloser, error) {
	stream := true
	req.Stream = &stream

	resp, err := c.postJSON(ctx, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Chat runs a non-streaming chat completion and returns the backend reply
// verbatim.
func (c *Client) Chat(ctx context.Context, req ChatRequest) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	stream := false
	req.Stream = &stream

	resp, err := c.postJSON(ctx, "/api/chat", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}
	return body, nil
}

// ChatStream runs a streaming chat completion. The caller must close the
// returned body.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	stream := true
	req.Stream = &stream

	resp, err := c.postJSON(ctx, "/api/chat", req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Embeddings forwards an embeddings request body verbatim and returns the
// backend reply verbatim.
func (c *Client) Embeddings(ctx context.Context, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodPost, "/api/embeddings", bytes.NewReader(body), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embeddings response: %w", err)
	}
	return reply, nil
}

// Tags lists the backend's models, verbatim.
func (c *Client) Tags(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/tags", http.NoBody, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tags response: %w", err)
	}
	return reply, nil
}

// Proxy forwards an arbitrary request to the backend, preserving method,
// path, query, headers, and body. Unlike the typed methods it never turns a
// non-2xx reply into an error: status and body pass through so the caller
// can relay them as-is. The caller must close the response body.
func (c *Client) Proxy(ctx context.Context, method, pathAndQuery string, header http.Header, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+pathAndQuery, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	copyProxyHeader(req.Header, header)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectError{Err: err}
	}
	return resp, nil
}

// postJSON marshals the payload and POSTs it, returning an open response on
// any 2xx status.
func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(jsonBody), "application/json")
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		reply, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: reply}
	}
	return resp, nil
}

// hopByHopHeaders never cross a proxy boundary.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func copyProxyHeader(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	for _, k := range hopByHopHeaders {
		dst.Del(k)
	}
	dst.Del("Host")
}
