package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragrelay/ragrelay/internal/log"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<div class="results">
  <div class="result result--ad">
    <a class="result__a" href="https://ads.example.com">Sponsored thing</a>
    <a class="result__snippet">Buy now.</a>
  </div>
  <div class="result">
    <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fblog%2Fcontext&amp;rut=abc123">Go Concurrency Patterns: Context</a>
    <a class="result__snippet">The context package makes it easy to pass request-scoped values.</a>
  </div>
  <div class="result">
    <a class="result__a" href="https://pkg.go.dev/net/http">net/http documentation</a>
    <a class="result__snippet">Package http provides HTTP client and server implementations.</a>
  </div>
  <div class="result">
    <a class="result__a" href="https://example.com/third">Third result</a>
    <a class="result__snippet">More material.</a>
  </div>
</div>
</body></html>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL: srv.URL,
		Logger:  log.NewNop(),
	})
}

func TestSearch_ParsesResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/html/", r.URL.Path)
		assert.Equal(t, "go context cancellation", r.URL.Query().Get("q"))
		assert.NotContains(t, r.Header.Get("User-Agent"), "Go-http-client")
		w.Write([]byte(resultsPage))
	})

	results, err := c.Search(context.Background(), "go context cancellation", 2)

	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "Go Concurrency Patterns: Context", results[0].Title)
	assert.Equal(t, "https://go.dev/blog/context", results[0].URL, "redirect link must be unwrapped")
	assert.Equal(t, "The context package makes it easy to pass request-scoped values.", results[0].Snippet)

	assert.Equal(t, "net/http documentation", results[1].Title)
	assert.Equal(t, "https://pkg.go.dev/net/http", results[1].URL)
}

func TestSearch_SkipsAds(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(resultsPage))
	})

	results, err := c.Search(context.Background(), "anything", 10)

	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.NotContains(t, r.URL, "ads.example.com")
	}
}

func TestSearch_EmptyPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html><body>No results.</body></html>"))
	})

	results, err := c.Search(context.Background(), "gibberish", 2)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	})

	_, err := c.Search(context.Background(), "anything", 2)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestSearch_ZeroK(t *testing.T) {
	var called bool
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		called = true
	})

	results, err := c.Search(context.Background(), "anything", 0)

	require.NoError(t, err)
	assert.Nil(t, results)
	assert.False(t, called, "k=0 must not hit the network")
}

func TestSearch_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(resultsPage))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Search(ctx, "anything", 2)

	require.Error(t, err)
}

func TestToggle(t *testing.T) {
	c := NewClient(Config{Logger: log.NewNop(), Timeout: time.Second})

	assert.True(t, c.Enabled(), "searching starts enabled")

	c.SetEnabled(false)
	assert.False(t, c.Enabled())

	c.SetEnabled(true)
	assert.True(t, c.Enabled())
}
