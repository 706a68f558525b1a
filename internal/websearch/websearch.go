// Package websearch retrieves web results from the DuckDuckGo HTML
// endpoint for merging into chat prompts. The whole feature sits behind a
// process-wide toggle that the control API flips at runtime, and an
// outbound rate limit keeps the scraping polite.
package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	DefaultBaseURL = "https://html.duckduckgo.com"
	DefaultTimeout = 10 * time.Second
)

// userAgent identifies the client as a regular browser. The HTML endpoint
// rejects the default Go user agent.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0"

// Result is one web search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Config holds configuration for the web search client.
type Config struct {
	// BaseURL is the search endpoint base (default: DefaultBaseURL).
	BaseURL string

	// Timeout is the per-request timeout (default: 10s).
	Timeout time.Duration

	// Logger for debugging (nil = use default).
	Logger *slog.Logger
}

// Client queries the search endpoint. The enabled flag starts true and is
// safe to flip concurrently with searches.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
	enabled    atomic.Bool
}

// NewClient creates a web search client with searching enabled.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		limiter: rate.NewLimiter(rate.Limit(1), 3),
		logger:  cfg.Logger,
	}
	c.enabled.Store(true)
	return c
}

// Enabled reports whether web search is currently switched on.
func (c *Client) Enabled() bool {
	return c.enabled.Load()
}

// SetEnabled flips the toggle. The new value is visible to requests that
// start after the call returns.
func (c *Client) SetEnabled(enabled bool) {
	c.enabled.Store(enabled)
	c.logger.Info("web search toggled", "enabled", enabled)
}

// Search returns up to k results for the query. The toggle is the
// caller's concern; Search always performs the request.
func (c *Client) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + "/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := parseResults(doc, k)
	c.logger.Debug("web search completed", "query", query, "results", len(results))
	return results, nil
}

// parseResults extracts up to k organic results from the result page.
func parseResults(doc *goquery.Document, k int) []Result {
	var results []Result

	doc.Find("div.result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.HasClass("result--ad") {
			return true
		}

		link := s.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		snippet := strings.TrimSpace(s.Find(".result__snippet").First().Text())

		href = resolveRedirect(href)
		if title == "" || href == "" {
			return true
		}

		results = append(results, Result{
			Title:   title,
			URL:     href,
			Snippet: snippet,
		})
		return len(results) < k
	})

	return results
}

// resolveRedirect unwraps the endpoint's /l/?uddg= redirect links to the
// destination URL. Plain links pass through unchanged.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}

	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	// Redirect links appear both host-relative and protocol-relative.
	if u.Hostname() != "" && !strings.HasSuffix(u.Hostname(), "duckduckgo.com") {
		return href
	}
	if !strings.HasPrefix(u.Path, "/l/") {
		return href
	}

	target := u.Query().Get("uddg")
	if target == "" {
		return href
	}
	return target
}
