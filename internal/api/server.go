package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ragrelay/ragrelay/internal/augment"
	"github.com/ragrelay/ragrelay/internal/cache"
	"github.com/ragrelay/ragrelay/internal/index"
	"github.com/ragrelay/ragrelay/internal/relay"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8000"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 60 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Streaming replies hold the response open for as long as the model
	// generates, so this must cover a full completion.
	WriteTimeout = 30 * time.Minute

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Augmenter enriches a question with retrieved context before it reaches
// the backend. Implemented by *augment.Augmenter.
type Augmenter interface {
	Augment(ctx context.Context, mode augment.Mode, question string) string
}

// Backend is the inference backend surface the handlers relay to.
// Implemented by *relay.Client.
type Backend interface {
	Generate(ctx context.Context, req relay.GenerateRequest) (*relay.GenerateResponse, error)
	GenerateStream(ctx context.Context, req relay.GenerateRequest) (io.ReadCloser, error)
	Chat(ctx context.Context, req relay.ChatRequest) ([]byte, error)
	ChatStream(ctx context.Context, req relay.ChatRequest) (io.ReadCloser, error)
	Embeddings(ctx context.Context, body []byte) ([]byte, error)
	Tags(ctx context.Context) ([]byte, error)
	Proxy(ctx context.Context, method, pathAndQuery string, header http.Header, body io.Reader) (*http.Response, error)
}

// WebToggle controls whether chat augmentation consults web search.
// Implemented by *websearch.Client.
type WebToggle interface {
	Enabled() bool
	SetEnabled(enabled bool)
}

// IndexStats reports the currently served index generation.
// Implemented by *index.Manager.
type IndexStats interface {
	Stats() (index.Stats, bool)
}

// Config contains configuration for creating the HTTP server.
type Config struct {
	Addr          string
	Logger        *slog.Logger
	Augmenter     Augmenter    // Required
	Backend       Backend      // Required
	Web           WebToggle    // Required
	Index         IndexStats   // Required
	Cache         *cache.Store // Optional: nil disables the response cache
	GenerateModel string       // Default model for /api/generate
	ChatModel     string       // Default model for /api/chat
	PersistDir    string       // Reported by /status
	CacheDir      string       // Reported by /status
	TrustProxy    bool         // Trust X-Real-IP/X-Forwarded-For headers (behind reverse proxy)
	RateBurst     int          // Rate limiter burst size per IP (0 = default 60)
}

// Server is the proxy HTTP server.
type Server struct {
	addr   string
	mux    *http.ServeMux
	logger *slog.Logger
}

// New creates a server with all routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.Augmenter == nil {
		return nil, errors.New("augmenter is required")
	}
	if cfg.Backend == nil {
		return nil, errors.New("backend client is required")
	}
	if cfg.Web == nil {
		return nil, errors.New("web search toggle is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("index manager is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gh := &generateHandler{
		logger:    logger,
		augmenter: cfg.Augmenter,
		backend:   cfg.Backend,
		cache:     cfg.Cache,
		model:     cfg.GenerateModel,
	}

	ch := &chatHandler{
		logger:    logger,
		augmenter: cfg.Augmenter,
		backend:   cfg.Backend,
		model:     cfg.ChatModel,
	}

	ph := &passthroughHandler{
		logger:  logger,
		backend: cfg.Backend,
	}

	wh := &controlHandler{
		logger: logger,
		web:    cfg.Web,
	}

	mux := http.NewServeMux()

	// Augmented inference
	mux.HandleFunc("POST /api/generate", gh.generate)
	mux.HandleFunc("POST /api/chat", ch.chat)

	// Pass-through
	mux.HandleFunc("POST /api/embeddings", ph.embeddings)
	mux.HandleFunc("GET /api/tags", ph.tags)

	// Control and debugging
	mux.HandleFunc("GET /control/enable_web_search", wh.enableWebSearch)
	mux.HandleFunc("POST /debug", wh.debugEcho)

	// Everything else goes to the backend untouched.
	mux.HandleFunc("/", ph.proxy)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	sh := &statusHandler{
		index:      cfg.Index,
		model:      cfg.GenerateModel,
		persistDir: cfg.PersistDir,
		cacheDir:   cfg.CacheDir,
	}

	// Use a top-level mux to separate probes from the middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /healthz", health)
	topMux.HandleFunc("GET /status", sh.status)
	topMux.Handle("/", handler)

	return &Server{addr: cfg.Addr, mux: topMux, logger: logger}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	addr := s.addr
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
