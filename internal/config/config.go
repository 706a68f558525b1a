// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.ragrelay/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Backend: inference backend URL, model identifiers, request timeout
//   - Index: persist directory, source roots, source language, chunking
//   - Augmentation: retrieval breadth, web search, chat prompt bound
//   - Server: listen address, proxy trust, logging, tracing
//
// Error Handling:
//   - Sentinel errors for Go-idiomatic checking with errors.Is()
//   - Wrapped with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidBackendURL indicates the backend URL is missing or unparsable.
	ErrInvalidBackendURL = errors.New("invalid backend URL")

	// ErrInvalidModel indicates a model identifier is empty.
	ErrInvalidModel = errors.New("invalid model identifier")

	// ErrInvalidChunking indicates the chunk size/overlap pair is unusable.
	ErrInvalidChunking = errors.New("invalid chunk configuration")

	// ErrNoSourceRoots indicates no source roots were configured.
	ErrNoSourceRoots = errors.New("no source roots configured")

	// ErrInvalidTimeout indicates the request timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid request timeout")

	// ErrInvalidTopK indicates a retrieval breadth value is out of range.
	ErrInvalidTopK = errors.New("invalid top-k value")

	// ErrInvalidPromptBound indicates the chat prompt bound is out of range.
	ErrInvalidPromptBound = errors.New("invalid chat prompt bound")
)

// Collection names for the two index granularities.
const (
	CollectionChat     = "chat"
	CollectionGenerate = "generate"
)

// Config stores application configuration.
type Config struct {
	// Server
	Addr       string `mapstructure:"addr"`
	TrustProxy bool   `mapstructure:"trust_proxy"` // trust X-Real-IP/X-Forwarded-For (set true behind a reverse proxy)
	RateBurst  int    `mapstructure:"rate_burst"`  // per-IP rate limiter burst

	// Inference backend
	BackendURL     string `mapstructure:"backend_url"`
	GenerateModel  string `mapstructure:"generate_model"`
	ChatModel      string `mapstructure:"chat_model"` // empty = GenerateModel
	EmbedModel     string `mapstructure:"embed_model"`
	EmbedDims      int    `mapstructure:"embed_dimensions"`
	RequestTimeout int    `mapstructure:"request_timeout"` // seconds

	// Index
	PersistDir     string `mapstructure:"persist_dir"`
	CacheDir       string `mapstructure:"cache_dir"` // empty disables the response cache
	SourceRoots    string `mapstructure:"source_roots"`
	SourceLanguage string `mapstructure:"source_language"`
	ChunkSize      int    `mapstructure:"chunk_size"`
	ChunkOverlap   int    `mapstructure:"chunk_overlap"`

	// Augmentation
	ChatTopK           int  `mapstructure:"chat_top_k"`
	GenerateTopK       int  `mapstructure:"generate_top_k"`
	WebTopK            int  `mapstructure:"web_top_k"`
	WebSearchEnabled   bool `mapstructure:"web_search_enabled"`
	ChatPromptMaxChars int  `mapstructure:"chat_prompt_max_chars"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	// Tracing (disabled when endpoint is empty)
	TraceEndpoint    string `mapstructure:"trace_endpoint"`
	TraceEnvironment string `mapstructure:"trace_environment"`
	TraceService     string `mapstructure:"trace_service"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	v := viper.New()

	// Configuration directory: ~/.ragrelay/
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".ragrelay"))
	}
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults plus env carry the run.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8000")
	v.SetDefault("trust_proxy", false)
	v.SetDefault("rate_burst", 60)

	v.SetDefault("backend_url", "http://127.0.0.1:11434")
	v.SetDefault("generate_model", "llama3:13b")
	v.SetDefault("chat_model", "")
	v.SetDefault("embed_model", "nomic-embed-text")
	v.SetDefault("embed_dimensions", 768)
	v.SetDefault("request_timeout", 120)

	v.SetDefault("persist_dir", "./chroma_db")
	v.SetDefault("cache_dir", "./response_cache")
	v.SetDefault("source_roots", ".")
	v.SetDefault("source_language", "go")
	v.SetDefault("chunk_size", 800)
	v.SetDefault("chunk_overlap", 150)

	v.SetDefault("chat_top_k", 4)
	v.SetDefault("generate_top_k", 8)
	v.SetDefault("web_top_k", 2)
	v.SetDefault("web_search_enabled", true)
	v.SetDefault("chat_prompt_max_chars", 8000)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)

	v.SetDefault("trace_endpoint", "")
	v.SetDefault("trace_environment", "dev")
	v.SetDefault("trace_service", "ragrelay")
}

// bindEnvVariables binds recognized environment variables explicitly.
// The index/backend variables keep their historical unprefixed names so
// existing deployments keep working; server-level knobs use RAGRELAY_*.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a programming bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("addr", "RAGRELAY_ADDR")
	mustBind("trust_proxy", "RAGRELAY_TRUST_PROXY")
	mustBind("rate_burst", "RAGRELAY_RATE_BURST")

	mustBind("backend_url", "OLLAMA_BASE_URL")
	mustBind("generate_model", "OLLAMA_MODEL")
	mustBind("chat_model", "OLLAMA_CHAT_MODEL")
	mustBind("embed_model", "EMBED_MODEL")
	mustBind("embed_dimensions", "EMBED_DIMENSIONS")
	mustBind("request_timeout", "REQUEST_TIMEOUT")

	mustBind("persist_dir", "CHROMA_PERSIST_DIR")
	mustBind("cache_dir", "RESPONSE_CACHE_DIR")
	mustBind("source_roots", "SRC_PATH")
	mustBind("source_language", "SOURCE_LANG")
	mustBind("chunk_size", "CHUNK_SIZE")
	mustBind("chunk_overlap", "CHUNK_OVERLAP")

	mustBind("web_search_enabled", "WEB_SEARCH_ENABLED")
	mustBind("chat_prompt_max_chars", "CHAT_PROMPT_MAX_CHARS")

	mustBind("log_level", "RAGRELAY_LOG_LEVEL")
	mustBind("log_json", "RAGRELAY_LOG_JSON")

	mustBind("trace_endpoint", "OTLP_ENDPOINT")
	mustBind("trace_environment", "OTLP_ENVIRONMENT")
	mustBind("trace_service", "OTLP_SERVICE")
}

// Roots returns the configured source roots, splitting the colon-separated
// value and dropping empty segments. SRC_PATH="a:b" yields ["a", "b"].
func (c *Config) Roots() []string {
	parts := strings.Split(c.SourceRoots, ":")
	roots := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			roots = append(roots, p)
		}
	}
	return roots
}

// Timeout returns the backend request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// EffectiveChatModel returns the chat model, falling back to the generate
// model when no dedicated chat model is configured.
func (c *Config) EffectiveChatModel() string {
	if c.ChatModel != "" {
		return c.ChatModel
	}
	return c.GenerateModel
}

// Level parses the configured log level, defaulting to info on unknown input.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
