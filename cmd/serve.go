package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragrelay/ragrelay/internal/api"
	"github.com/ragrelay/ragrelay/internal/augment"
	"github.com/ragrelay/ragrelay/internal/cache"
	"github.com/ragrelay/ragrelay/internal/chunk"
	"github.com/ragrelay/ragrelay/internal/config"
	"github.com/ragrelay/ragrelay/internal/embed"
	"github.com/ragrelay/ragrelay/internal/index"
	"github.com/ragrelay/ragrelay/internal/log"
	"github.com/ragrelay/ragrelay/internal/observability"
	"github.com/ragrelay/ragrelay/internal/relay"
	"github.com/ragrelay/ragrelay/internal/source"
	"github.com/ragrelay/ragrelay/internal/websearch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (host:port), overrides config")
	rootCmd.AddCommand(serveCmd)
}

// traceFlushTimeout bounds the post-shutdown trace flush.
const traceFlushTimeout = 5 * time.Second

// runServe wires the pipeline together and runs the HTTP server until a
// termination signal arrives.
func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
		cfg.Addr = flagAddr
	}
	if err := validateAddr(cfg.Addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", cfg.Addr, err)
	}

	logger := log.New(log.Config{Level: cfg.Level(), JSON: cfg.LogJSON})
	slog.SetDefault(logger)
	logger.Info("starting ragrelay", "version", AppVersion)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.TraceEndpoint,
		Environment: cfg.TraceEnvironment,
		ServiceName: cfg.TraceService,
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), traceFlushTimeout)
		defer flushCancel()
		if flushErr := shutdownTracing(flushCtx); flushErr != nil {
			logger.Warn("trace shutdown error", "error", flushErr)
		}
	}()

	loader := source.NewLoader(cfg.Roots(), cfg.SourceLanguage, logger)
	splitter := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap, cfg.SourceLanguage)
	provider := embed.NewRolePrefix(embed.NewClient(embed.Config{
		BaseURL:    cfg.BackendURL,
		Model:      cfg.EmbedModel,
		Dimensions: cfg.EmbedDims,
	}))

	manager, err := index.NewManager(cfg.PersistDir, loader, splitter, provider, logger)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer func() {
		if closeErr := manager.Close(); closeErr != nil {
			logger.Warn("index shutdown error", "error", closeErr)
		}
	}()

	web := websearch.NewClient(websearch.Config{Logger: logger})
	web.SetEnabled(cfg.WebSearchEnabled)

	augmenter := augment.New(manager, web, augment.Config{
		Language:     cfg.SourceLanguage,
		ChatTopK:     cfg.ChatTopK,
		GenerateTopK: cfg.GenerateTopK,
		WebTopK:      cfg.WebTopK,
		ChatMaxChars: cfg.ChatPromptMaxChars,
		Logger:       logger,
	})

	backend := relay.New(relay.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.Timeout(),
		Logger:  logger,
	})

	var store *cache.Store
	if cfg.CacheDir != "" {
		store = cache.New(cfg.CacheDir, logger)
	}

	srv, err := api.New(api.Config{
		Addr:          cfg.Addr,
		Logger:        logger,
		Augmenter:     augmenter,
		Backend:       backend,
		Web:           web,
		Index:         manager,
		Cache:         store,
		GenerateModel: cfg.GenerateModel,
		ChatModel:     cfg.EffectiveChatModel(),
		PersistDir:    cfg.PersistDir,
		CacheDir:      cfg.CacheDir,
		TrustProxy:    cfg.TrustProxy,
		RateBurst:     cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Warm the index in the background so the first request doesn't pay
	// for a full build. Requests arriving before it finishes run with
	// whatever generation is already on disk, or unaugmented.
	go func() {
		if _, warmErr := manager.EnsureFresh(ctx); warmErr != nil {
			logger.Warn("index warm-up failed", "error", warmErr)
		}
	}()

	logger.Info("proxy ready",
		"addr", cfg.Addr,
		"backend", cfg.BackendURL,
		"model", cfg.GenerateModel,
	)

	return srv.Run(ctx)
}
