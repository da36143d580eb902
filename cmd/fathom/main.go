// Fathom retrieval server — classifies queries, fans out across retrieval
// lanes under deadline budgets, fuses and cites results, and streams the
// answer over SSE.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/fathomsearch/fathom/pkg/api"
	"github.com/fathomsearch/fathom/pkg/audit"
	"github.com/fathomsearch/fathom/pkg/backend"
	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/embed"
	"github.com/fathomsearch/fathom/pkg/lane"
	"github.com/fathomsearch/fathom/pkg/llm"
	"github.com/fathomsearch/fathom/pkg/metrics"
	"github.com/fathomsearch/fathom/pkg/orchestrator"
	"github.com/fathomsearch/fathom/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// provider builds an HTTP search provider from <PREFIX>_URL and
// <PREFIX>_API_KEY. Nil when the URL is unset, which disables the lane.
func provider(prefix string) *backend.HTTPProvider {
	url := os.Getenv(prefix + "_URL")
	if url == "" {
		return nil
	}
	return backend.NewHTTPProvider(url, os.Getenv(prefix+"_API_KEY"))
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting fathom",
		"version", version.Full(),
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize the audit sink
	var sink audit.Sink
	switch store := getEnv("AUDIT_STORE", "memory"); store {
	case "postgres":
		dbCfg, err := audit.LoadPostgresConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		sink, err = audit.NewPostgresSink(ctx, dbCfg)
		if err != nil {
			slog.Error("Failed to connect to audit database", "error", err)
			os.Exit(1)
		}
		slog.Info("Connected to PostgreSQL audit store")
	case "memory":
		sink = audit.NewMemorySink()
		slog.Warn("Using in-memory audit store, records are lost on restart")
	default:
		slog.Error("Unknown AUDIT_STORE value", "value", store)
		os.Exit(1)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("Error closing audit sink", "error", err)
		}
	}()

	// 3. Build backends from the environment. Unset URLs leave the
	// interface fields nil, which disables the corresponding lanes.
	providers := map[string]*backend.HTTPProvider{
		"web":     provider("WEB_SEARCH"),
		"news":    provider("NEWS_SEARCH"),
		"markets": provider("MARKETS_SEARCH"),
		"keyword": provider("KEYWORD_INDEX"),
	}
	var backends lane.Backends
	if p := providers["web"]; p != nil {
		backends.Web = p
	}
	if p := providers["news"]; p != nil {
		backends.News = p
	}
	if p := providers["markets"]; p != nil {
		backends.Markets = p
	}
	if p := providers["keyword"]; p != nil {
		backends.Keyword = p
	}

	var embedder backend.Embedder
	if url := os.Getenv("EMBEDDINGS_URL"); url != "" {
		embedder = backend.NewOpenAIEmbedder(url,
			os.Getenv("EMBEDDINGS_API_KEY"),
			getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"))
	}

	// 3a. Optional Redis embedding cache. The cached embedder degrades to
	// direct embedding when Redis is unreachable.
	if addr := os.Getenv("REDIS_ADDR"); addr != "" && embedder != nil {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		defer rdb.Close()
		embedder = embed.NewCachedEmbedder(embedder, rdb, embed.DefaultTTL)
		slog.Info("Embedding cache enabled", "addr", addr)
	}
	backends.Embedder = embedder

	// 4. Build the lane registry
	registry, err := lane.NewRegistry(cfg, backends, lane.NewLimiter())
	if err != nil {
		slog.Error("Failed to build lane registry", "error", err)
		os.Exit(1)
	}
	if len(registry.Lanes()) == 0 {
		slog.Error("No retrieval lanes configured, set at least one backend URL")
		os.Exit(1)
	}
	slog.Info("Lane registry built", "lanes", registry.Lanes())

	// 5. Synthesizer: OpenAI-compatible endpoint when configured, the
	// extractive fallback otherwise.
	var synth llm.Synthesizer
	if url := os.Getenv("LLM_BASE_URL"); url != "" {
		synth = llm.NewOpenAIClient(url, os.Getenv("LLM_API_KEY"), getEnv("LLM_MODEL", "gpt-4o-mini"))
		slog.Info("LLM synthesis enabled", "base_url", url)
	} else {
		slog.Warn("No LLM endpoint configured, answers will be extractive")
	}

	// 6. Orchestrator and metrics
	m := metrics.New(prometheus.DefaultRegisterer)
	orch := orchestrator.New(cfg, orchestrator.Options{
		Registry: registry,
		Refiner:  lane.NewHeuristicRefiner(),
		Synth:    synth,
		Sink:     sink,
		Metrics:  m,
	})

	// 7. Retention sweeper
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := audit.NewSweeper(sink, cfg.Audit)
	go sweeper.Run(sweepCtx)
	slog.Info("Audit retention sweeper started", "retention_days", cfg.Audit.RetentionDays)

	// 8. HTTP server
	server := api.NewServer(cfg, orch, sink, prometheus.DefaultGatherer)
	for name, p := range providers {
		if p != nil {
			server.SetHealthCheck(name, p)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("Fathom started successfully")

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown: stop the listener first so no new queries are
	// admitted, then let in-flight streams drain under the timeout budget.
	stopSweeper()
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
