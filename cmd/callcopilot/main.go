// CallCopilot server — real-time contact-center copilot: ingests STT turns,
// runs the guidance and marketing agents per customer turn, streams results
// to operator monitors, and posts the end-of-call analysis downstream.
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
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/csnavigator/callcopilot/pkg/agent"
	"github.com/csnavigator/callcopilot/pkg/agent/guidance"
	"github.com/csnavigator/callcopilot/pkg/agent/marketing"
	"github.com/csnavigator/callcopilot/pkg/analysis"
	"github.com/csnavigator/callcopilot/pkg/api"
	"github.com/csnavigator/callcopilot/pkg/config"
	"github.com/csnavigator/callcopilot/pkg/directory"
	"github.com/csnavigator/callcopilot/pkg/events"
	"github.com/csnavigator/callcopilot/pkg/gatekeeper"
	"github.com/csnavigator/callcopilot/pkg/llm"
	"github.com/csnavigator/callcopilot/pkg/retrieval"
	"github.com/csnavigator/callcopilot/pkg/session"
	"github.com/csnavigator/callcopilot/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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
	slog.Info("Starting CallCopilot",
		"version", version.Full(), "http_port", httpPort, "config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Connect to the vector store
	pool, err := pgxpool.New(ctx, cfg.Retrieval.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to retrieval database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to retrieval database")

	// 3. LLM clients and retrieval store
	llmClient := llm.NewOpenAIClient(cfg.LLM)
	embedder := llm.NewOpenAIEmbedder(cfg.LLM, cfg.Embedding)
	retrievalStore := retrieval.NewStore(pool, embedder, cfg.Retrieval)

	// Category sampling is best-effort; an empty collection degrades staged
	// search to unfiltered search.
	if err := retrievalStore.SampleCategories(ctx); err != nil {
		slog.Warn("Category sampling failed, staged search will degrade", "error", err)
	}

	// 4. Session store, gatekeeper, and agent pipelines
	sessionStore := session.NewStore()
	router := gatekeeper.NewRouter(llmClient, cfg.LLM.FastModel, gatekeeper.NewCache(cfg.Gatekeeper.CacheSize))

	orchestrator := agent.NewOrchestrator(
		guidance.New(llmClient, cfg.LLM.FastModel, retrievalStore),
		marketing.New(llmClient, cfg.LLM.FastModel, retrievalStore, router),
	)
	slog.Info("Agent pipelines registered", "agents", []string{guidance.AgentType, marketing.AgentType})

	// 5. Directory client and end-of-call analyzer
	directoryClient := directory.NewClient(cfg.Directory)
	analyzer := analysis.New(llmClient, directoryClient, sessionStore)

	// 6. Fan-out surfaces
	rooms := events.NewRoomManager(cfg.Server.WSWriteTimeout)
	notifier := events.NewNotifier(cfg.Server.WSWriteTimeout)

	// 7. HTTP server
	server := api.NewServer(cfg.Server, sessionStore, orchestrator, rooms, notifier, directoryClient, analyzer)

	// 8. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("CallCopilot started successfully")

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 10. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
