// GLADyS cognitive runtime: event orchestrator, salience gateway, memory
// store, and decision layer in one process, served over HTTP/WebSocket.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gladys-ai/gladys/pkg/api"
	"github.com/gladys-ai/gladys/pkg/cleanup"
	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/database"
	"github.com/gladys-ai/gladys/pkg/decision"
	"github.com/gladys-ai/gladys/pkg/embedding"
	"github.com/gladys-ai/gladys/pkg/events"
	"github.com/gladys-ai/gladys/pkg/llm"
	"github.com/gladys-ai/gladys/pkg/memory"
	"github.com/gladys-ai/gladys/pkg/orchestrator"
	"github.com/gladys-ai/gladys/pkg/salience"
	"github.com/gladys-ai/gladys/pkg/version"
)

// traceSweepInterval is how often expired reasoning traces are swept out of
// the decision layer.
const traceSweepInterval = time.Minute

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	slog.Info("Starting GLADyS",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Database (runs migrations on connect)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	// 3. Memory store + embedding provider
	embedder, err := embedding.NewFromConfig(cfg.Memory)
	if err != nil {
		slog.Error("Failed to initialize embedding provider", "error", err)
		os.Exit(1)
	}

	store := memory.NewStore(dbClient.Pool(), embedder, cfg.Memory)
	publisher := events.NewPublisher(dbClient.Pool())

	// 4. Salience gateway, with change notifications fanned out to both
	// the local cache and every other process via pg_notify.
	gateway := salience.NewGateway(cfg.Salience, embedder, store)
	store.SetNotifier(memory.CombineNotifiers(gateway, publisher))

	warmup, err := store.ListHeuristics(ctx, memory.HeuristicFilter{
		MinConfidence: cfg.Salience.MinConfidence,
		Limit:         cfg.Salience.CacheSize,
	})
	if err != nil {
		slog.Warn("Cache warmup query failed, starting cold", "error", err)
	} else {
		gateway.WarmCache(warmup)
		slog.Info("Heuristic cache warmed", "heuristics", len(warmup))
	}

	// 5. Decision layer. An unreachable LLM is not fatal: the heuristic
	// fast path and storage-only fallback keep the system responsive.
	llmClient, err := llm.NewFromConfig(cfg.Decision)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	probeCtx, probeCancel := context.WithTimeout(ctx, 3*time.Second)
	if !llmClient.Available(probeCtx) {
		slog.Warn("LLM backend unavailable at startup, slow path degraded",
			"provider", cfg.Decision.Provider, "base_url", cfg.Decision.BaseURL)
	}
	probeCancel()

	executive := decision.NewExecutive(cfg.Decision, llmClient, store)

	// 6. Streaming infrastructure: LISTEN connection, WebSocket fan-out,
	// and the heuristics-channel sink that keeps remote caches coherent.
	connManager := events.NewConnectionManager(events.NewCatchupStore(dbClient.Pool()), 10*time.Second)
	notifyListener := events.NewNotifyListener(dbClient.DSN(), connManager)
	if err := notifyListener.Start(ctx); err != nil {
		slog.Error("Failed to start NotifyListener", "error", err)
		os.Exit(1)
	}
	defer notifyListener.Stop(ctx)
	connManager.SetListener(notifyListener)

	connManager.RegisterSink(events.HeuristicsChannel, events.NewInvalidationSink(gateway))
	if err := notifyListener.Subscribe(ctx, events.HeuristicsChannel); err != nil {
		slog.Error("Failed to subscribe to heuristic changes", "error", err)
		os.Exit(1)
	}
	slog.Info("Streaming infrastructure initialized")

	// 7. Orchestrator (routing workers, registry scans, learning loops)
	orch := orchestrator.NewOrchestrator(cfg.Orchestrator, gateway, executive, store, publisher)
	if err := orch.Start(ctx); err != nil {
		slog.Error("Failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	// 8. Retention sweeper and the decision layer's trace sweep
	retention := cleanup.NewService(cfg.Retention, store, publisher)
	retention.Start(ctx)

	sweepStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(traceSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := executive.SweepTraces(); n > 0 {
					slog.Debug("Expired reasoning traces swept", "count", n)
				}
			case <-sweepStop:
				return
			}
		}
	}()

	// 9. HTTP/WebSocket server (non-blocking)
	httpServer := api.NewServer(cfg, orch, gateway, store, executive, dbClient.Pool(), connManager)

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("GLADyS started successfully",
		"port", cfg.Server.Port,
		"workers", cfg.Orchestrator.WorkerCount)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown: drain the queue first, then close the HTTP
	// surface, then the streaming/database defers unwind.
	close(sweepStop)
	retention.Stop()
	orch.Stop()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
