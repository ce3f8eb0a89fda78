// Blacksmith is a daemon that regenerates SDK source code in multiple target
// languages from an English specification.
//
// It holds one git-backed workspace per target language plus one for the
// specification. A regeneration run is triggered over HTTP, progresses
// asynchronously, and leaves each target's generated diff staged for
// per-language approve/reject review.
//
// Usage:
//
//	# Start the daemon with defaults
//	blacksmith
//
//	# Use a config file
//	blacksmith -config /etc/blacksmith/config.yaml
//
//	# Configure via environment
//	BLACKSMITH_SERVER_PORT=9000 BLACKSMITH_GENERATOR_MODEL=gpt-4o blacksmith
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/stack-auth/blacksmith/internal/config"
	"github.com/stack-auth/blacksmith/internal/generator"
	"github.com/stack-auth/blacksmith/internal/httpapi"
	"github.com/stack-auth/blacksmith/internal/logging"
	"github.com/stack-auth/blacksmith/internal/review"
	"github.com/stack-auth/blacksmith/internal/update"
	"github.com/stack-auth/blacksmith/internal/watcher"
	"github.com/stack-auth/blacksmith/internal/workspace"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  blacksmith           Start the blacksmith daemon\n")
			fmt.Fprintf(os.Stderr, "  blacksmith version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("blacksmith\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the blacksmith daemon and blocks until context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Build the logger
//  3. Open the workspace store (creating workspaces and histories as needed)
//  4. Build the generation capability
//  5. Wire the orchestrator and review service
//  6. Start the specification watcher (if enabled) and the HTTP server
//  7. Perform graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting blacksmith",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("workspaces_root", cfg.Workspaces.Root),
		zap.Strings("targets", cfg.Workspaces.Targets))

	store, err := workspace.NewStore(cfg.Workspaces.Root, cfg.Workspaces.Targets, logger)
	if err != nil {
		return fmt.Errorf("opening workspace store: %w", err)
	}

	gen, err := generator.NewLLMGenerator(cfg.Generator, logger)
	if err != nil {
		return fmt.Errorf("initializing generator: %w", err)
	}

	orch, err := update.NewOrchestrator(store, gen, logger)
	if err != nil {
		return fmt.Errorf("initializing orchestrator: %w", err)
	}

	reviewer, err := review.NewService(store, logger)
	if err != nil {
		return fmt.Errorf("initializing review service: %w", err)
	}

	if cfg.Watcher.Enabled {
		specWatcher, err := watcher.New(store.English(), cfg.Watcher.Debounce, logger)
		if err != nil {
			return fmt.Errorf("initializing spec watcher: %w", err)
		}
		if err := specWatcher.Start(ctx); err != nil {
			return fmt.Errorf("starting spec watcher: %w", err)
		}
		defer specWatcher.Stop()
		logger.Info("specification watcher started",
			zap.Duration("debounce", cfg.Watcher.Debounce))
	}

	srv, err := httpapi.NewServer(orch, reviewer, logger, &httpapi.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
