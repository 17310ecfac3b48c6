package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mailsync_server/config"
	"mailsync_server/internal/bootstrap"
	"mailsync_server/pkg/logger"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout = 30 * time.Second // Maximum time to wait for graceful shutdown
)

func main() {
	// Load .env file if exists (for local development)
	envErr := godotenv.Load()

	mode := flag.String("mode", "all", "Run mode: api, worker, all")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if cfg.LogLevel == "" && cfg.IsDevelopment() {
		level = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   level,
		Service: cfg.ProjectName,
		Pretty:  cfg.IsDevelopment(),
	})
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, cleanup, err := bootstrap.NewDependencies(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies: %v", err)
	}
	defer cleanup()

	switch *mode {
	case "api":
		runAPI(ctx, cfg, deps)
	case "worker":
		runWorker(ctx, cfg, deps)
	case "all":
		w := bootstrap.NewWorker(cfg, deps)
		w.Start(ctx)
		runAPI(ctx, cfg, deps)
		w.Stop()
	default:
		logger.Error("Unknown mode: %s", *mode)
		cleanup()
		os.Exit(2)
	}

	logger.Info("Shutdown complete")
}

func runAPI(ctx context.Context, cfg *config.Config, deps *bootstrap.Dependencies) {
	app := bootstrap.NewAPI(cfg, deps)

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down API server (timeout: %v)...", shutdownTimeout)
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("API shutdown error: %v", err)
		}
	}()

	logger.Info("Starting API server on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Error("API server stopped: %v", err)
	}
}

func runWorker(ctx context.Context, cfg *config.Config, deps *bootstrap.Dependencies) {
	w := bootstrap.NewWorker(cfg, deps)
	w.Start(ctx)
	logger.Info("Worker started (interval: %v)", cfg.SyncInterval)

	<-ctx.Done()
	logger.Info("Shutting down worker...")
	w.Stop()
}
