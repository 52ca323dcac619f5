package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"sbvc/internal/config"
	"sbvc/internal/history"
	"sbvc/internal/logging"
	"sbvc/internal/server"
	"sbvc/internal/store"
	"sbvc/internal/workspace"

	"go.uber.org/zap"
)

// Usage: sbvc-server [store]
// Without an argument the single store in the working directory is served.
// Settings come from sbvc.yaml when present.
func main() {
	// Load configuration
	cfg, err := config.Load("sbvc.yaml")
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	storePath := ""
	if len(os.Args) > 1 {
		storePath = os.Args[1]
	} else if storePath, err = workspace.FindStore("."); err != nil {
		logger.Fatal("failed to locate store", zap.Error(err))
	}

	engine, err := history.Open(storePath, history.Options{
		Store:        store.Options{Backend: cfg.Store.Backend},
		CacheSize:    cfg.Store.CacheSize,
		ContextLines: cfg.Store.ContextLines,
		Logger:       logger.Logger,
	})
	if err != nil {
		logger.Fatal("failed to open store", zap.String("path", storePath), zap.Error(err))
	}

	srv, err := server.New(cfg, engine, logger)
	if err != nil {
		engine.Close()
		logger.Fatal("failed to initialize server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
