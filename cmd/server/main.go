package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/config"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/logging"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/server"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/version"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.LoadServer()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Init(logging.ParseLevel(cfg.LogLevel, slog.LevelInfo))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("tasting server", "version", version.Version)
	if err := server.New(cfg, logger).ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
