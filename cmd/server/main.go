package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/searchandising/internal/app"
	"github.com/utafrali/searchandising/internal/config"
	handler "github.com/utafrali/searchandising/internal/handler/http"
	"github.com/utafrali/searchandising/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(handler.ServiceName, cfg.LogLevel)
	log.Info("starting searchandising service",
		slog.String("environment", cfg.Environment),
		slog.String("version", cfg.Version),
		slog.Int("http_port", cfg.HTTPPort),
	)

	// Cancelled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("searchandising service stopped")
}
