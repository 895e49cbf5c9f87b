package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/visionrelay/visionrelay/internal/app"
	"github.com/visionrelay/visionrelay/internal/config"
	"github.com/visionrelay/visionrelay/internal/logging"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logging.New(logging.LevelError).Error("Failed to initialize", logging.WithField("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		a.Logger.Info("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		a.Shutdown(shutdownCtx)
	}()

	if err := a.Run(ctx); err != nil && err != http.ErrServerClosed {
		a.Logger.Error("HTTP server error", logging.WithField("error", err.Error()))
		os.Exit(1)
	}
}
