package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/printhost/marlineeprom/internal/app"
	"github.com/printhost/marlineeprom/internal/config"
	"github.com/printhost/marlineeprom/internal/logging"
)

func main() {
	cfg := config.Load()

	application, err := app.New(cfg)
	if err != nil {
		logging.New(logging.LevelError).Error("Failed to initialize application", logging.WithField("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		application.Logger.Info("Shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			application.Logger.Error("Shutdown error", logging.WithField("error", err.Error()))
		}
		cancel()
	}()

	if err := application.Run(ctx); err != nil && err != http.ErrServerClosed {
		application.Logger.Error("HTTP server error", logging.WithField("error", err.Error()))
		os.Exit(1)
	}
}
