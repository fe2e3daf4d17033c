package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qrrelay/internal/app"
	"qrrelay/internal/config"
	"qrrelay/internal/logger"
)

func main() {
	cfg := config.Load()
	appLogger := logger.NewLogger(cfg.LogDirectory)
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application := app.NewApp(cfg, appLogger)
	if err := application.Run(ctx); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
