package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/markdave123-py/Studyhall/internal/app"
	"github.com/markdave123-py/Studyhall/internal/config"
	"github.com/markdave123-py/Studyhall/internal/logger"
)

func main() {
	// Handle SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		logger.Fatalf("startup failed: %v", err)
	}
	defer application.Close()

	logger.Info("Studyhall is running; DB connected and bootstrapped.")
	if err := application.Run(ctx); err != nil {
		logger.Errorf("server stopped: %v", err)
	}
	logger.Info("shutting down...")
}
