package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"classroom/internal/app"
	"classroom/internal/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("classroom server failed")
	}
}

// run loads configuration, builds the application and serves until
// SIGINT or SIGTERM.
func run() error {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := app.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return application.Run(ctx)
}
