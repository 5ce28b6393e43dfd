package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/ems/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	configPath := "config.toml"
	if p := os.Getenv("EMS_CONFIG"); p != "" {
		configPath = p
	}

	config, err := shared.Resolve(configPath)
	if err != nil {
		logger.Warn("failed to load config, using defaults", "error", err)
		config = shared.DefaultConfig()
	}
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Log.Level))

	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
	})
	defer runner.Close()

	app := &cli.Command{
		Name:     "ems",
		Usage:    "Sign in to the event management system and follow your notifications",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotAuthenticated):
			logger.Error(err.Error())
			runner.Close()
			os.Exit(2)
		default:
			runner.Close()
			logger.Fatalf("application error: %v", err)
		}
	}
}
