package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/ems/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup writes a config file when none exists and prepares the session store it names.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
	}

	config, err := shared.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := shared.ApplyEnv(config); err != nil {
		return err
	}

	r.logger.Info("preparing session store", "driver", config.Session.Driver)
	_, closeStore, err := openStore(config)
	if err != nil {
		return err
	}
	if err := closeStore(); err != nil {
		r.logger.Warn("failed to close session store", "error", err)
	}

	switch config.Session.Driver {
	case "bolt":
		r.logger.Infof("setup complete for session store: %v", config.Session.BoltPath)
	default:
		r.logger.Infof("setup complete for database: %v", config.Database.Path)
	}
	return r.writePlain("Config written to %s\n", configPath)
}
