package main

import (
	"fmt"

	"github.com/newthinker/pricefeed/internal/config"
	"go.uber.org/zap"
)

// loadConfig reads --config when given, otherwise defaults plus environment.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}
	log.Warn("no config file specified, using defaults and environment")
	return cfg, nil
}
