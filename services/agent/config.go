// Copyright (C) 2026 Prforge Authors (dev@prforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	Server struct {
		// Addr is the HTTP listen address.
		Addr string `yaml:"addr" validate:"required"`
	} `yaml:"server"`

	Log struct {
		// Level is one of debug, info, warn, error.
		Level string `yaml:"level" validate:"oneof=debug info warn error"`

		// Dir is the log file directory. Empty disables file logging.
		Dir string `yaml:"dir"`
	} `yaml:"log"`

	Model struct {
		// Primary is the model tried first.
		Primary string `yaml:"primary" validate:"required"`

		// Fallback is the smaller model tried when the primary fails.
		Fallback string `yaml:"fallback"`

		// MaxTokens caps response length.
		MaxTokens int `yaml:"max_tokens" validate:"gt=0"`

		// Temperature controls sampling randomness.
		Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	} `yaml:"model"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8090"
	cfg.Log.Level = "info"
	cfg.Model.Primary = "gpt-4o"
	cfg.Model.Fallback = "gpt-4o-mini"
	cfg.Model.MaxTokens = 8192
	cfg.Model.Temperature = 0.2
	return cfg
}

// LoadConfig builds the configuration from defaults, an optional YAML
// file, and environment overrides, in that precedence order.
//
// Inputs:
//
//	path - YAML config file path. Empty skips file loading.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Non-nil on unreadable file, bad YAML, or failed
//	validation.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %q: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides lets the environment win over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PRFORGE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PRFORGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PRFORGE_LOG_DIR"); v != "" {
		cfg.Log.Dir = v
	}
	if v := os.Getenv("PRFORGE_MODEL"); v != "" {
		cfg.Model.Primary = v
	}
	if v := os.Getenv("PRFORGE_FALLBACK_MODEL"); v != "" {
		cfg.Model.Fallback = v
	}
}
