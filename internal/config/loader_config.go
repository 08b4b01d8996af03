// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/bundled/internal/log"
	"github.com/ManuGH/bundled/internal/metrics"
)

// LoaderConfigFile is the file name of the user-owned loader config inside the files directory.
const LoaderConfigFile = "loader.json"

// CustomLoadURL points the updater at a bundle source other than the default one.
type CustomLoadURL struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// LoaderConfig is the decoded form of loader.json.
type LoaderConfig struct {
	CustomLoadURL CustomLoadURL `json:"customLoadUrl"`
}

// SourceURL resolves the bundle source: the custom URL when enabled, else fallback.
func (c LoaderConfig) SourceURL(fallback string) string {
	if c.CustomLoadURL.Enabled {
		return c.CustomLoadURL.URL
	}
	return fallback
}

// ParseLoaderConfig decodes loader.json content. Missing keys keep their zero values.
func ParseLoaderConfig(data []byte) (LoaderConfig, error) {
	var cfg LoaderConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return LoaderConfig{}, fmt.Errorf("parse loader config: %w", err)
	}
	return cfg, nil
}

// LoadLoaderConfig reads the loader config at path. It never fails: a missing,
// unreadable or malformed file yields the zero LoaderConfig.
func LoadLoaderConfig(path string) LoaderConfig {
	logger := log.WithComponent("config")

	// #nosec G304 -- path is derived from the daemon data directory
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			metrics.IncConfigFallback()
			logger.Warn().
				Err(err).
				Str(log.FieldEvent, "config.loader_read_failed").
				Str(log.FieldPath, path).
				Msg("cannot read loader config, using defaults")
		}
		return LoaderConfig{}
	}

	cfg, err := ParseLoaderConfig(data)
	if err != nil {
		metrics.IncConfigFallback()
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "config.loader_parse_failed").
			Str(log.FieldPath, path).
			Msg("malformed loader config, using defaults")
		return LoaderConfig{}
	}
	return cfg
}
