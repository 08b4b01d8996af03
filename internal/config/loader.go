// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	xgnet "github.com/ManuGH/bundled/internal/platform/net"
	"gopkg.in/yaml.v3"
)

// Loader handles daemon configuration loading with precedence ENV > File > Defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load builds the effective AppConfig and validates it.
func (l *Loader) Load() (AppConfig, error) {
	cfg := defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFile(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func defaults() AppConfig {
	return AppConfig{
		DataDir:     DefaultDataDir,
		BundleURL:   DefaultBundleURL,
		UserAgent:   DefaultUserAgent,
		LogLevel:    "info",
		LogService:  "bundled",
		ListenAddr:  DefaultListen,
		ColdTimeout: DefaultColdTimeout,
		WarmTimeout: DefaultWarmTimeout,
		DevSupport:  true,
		Tracing: TracingConfig{
			Exporter:     "http",
			Endpoint:     "localhost:4318",
			SamplingRate: 1.0,
		},
	}
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields cause an error to prevent silent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFile(dst *AppConfig, src *FileConfig) error {
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.Bundle != nil {
		if src.Bundle.URL != "" {
			dst.BundleURL = src.Bundle.URL
		}
		if src.Bundle.UserAgent != "" {
			dst.UserAgent = src.Bundle.UserAgent
		}
	}
	if src.Log != nil {
		if src.Log.Level != "" {
			dst.LogLevel = src.Log.Level
		}
		if src.Log.Service != "" {
			dst.LogService = src.Log.Service
		}
	}
	if t := src.Tracing; t != nil {
		if t.Enabled != nil {
			dst.Tracing.Enabled = *t.Enabled
		}
		if t.Exporter != "" {
			dst.Tracing.Exporter = t.Exporter
		}
		if t.Endpoint != "" {
			dst.Tracing.Endpoint = t.Endpoint
		}
		if t.SamplingRate != nil {
			dst.Tracing.SamplingRate = *t.SamplingRate
		}
	}
	if src.Recovery != nil && src.Recovery.DevSupport != nil {
		dst.DevSupport = *src.Recovery.DevSupport
	}
	if src.API != nil && src.API.ListenAddr != "" {
		dst.ListenAddr = src.API.ListenAddr
	}
	if src.Timeouts != nil {
		if src.Timeouts.Cold != "" {
			d, err := time.ParseDuration(src.Timeouts.Cold)
			if err != nil {
				return fmt.Errorf("timeouts.cold: %w", err)
			}
			dst.ColdTimeout = d
		}
		if src.Timeouts.Warm != "" {
			d, err := time.ParseDuration(src.Timeouts.Warm)
			if err != nil {
				return fmt.Errorf("timeouts.warm: %w", err)
			}
			dst.WarmTimeout = d
		}
	}
	return nil
}

func mergeEnv(cfg *AppConfig) {
	cfg.DataDir = ParseString("BUNDLED_DATA", cfg.DataDir)
	cfg.BundleURL = ParseString("BUNDLED_BUNDLE_URL", cfg.BundleURL)
	cfg.UserAgent = ParseString("BUNDLED_USER_AGENT", cfg.UserAgent)
	cfg.LogLevel = ParseString("BUNDLED_LOG_LEVEL", cfg.LogLevel)
	cfg.ListenAddr = ParseString("BUNDLED_LISTEN", cfg.ListenAddr)
	cfg.ColdTimeout = ParseDuration("BUNDLED_COLD_TIMEOUT", cfg.ColdTimeout)
	cfg.WarmTimeout = ParseDuration("BUNDLED_WARM_TIMEOUT", cfg.WarmTimeout)
	cfg.DevSupport = ParseBool("BUNDLED_DEV_SUPPORT", cfg.DevSupport)
	cfg.Tracing.Enabled = ParseBool("BUNDLED_TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = ParseString("BUNDLED_TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = ParseString("BUNDLED_TRACING_ENDPOINT", cfg.Tracing.Endpoint)
}

// Validate checks the effective configuration.
func Validate(cfg AppConfig) error {
	var errs []error
	if strings.TrimSpace(cfg.DataDir) == "" {
		errs = append(errs, errors.New("dataDir must not be empty"))
	}
	if _, ok := xgnet.ParseDirectHTTPURL(cfg.BundleURL); !ok {
		errs = append(errs, fmt.Errorf("bundle.url %q must be an absolute http(s) URL without credentials", cfg.BundleURL))
	}
	if cfg.ColdTimeout <= 0 || cfg.WarmTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Exporter {
		case "grpc", "http":
		default:
			errs = append(errs, fmt.Errorf("tracing.exporter %q must be grpc or http", cfg.Tracing.Exporter))
		}
		if cfg.Tracing.SamplingRate < 0 || cfg.Tracing.SamplingRate > 1 {
			errs = append(errs, fmt.Errorf("tracing.samplingRate %v must be within [0,1]", cfg.Tracing.SamplingRate))
		}
	}
	if cfg.WarmTimeout > cfg.ColdTimeout {
		errs = append(errs, fmt.Errorf("timeouts.warm (%s) must not exceed timeouts.cold (%s)", cfg.WarmTimeout, cfg.ColdTimeout))
	}
	return errors.Join(errs...)
}
