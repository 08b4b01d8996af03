// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/bundled/internal/config"
	"github.com/ManuGH/bundled/internal/daemon"
	"github.com/ManuGH/bundled/internal/health"
	xglog "github.com/ManuGH/bundled/internal/log"
	xgnet "github.com/ManuGH/bundled/internal/platform/net"
	"github.com/ManuGH/bundled/internal/telemetry"
	"github.com/ManuGH/bundled/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		case "status":
			os.Exit(runStatusCLI(os.Args[2:]))
		case "recover":
			os.Exit(runRecoverCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "bundled",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	effectiveConfigPath := resolveConfigPath(*configPath)
	cfg, err := config.NewLoader(effectiveConfigPath, version.Version).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")
	logger.Info().
		Str("event", "config.loaded").
		Str("path", effectiveConfigPath).
		Str("data_dir", cfg.DataDir).
		Str("bundle_url", xgnet.SanitizeURL(cfg.BundleURL)).
		Str("listen", cfg.ListenAddr).
		Bool("tracing", cfg.Tracing.Enabled).
		Msg("configuration loaded")

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Str("event", "startup.checks_failed").Msg("startup checks failed")
	}

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "telemetry.init_failed").Msg("failed to initialise tracing")
	}

	rt, err := daemon.Build(cfg, daemon.Options{})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.build_failed").Msg("failed to wire daemon")
	}
	rt.Manager.RegisterShutdownHook("tracing", tracing.Shutdown)

	logger.Info().
		Str("event", "daemon.start").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Msg("starting bundled")

	if err := daemon.NewApp(rt).Run(ctx); err != nil {
		logger.Error().Err(err).Str("event", "daemon.exit").Msg("daemon exited with error")
		os.Exit(1)
	}
	logger.Info().Str("event", "daemon.exit").Msg("daemon stopped")
}

// resolveConfigPath prefers --config and falls back to ${BUNDLED_DATA}/config.yaml when present.
func resolveConfigPath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	dataDir := strings.TrimSpace(config.ParseString("BUNDLED_DATA", config.DefaultDataDir))
	if dataDir == "" {
		return ""
	}
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}
