// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ManuGH/bundled/internal/config"
	"github.com/ManuGH/bundled/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks prepares the data layout and validates the environment
// before the lifecycle starts.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Str("event", "startup.checks").Msg("running pre-flight startup checks")

	paths := cfg.Paths()
	for _, dir := range []string{cfg.DataDir, paths.CacheDir, paths.FilesDir} {
		if err := ensureWritableDir(logger, dir); err != nil {
			return fmt.Errorf("data directory check failed: %w", err)
		}
	}

	if cfg.ListenAddr != "" {
		_, port, err := net.SplitHostPort(cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("invalid listen address %q: %w", cfg.ListenAddr, err)
		}
		if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("invalid listen port %q in %q", port, cfg.ListenAddr)
		}
	}

	logger.Info().Str("event", "startup.checks_passed").Msg("all startup checks passed")
	return nil
}

func ensureWritableDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(probe)

	logger.Debug().Str("path", path).Msg("directory is writable")
	return nil
}
