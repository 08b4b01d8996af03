// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("BUNDLED_DATA", "")
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultBundleURL, cfg.BundleURL)
	assert.Equal(t, DefaultColdTimeout, cfg.ColdTimeout)
	assert.Equal(t, DefaultWarmTimeout, cfg.WarmTimeout)
	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.True(t, cfg.DevSupport)
	assert.True(t, filepath.IsAbs(cfg.DataDir))
}

func TestLoader_FileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bundled.yaml", `
dataDir: `+dir+`
bundle:
  url: https://example.com/file.js
  userAgent: from-file
timeouts:
  cold: 30s
  warm: 2s
`)
	t.Setenv("BUNDLED_USER_AGENT", "from-env")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "https://example.com/file.js", cfg.BundleURL)
	assert.Equal(t, "from-env", cfg.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.ColdTimeout)
	assert.Equal(t, 2*time.Second, cfg.WarmTimeout)
}

func TestLoader_UnknownFieldRejected(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bundled.yaml", "bundel:\n  url: https://x\n")
	_, err := NewLoader(path, "").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoader_RejectsNonYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bundled.json", "{}")
	_, err := NewLoader(path, "").Load()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoader_DevSupport(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bundled.yaml", "dataDir: "+dir+"\nrecovery:\n  devSupport: false\n")

	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.False(t, cfg.DevSupport)

	t.Setenv("BUNDLED_DEV_SUPPORT", "yes")
	cfg, err = NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.True(t, cfg.DevSupport)
}

func TestLoader_Tracing(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bundled.yaml", `
dataDir: `+dir+`
tracing:
  enabled: true
  exporter: grpc
  endpoint: collector:4317
  samplingRate: 0.25
`)
	cfg, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, TracingConfig{Enabled: true, Exporter: "grpc", Endpoint: "collector:4317", SamplingRate: 0.25}, cfg.Tracing)

	t.Setenv("BUNDLED_TRACING_EXPORTER", "zipkin")
	_, err = NewLoader(path, "").Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	good := defaults()
	require.NoError(t, Validate(good))

	bad := good
	bad.BundleURL = "ftp://example.com/x.js"
	assert.Error(t, Validate(bad))

	bad = good
	bad.BundleURL = "https://user:pw@example.com/x.js"
	assert.Error(t, Validate(bad))

	bad = good
	bad.WarmTimeout = time.Minute
	assert.Error(t, Validate(bad))
}

func TestAppConfig_Paths(t *testing.T) {
	cfg := AppConfig{DataDir: "/data"}
	p := cfg.Paths()
	assert.Equal(t, filepath.Join("/data", "cache", "bundle.js"), p.BundleFile)
	assert.Equal(t, filepath.Join("/data", "cache", "etag.txt"), p.ETagFile)
	assert.Equal(t, filepath.Join("/data", "files", "loader.json"), p.LoaderConfig)
	assert.Equal(t, filepath.Join("/data", "history.db"), p.HistoryDB)
}
