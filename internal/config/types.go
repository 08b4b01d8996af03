// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"time"
)

const (
	// DefaultBundleURL is the release asset the updater fetches when no custom source is enabled.
	DefaultBundleURL = "https://github.com/kmmiio99o/ShiggyCord/releases/latest/download/shiggycord.js"

	DefaultUserAgent = "bundled"
	DefaultDataDir   = "/var/lib/bundled"
	DefaultListen    = "127.0.0.1:8787"

	// Timeout tiers for a conditional fetch.
	DefaultColdTimeout = 50 * time.Second
	DefaultWarmTimeout = 5 * time.Second

	CacheDirName   = "cache"
	FilesDirName   = "files"
	BundleFileName = "bundle.js"
	ETagFileName   = "etag.txt"

	HistoryFileName = "history.db"
)

// AppConfig is the effective daemon configuration after defaults, file and ENV merging.
type AppConfig struct {
	DataDir     string
	BundleURL   string
	UserAgent   string
	LogLevel    string
	LogService  string
	ListenAddr  string
	ColdTimeout time.Duration
	WarmTimeout time.Duration
	DevSupport  bool
	Tracing     TracingConfig
	// Version is set from the binary, never from file or ENV.
	Version string
}

// FileConfig mirrors the YAML daemon config. Pointers distinguish "unset" from zero values.
type FileConfig struct {
	DataDir  string        `yaml:"dataDir,omitempty"`
	Bundle   *BundleFile   `yaml:"bundle,omitempty"`
	Log      *LogFile      `yaml:"log,omitempty"`
	API      *APIFile      `yaml:"api,omitempty"`
	Timeouts *TimeoutsFile `yaml:"timeouts,omitempty"`
	Recovery *RecoveryFile `yaml:"recovery,omitempty"`
	Tracing  *TracingFile  `yaml:"tracing,omitempty"`
}

// TracingConfig selects the OTLP trace exporter. Tracing is off unless Enabled.
type TracingConfig struct {
	Enabled      bool
	Exporter     string // "grpc" or "http"
	Endpoint     string
	SamplingRate float64
}

type BundleFile struct {
	URL       string `yaml:"url,omitempty"`
	UserAgent string `yaml:"userAgent,omitempty"`
}

type LogFile struct {
	Level   string `yaml:"level,omitempty"`
	Service string `yaml:"service,omitempty"`
}

type APIFile struct {
	ListenAddr string `yaml:"listenAddr,omitempty"`
}

type TracingFile struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}

type RecoveryFile struct {
	DevSupport *bool `yaml:"devSupport,omitempty"`
}

type TimeoutsFile struct {
	Cold string `yaml:"cold,omitempty"`
	Warm string `yaml:"warm,omitempty"`
}

// Paths is the persisted layout below the data directory.
type Paths struct {
	CacheDir     string
	FilesDir     string
	BundleFile   string
	ETagFile     string
	LoaderConfig string
	HistoryDB    string
}

// Paths derives the on-disk layout from DataDir.
func (c AppConfig) Paths() Paths {
	cacheDir := filepath.Join(c.DataDir, CacheDirName)
	filesDir := filepath.Join(c.DataDir, FilesDirName)
	return Paths{
		CacheDir:     cacheDir,
		FilesDir:     filesDir,
		BundleFile:   filepath.Join(cacheDir, BundleFileName),
		ETagFile:     filepath.Join(cacheDir, ETagFileName),
		LoaderConfig: filepath.Join(filesDir, LoaderConfigFile),
		HistoryDB:    filepath.Join(c.DataDir, HistoryFileName),
	}
}
