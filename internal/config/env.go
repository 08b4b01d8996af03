// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strings"
	"time"

	"github.com/ManuGH/bundled/internal/log"
)

// lookupEnv returns the value of key and whether it is set to something non-empty.
// An empty variable counts as unset.
func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// ParseString returns the environment value of key, or def when unset.
func ParseString(key, def string) string {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	logger := log.WithComponent("config")
	logger.Debug().
		Str("key", key).
		Str("source", "environment").
		Msg("using environment variable")
	return v
}

// ParseDuration reads a Go duration (e.g. "5s"). Unparsable values fall back to def.
func ParseDuration(key string, def time.Duration) time.Duration {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", def).
			Msg("invalid duration in environment variable, using default")
		return def
	}
	return d
}

// ParseBool accepts true/false, 1/0 and yes/no in any case. Other values fall back to def.
func ParseBool(key string, def bool) bool {
	v, ok := lookupEnv(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	logger := log.WithComponent("config")
	logger.Warn().
		Str("key", key).
		Str("value", v).
		Bool("default", def).
		Msg("invalid boolean in environment variable, using default")
	return def
}
