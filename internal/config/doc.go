// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for bundled.
//
// Two files are involved:
//   - the daemon config (YAML, strict) which decides where the data directory
//     lives, the default bundle source and the control API listen address;
//   - the loader config (loader.json) which can point the updater at a custom
//     bundle URL. It is owned by the user and must never abort startup.
package config
