// SPDX-License-Identifier: MIT

// Package modules holds the extension modules the daemon registers with the
// lifecycle orchestrator.
package modules
