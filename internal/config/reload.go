// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	xglog "github.com/ManuGH/bundled/internal/log"
	xgnet "github.com/ManuGH/bundled/internal/platform/net"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// LoaderHolder holds the loader config with atomic reloading capability.
// Readers always see a complete LoaderConfig; a malformed file on disk swaps in defaults.
type LoaderHolder struct {
	mu      sync.RWMutex
	current LoaderConfig
	path    string
	watcher *fsnotify.Watcher
	logger  zerolog.Logger

	reloadMu        sync.RWMutex
	reloadListeners []chan<- LoaderConfig
}

// NewLoaderHolder loads the loader config at path and returns a holder for it.
func NewLoaderHolder(path string) *LoaderHolder {
	return &LoaderHolder{
		current: LoadLoaderConfig(path),
		path:    path,
		logger:  xglog.WithComponent("config"),
	}
}

// Get returns the current loader config (thread-safe read).
func (h *LoaderHolder) Get() LoaderConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Path returns the watched file path.
func (h *LoaderHolder) Path() string { return h.path }

// Reload re-reads the loader config from disk. It cannot fail; see LoadLoaderConfig.
func (h *LoaderHolder) Reload(_ context.Context) LoaderConfig {
	next := LoadLoaderConfig(h.path)

	h.mu.Lock()
	old := h.current
	h.current = next
	h.mu.Unlock()

	if old != next {
		h.logger.Info().
			Str(xglog.FieldEvent, "config.loader_reloaded").
			Bool("custom_enabled", next.CustomLoadURL.Enabled).
			Str(xglog.FieldURL, xgnet.SanitizeURL(next.CustomLoadURL.URL)).
			Msg("loader config changed")
		h.notifyListeners(next)
	}
	return next
}

// StartWatcher watches the directory holding the loader config so that files created
// after startup, or replaced by rename, are picked up as well.
func (h *LoaderHolder) StartWatcher(ctx context.Context) error {
	dir := filepath.Dir(h.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}
	h.watcher = watcher

	h.logger.Info().
		Str(xglog.FieldEvent, "config.watcher_started").
		Str(xglog.FieldPath, h.path).
		Msg("watching loader config for changes")

	go h.watchLoop(ctx, watcher)
	return nil
}

func (h *LoaderHolder) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()
	target := filepath.Clean(h.path)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(xglog.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			h.logger.Debug().
				Str(xglog.FieldEvent, "config.file_changed").
				Str("op", event.Op.String()).
				Msg("loader config changed on disk")

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(reloadDebounce, func() {
				h.Reload(ctx)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop stops the config watcher (if running).
func (h *LoaderHolder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel to receive loader config changes.
// Sends are non-blocking; the caller owns the channel.
func (h *LoaderHolder) RegisterListener(ch chan<- LoaderConfig) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

func (h *LoaderHolder) notifyListeners(cfg LoaderConfig) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().
				Str(xglog.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}
