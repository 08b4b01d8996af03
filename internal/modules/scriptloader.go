// SPDX-License-Identifier: MIT

package modules

import (
	"context"
	"sync"

	"github.com/ManuGH/bundled/internal/cache"
	"github.com/ManuGH/bundled/internal/lifecycle"
	xglog "github.com/ManuGH/bundled/internal/log"
)

// BundleInfo reports what the cache currently holds.
type BundleInfo interface {
	Info() (cache.Info, error)
}

// ScriptLoader reports the cached bundle once the host context is ready and
// contributes its metadata to the startup payload.
type ScriptLoader struct {
	lifecycle.Base
	store BundleInfo

	mu   sync.Mutex
	seen cache.Info
}

func NewScriptLoader(store BundleInfo) *ScriptLoader {
	return &ScriptLoader{store: store}
}

func (*ScriptLoader) Name() string { return "scriptloader" }

func (s *ScriptLoader) OnContextReady(ctx context.Context, hc lifecycle.HostContext) error {
	logger := xglog.WithComponentFromContext(ctx, "scriptloader")
	info, err := s.store.Info()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.seen = info
	s.mu.Unlock()

	if !info.HasBundle {
		logger.Warn().
			Str(xglog.FieldEvent, "scriptloader.no_bundle").
			Str(xglog.FieldPath, hc.CacheDir).
			Msg("no cached bundle yet, waiting for the updater")
		return nil
	}
	logger.Info().
		Str(xglog.FieldEvent, "scriptloader.bundle_ready").
		Int64(xglog.FieldBytes, info.Size).
		Str(xglog.FieldETag, info.Token).
		Time("modified", info.ModTime).
		Msg("cached bundle available")
	return nil
}

// Contribute exposes the bundle metadata observed at context-ready time.
func (s *ScriptLoader) Contribute() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]any{
		"hasBundle": s.seen.HasBundle,
		"size":      s.seen.Size,
		"etag":      s.seen.Token,
	}
}
