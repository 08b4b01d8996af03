// SPDX-License-Identifier: MIT

package recovery

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrNilHandler         = errors.New("nil handler")
	ErrDevMenuUnavailable = errors.New("developer menu is not available")
	ErrNoReloadHandler    = errors.New("no reload handler installed")
)

// Host is the daemon's developer-support surface. The recovery module enables
// it and replaces its reload and dev-menu actions; SIGUSR1 and the control API
// invoke them.
type Host struct {
	mu         sync.RWMutex
	devEnabled bool
	reload     func(context.Context) error
	devMenu    func(context.Context) error
}

func NewHost() *Host { return &Host{} }

func (h *Host) EnableDeveloperSupport() error {
	h.mu.Lock()
	h.devEnabled = true
	h.mu.Unlock()
	return nil
}

func (h *Host) DeveloperSupport() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.devEnabled
}

// OnReload replaces the reload action.
func (h *Host) OnReload(fn func(context.Context) error) error {
	if fn == nil {
		return ErrNilHandler
	}
	h.mu.Lock()
	h.reload = fn
	h.mu.Unlock()
	return nil
}

// OnDevMenu replaces the developer menu.
func (h *Host) OnDevMenu(fn func(context.Context) error) error {
	if fn == nil {
		return ErrNilHandler
	}
	h.mu.Lock()
	h.devMenu = fn
	h.mu.Unlock()
	return nil
}

// ShowDevMenu opens the developer menu. It requires developer support to be
// enabled and a menu to be installed.
func (h *Host) ShowDevMenu(ctx context.Context) error {
	h.mu.RLock()
	enabled, fn := h.devEnabled, h.devMenu
	h.mu.RUnlock()
	if !enabled || fn == nil {
		return ErrDevMenuUnavailable
	}
	return fn(ctx)
}

// RequestReload runs the installed reload action.
func (h *Host) RequestReload(ctx context.Context) error {
	h.mu.RLock()
	fn := h.reload
	h.mu.RUnlock()
	if fn == nil {
		return ErrNoReloadHandler
	}
	return fn(ctx)
}
