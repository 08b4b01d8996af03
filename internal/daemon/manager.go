// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

// ServerConfig holds the control API server settings.
type ServerConfig struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns conservative timeouts for the local control API.
func DefaultServerConfig(addr string) ServerConfig {
	return ServerConfig{
		ListenAddr:      addr,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Manager runs the control API server and the shutdown hooks.
type Manager interface {
	// Start starts the server and blocks until ctx ends or the server fails.
	Start(ctx context.Context) error
	// Shutdown stops the server and runs hooks. Repeated calls are no-ops.
	Shutdown(ctx context.Context) error
	RegisterShutdownHook(name string, hook ShutdownHook)
	// Addr is the bound listen address once Start has bound it.
	Addr() string
}

type manager struct {
	serverCfg ServerConfig
	handler   http.Handler
	logger    zerolog.Logger

	server        *http.Server
	addr          string
	shutdownHooks []namedHook

	started  bool
	stopping bool
	mu       sync.Mutex
	bound    chan struct{}
}

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewManager creates a manager serving handler.
func NewManager(serverCfg ServerConfig, logger zerolog.Logger, handler http.Handler) (Manager, error) {
	if logger.GetLevel() == zerolog.Disabled {
		return nil, ErrMissingLogger
	}
	if handler == nil {
		return nil, ErrMissingAPIHandler
	}
	if serverCfg.ShutdownTimeout <= 0 {
		serverCfg.ShutdownTimeout = 10 * time.Second
	}
	return &manager{
		serverCfg: serverCfg,
		handler:   handler,
		logger:    logger.With().Str("component", "manager").Logger(),
		bound:     make(chan struct{}),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrManagerStarted
	}
	m.started = true
	m.mu.Unlock()

	ln, err := net.Listen("tcp", m.serverCfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.serverCfg.ListenAddr, err)
	}

	m.mu.Lock()
	m.addr = ln.Addr().String()
	m.server = &http.Server{
		Handler:           m.handler,
		ReadTimeout:       m.serverCfg.ReadTimeout,
		ReadHeaderTimeout: m.serverCfg.ReadTimeout / 2,
		WriteTimeout:      m.serverCfg.WriteTimeout,
		IdleTimeout:       m.serverCfg.IdleTimeout,
	}
	srv := m.server
	m.mu.Unlock()
	close(m.bound)

	errChan := make(chan error, 1)
	go func() {
		m.logger.Info().
			Str("event", "api.listening").
			Str("addr", ln.Addr().String()).
			Msg("control API listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Str("event", "api.server.failed").Msg("control API failed")
			errChan <- fmt.Errorf("API server: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := m.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("server error and shutdown failure: %w", errors.Join(err, shutdownErr))
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Str("event", "daemon.stopping").Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
		defer cancel()
		return m.Shutdown(shutdownCtx)
	}
}

// waitBound blocks until Start has bound its listener or ctx ends.
func (m *manager) waitBound(ctx context.Context) bool {
	select {
	case <-m.bound:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addr
}

func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	srv := m.server
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	m.mu.Unlock()

	m.logger.Info().Str("event", "daemon.shutdown").Msg("shutting down daemon manager")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.serverCfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("API server shutdown: %w", err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Str("event", "daemon.stopped").Msg("daemon manager stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function to be called during shutdown.
// Hooks are executed in reverse registration order (LIFO).
func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}
