// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ManuGH/bundled/internal/config"
	"github.com/rs/zerolog"
)

// TopicLoaderConfig is published on the broadcast bus when loader.json changes.
const TopicLoaderConfig = "loader-config"

// devMenuInterval bounds how often a signal may open the developer menu.
const devMenuInterval = 2 * time.Second

// App owns the long-lived runtime: config watching, signal handling, the
// lifecycle boot sequence and the control API server.
type App struct {
	rt           *Runtime
	logger       zerolog.Logger
	reloadSignal os.Signal
	menuSignal   os.Signal
	menuLimit    *rate.Limiter
}

// NewApp creates an App over a built Runtime.
func NewApp(rt *Runtime) *App {
	return &App{
		rt:           rt,
		logger:       rt.Logger,
		reloadSignal: syscall.SIGHUP,
		menuSignal:   syscall.SIGUSR1,
		menuLimit:    rate.NewLimiter(rate.Every(devMenuInterval), 1),
	}
}

// Run starts all owned background subsystems and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a.rt == nil || a.rt.Manager == nil {
		return ErrMissingManager
	}
	g, ctx := errgroup.WithContext(ctx)

	// The watcher is best-effort; the daemon still works with a static config.
	if err := a.rt.Loader.StartWatcher(ctx); err != nil {
		a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start loader config watcher")
	}

	changes := make(chan config.LoaderConfig, 1)
	a.rt.Loader.RegisterListener(changes)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg := <-changes:
				if err := a.rt.Broadcast.Publish(ctx, TopicLoaderConfig, cfg); err != nil {
					a.logger.Warn().Err(err).Str("event", "broadcast.failed").Msg("loader config broadcast failed")
				}
			}
		}
	})

	if a.reloadSignal != nil {
		g.Go(func() error {
			return a.onSignal(ctx, a.reloadSignal, func() {
				a.logger.Info().
					Str("event", "config.reload_signal").
					Str("signal", a.reloadSignal.String()).
					Msg("received reload signal, reloading loader config")
				a.rt.Loader.Reload(ctx)
			})
		})
	}

	if a.menuSignal != nil {
		g.Go(func() error {
			return a.onSignal(ctx, a.menuSignal, func() { a.showDevMenu(ctx) })
		})
	}

	mgr := a.rt.Manager
	g.Go(func() error {
		err := mgr.Start(ctx)
		if err != nil {
			_ = mgr.Shutdown(context.WithoutCancel(ctx))
		}
		return err
	})

	g.Go(func() error {
		if m, ok := mgr.(*manager); ok && !m.waitBound(ctx) {
			return nil
		}
		if err := a.rt.Boot(ctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "lifecycle.boot_degraded").Msg("lifecycle boot completed with module errors")
		} else {
			a.logger.Info().Str("event", "lifecycle.booted").Msg("lifecycle boot completed")
		}
		return nil
	})

	return g.Wait()
}

// showDevMenu opens the developer menu unless one was opened within
// devMenuInterval. It reports whether the menu was attempted.
func (a *App) showDevMenu(ctx context.Context) bool {
	if !a.menuLimit.Allow() {
		a.logger.Debug().Str("event", "devmenu.throttled").Msg("developer menu signal ignored")
		return false
	}
	if err := a.rt.Host.ShowDevMenu(ctx); err != nil {
		a.logger.Warn().Err(err).Str("event", "devmenu.failed").Msg("developer menu unavailable")
	}
	return true
}

func (a *App) onSignal(ctx context.Context, sig os.Signal, fn func()) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sig)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
			fn()
		}
	}
}
