// SPDX-License-Identifier: MIT

// Package daemon wires the bundle cache, updater, retry controller and
// extension modules into a running process and drives the lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/bundled/internal/api"
	"github.com/ManuGH/bundled/internal/cache"
	"github.com/ManuGH/bundled/internal/config"
	"github.com/ManuGH/bundled/internal/health"
	"github.com/ManuGH/bundled/internal/history"
	"github.com/ManuGH/bundled/internal/lifecycle"
	"github.com/ManuGH/bundled/internal/log"
	"github.com/ManuGH/bundled/internal/modules"
	xgnet "github.com/ManuGH/bundled/internal/platform/net"
	"github.com/ManuGH/bundled/internal/recovery"
	"github.com/ManuGH/bundled/internal/retry"
	"github.com/ManuGH/bundled/internal/updater"
	"github.com/rs/zerolog"
)

// PackageName identifies the daemon when it attaches to itself.
const PackageName = "bundled"

// Options override collaborators, mainly for tests.
type Options struct {
	Reloader   retry.Reloader
	Prompter   retry.Prompter
	HTTPClient *http.Client
	Server     *ServerConfig
}

// Runtime is the fully wired daemon.
type Runtime struct {
	Config    config.AppConfig
	Logger    zerolog.Logger
	Store     *cache.Store
	Loader    *config.LoaderHolder
	History   *history.Store
	State     *retry.State
	Updater   *updater.Updater
	Retry     *retry.Controller
	Host      *recovery.Host
	Lifecycle *lifecycle.Orchestrator
	Broadcast *lifecycle.Broadcast
	Health    *health.Manager
	API       *api.Server
	Manager   Manager
}

// Build constructs every component from cfg. Nothing is started.
func Build(cfg config.AppConfig, opts Options) (*Runtime, error) {
	logger := log.WithComponent("daemon")
	paths := cfg.Paths()

	rt := &Runtime{
		Config: cfg,
		Logger: logger,
		Store:  cache.New(paths.BundleFile, paths.ETagFile),
		Loader: config.NewLoaderHolder(paths.LoaderConfig),
		State:  retry.NewState(),
		Host:   recovery.NewHost(),
	}

	hist, err := history.Open(context.Background(), paths.HistoryDB, history.Options{})
	if err != nil {
		return nil, err
	}
	rt.History = hist

	rt.Updater = updater.New(rt.Store, rt.Loader, rt.State, updater.Options{
		DefaultURL:  cfg.BundleURL,
		UserAgent:   cfg.UserAgent,
		ColdTimeout: cfg.ColdTimeout,
		WarmTimeout: cfg.WarmTimeout,
		Client:      opts.HTTPClient,
		OnUpdated: func(ctx context.Context, o updater.Outcome) {
			logger := log.WithComponentFromContext(ctx, "daemon")
			logger.Info().
				Str(log.FieldEvent, "daemon.retry_succeeded").
				Int64(log.FieldBytes, o.Bytes).
				Msg("bundle updated after retry, reload to apply")
		},
		OnFinished: rt.recordRun,
	})

	reloader := opts.Reloader
	if reloader == nil {
		exec, err := recovery.NewExecReloader()
		if err != nil {
			_ = hist.Close()
			return nil, err
		}
		exec.Before = rt.prepareExec
		reloader = exec
	}
	prompter := opts.Prompter
	if prompter == nil {
		prompter = recovery.TerminalPrompter{}
	}
	rt.Retry = retry.NewController(rt.State, rt.Updater, rt.Store, reloader)

	base := []lifecycle.Module{
		modules.NewScriptLoader(rt.Store),
		modules.NewUpdater(rt.Updater, rt.Retry),
		modules.NewRecovery(rt.resolveDevSupport, rt.Retry, prompter),
	}
	mods, bc := lifecycle.WithBroadcast(base)
	rt.Broadcast = bc
	rt.Lifecycle = lifecycle.New(log.WithComponent("lifecycle"), mods...)

	rt.Health = health.NewManager(cfg.Version)
	rt.Health.RegisterChecker(health.NewBundleChecker(rt.Store.Info))
	rt.Health.RegisterChecker(health.NewRetryChecker(rt.State.Pending))
	rt.Health.RegisterChecker(health.NewLastRunChecker(func() (time.Time, string) {
		out, at := rt.Updater.Last()
		return at, out.Kind.String()
	}, 0))

	rt.API = api.New(api.Deps{
		Health:   rt.Health,
		Bundle:   rt,
		Activity: rt.ActivityReady,
		Recovery: rt.Retry,
		DevMenu:  rt.Host,
		History:  rt.History,
		Service:  "bundled",
	})

	serverCfg := DefaultServerConfig(cfg.ListenAddr)
	if opts.Server != nil {
		serverCfg = *opts.Server
	}
	mgr, err := NewManager(serverCfg, logger, rt.API.Handler())
	if err != nil {
		_ = hist.Close()
		return nil, err
	}
	mgr.RegisterShutdownHook("history", func(context.Context) error {
		return rt.History.Close()
	})
	mgr.RegisterShutdownHook("updater", func(context.Context) error {
		rt.Updater.Close()
		return nil
	})
	mgr.RegisterShutdownHook("loader-config-watcher", func(context.Context) error {
		rt.Loader.Stop()
		return nil
	})
	rt.Manager = mgr
	return rt, nil
}

// recordRun appends a finished update run to the history log.
func (rt *Runtime) recordRun(ctx context.Context, o updater.Outcome) {
	run := history.Run{
		JobID:      o.JobID,
		Trigger:    o.Trigger(),
		Outcome:    o.Kind.String(),
		URL:        xgnet.SanitizeURL(o.URL),
		Bytes:      o.Bytes,
		FinishedAt: time.Now(),
		Duration:   o.Duration,
	}
	if o.Err != nil {
		run.Error = o.Err.Error()
	}
	if err := rt.History.Record(ctx, run); err != nil {
		logger := log.WithComponentFromContext(ctx, "daemon")
		logger.Warn().
			Err(err).
			Str(log.FieldEvent, "history.record_failed").
			Msg("failed to record update run")
	}
}

// Info and Last let the API report bundle status from a single source.
func (rt *Runtime) Info() (cache.Info, error) { return rt.Store.Info() }

func (rt *Runtime) Last() (updater.Outcome, time.Time) { return rt.Updater.Last() }

func (rt *Runtime) resolveDevSupport(context.Context, lifecycle.PackageParams) (modules.DevSupport, error) {
	if !rt.Config.DevSupport {
		return nil, modules.ErrDevSupportDisabled
	}
	if rt.Host == nil {
		return nil, errors.New("host dev support unavailable")
	}
	return rt.Host, nil
}

// prepareExec releases the listen socket and stops background work so the
// re-executed process starts from a clean slate.
func (rt *Runtime) prepareExec(ctx context.Context) error {
	err := rt.Manager.Shutdown(ctx)
	if errors.Is(err, ErrManagerNotStarted) {
		rt.Updater.Close()
		return nil
	}
	return err
}

// Boot runs the startup sequence Init, attach (Load), ContextReady and the
// first ActivityReady. Module failures are logged by the orchestrator and do
// not abort the sequence.
func (rt *Runtime) Boot(ctx context.Context) error {
	paths := rt.Config.Paths()
	rt.Loader.Reload(ctx)

	var errs []error
	if err := rt.Lifecycle.Dispatch(ctx, lifecycle.InitEvent{Params: lifecycle.StartupParams{
		Version:   rt.Config.Version,
		DataDir:   rt.Config.DataDir,
		StartedAt: time.Now(),
	}}); err != nil {
		errs = append(errs, err)
	}

	proc := filepath.Base(os.Args[0])
	if _, err := rt.Lifecycle.AttachPackage(ctx, lifecycle.PackageParams{
		PackageName: PackageName,
		ProcessName: proc,
		DataDir:     rt.Config.DataDir,
	}); err != nil {
		errs = append(errs, err)
	}

	if err := rt.Lifecycle.Dispatch(ctx, lifecycle.ContextReadyEvent{Context: lifecycle.HostContext{
		FilesDir: paths.FilesDir,
		CacheDir: paths.CacheDir,
	}}); err != nil {
		errs = append(errs, err)
	}

	if err := rt.ActivityReady(ctx, lifecycle.Activity{ID: "main", Name: "main"}); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	return nil
}

// ActivityReady fires ActivityReady for a.
func (rt *Runtime) ActivityReady(ctx context.Context, a lifecycle.Activity) error {
	return rt.Lifecycle.Dispatch(ctx, lifecycle.ActivityReadyEvent{Activity: a})
}
