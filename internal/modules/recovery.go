// SPDX-License-Identifier: MIT

package modules

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/bundled/internal/lifecycle"
	xglog "github.com/ManuGH/bundled/internal/log"
	"github.com/ManuGH/bundled/internal/retry"
)

// DevSupport is the host's developer-support surface. recovery.Host implements it.
type DevSupport interface {
	EnableDeveloperSupport() error
	OnReload(fn func(context.Context) error) error
	OnDevMenu(fn func(context.Context) error) error
}

// DevSupportResolver locates the host's DevSupport for the attached package.
type DevSupportResolver func(ctx context.Context, p lifecycle.PackageParams) (DevSupport, error)

// RecoveryActions is the subset of retry.Controller the recovery hooks use.
type RecoveryActions interface {
	Reload(ctx context.Context) error
	Present(ctx context.Context, p retry.Prompter) error
}

// Recovery replaces the host's dev menu with the two-option recovery prompt
// and routes host reloads to a full restart.
type Recovery struct {
	lifecycle.Base
	resolve  DevSupportResolver
	actions  RecoveryActions
	prompter retry.Prompter
}

// ErrDevSupportDisabled is returned by a resolver when the host has developer
// support turned off. The module then stays inactive without failing.
var ErrDevSupportDisabled = errors.New("developer support disabled")

func NewRecovery(resolve DevSupportResolver, actions RecoveryActions, prompter retry.Prompter) *Recovery {
	return &Recovery{resolve: resolve, actions: actions, prompter: prompter}
}

func (*Recovery) Name() string { return "recovery" }

// OnLoad installs the hooks. On failure the recovery choices are presented
// once and the install error is returned; the orchestrator keeps delivering to
// later modules.
func (r *Recovery) OnLoad(ctx context.Context, p lifecycle.PackageParams) error {
	logger := xglog.WithComponentFromContext(ctx, "recovery")
	err := r.install(ctx, p)
	if errors.Is(err, ErrDevSupportDisabled) {
		logger.Info().
			Str(xglog.FieldEvent, "recovery.disabled").
			Str("package", p.PackageName).
			Msg("developer support disabled, recovery hooks not installed")
		return nil
	}
	if err != nil {
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "recovery.install_failed").
			Str("package", p.PackageName).
			Msg("failed to install recovery hooks")
		if perr := r.actions.Present(ctx, r.prompter); perr != nil {
			logger.Warn().Err(perr).
				Str(xglog.FieldEvent, "recovery.menu_failed").
				Msg("failed to show recovery options after install failure")
		}
		return err
	}
	logger.Info().
		Str(xglog.FieldEvent, "recovery.installed").
		Str("package", p.PackageName).
		Msg("recovery hooks installed")
	return nil
}

func (r *Recovery) install(ctx context.Context, p lifecycle.PackageParams) error {
	if r.resolve == nil {
		return errors.New("no dev-support resolver")
	}
	ds, err := r.resolve(ctx, p)
	if err != nil {
		return fmt.Errorf("resolve dev support: %w", err)
	}
	if err := ds.EnableDeveloperSupport(); err != nil {
		return fmt.Errorf("enable developer support: %w", err)
	}
	if err := ds.OnReload(r.actions.Reload); err != nil {
		return fmt.Errorf("hook reload: %w", err)
	}
	if err := ds.OnDevMenu(r.showMenu); err != nil {
		return fmt.Errorf("hook dev menu: %w", err)
	}
	return nil
}

func (r *Recovery) showMenu(ctx context.Context) error {
	err := r.actions.Present(ctx, r.prompter)
	if err != nil {
		logger := xglog.WithComponentFromContext(ctx, "recovery")
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "recovery.menu_failed").
			Msg("failed to show recovery options")
	}
	return err
}
