// SPDX-License-Identifier: MIT

package modules

import (
	"context"

	"github.com/ManuGH/bundled/internal/lifecycle"
)

// BackgroundRunner starts an update run without blocking.
type BackgroundRunner interface {
	Trigger(ctx context.Context, userRetry bool)
}

// ActivityRetrier turns a pending failure into one retry.
type ActivityRetrier interface {
	OnActivityReady(ctx context.Context) bool
}

// Updater starts the bundle update on Load and retries a failed update when a
// new activity appears.
type Updater struct {
	lifecycle.Base
	runner BackgroundRunner
	retry  ActivityRetrier
}

func NewUpdater(runner BackgroundRunner, retry ActivityRetrier) *Updater {
	return &Updater{runner: runner, retry: retry}
}

func (*Updater) Name() string { return "updater" }

func (u *Updater) OnLoad(ctx context.Context, _ lifecycle.PackageParams) error {
	u.runner.Trigger(ctx, false)
	return nil
}

func (u *Updater) OnActivityReady(ctx context.Context, _ lifecycle.Activity) error {
	u.retry.OnActivityReady(ctx)
	return nil
}
