// SPDX-License-Identifier: MIT

package retry

import (
	"context"
	"errors"
	"fmt"

	xglog "github.com/ManuGH/bundled/internal/log"
	"github.com/ManuGH/bundled/internal/metrics"
)

// Runner starts a background update run; *updater.Updater implements it.
type Runner interface {
	Trigger(ctx context.Context, userRetry bool)
}

// Clearer drops the cached bundle and its token.
type Clearer interface {
	Clear() error
}

// Reloader restarts the host so the lifecycle runs again from Init.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Prompter shows a modal choice and returns the selected index.
type Prompter interface {
	Prompt(ctx context.Context, title string, options []string) (int, error)
}

// Recovery choice indices, in dialog order.
const (
	ChoiceReload = iota
	ChoiceDeleteAndReload
)

// PromptTitle is shown above the recovery choices.
const PromptTitle = "Bundle failed to load"

var choices = []string{"Reload", "Delete bundle.js"}

// ErrInvalidChoice is returned by Choose for an index outside Choices().
var ErrInvalidChoice = errors.New("invalid recovery choice")

// Controller converts the sticky failure into a user retry and runs recovery actions.
type Controller struct {
	state    *State
	runner   Runner
	store    Clearer
	reloader Reloader
}

// NewController wires a Controller. All collaborators are required.
func NewController(state *State, runner Runner, store Clearer, reloader Reloader) *Controller {
	return &Controller{state: state, runner: runner, store: store, reloader: reloader}
}

// State exposes the sticky flag the controller drains.
func (c *Controller) State() *State { return c.state }

// Pending returns the failure waiting for the next activity, if any.
func (c *Controller) Pending() error { return c.state.Pending() }

// OnActivityReady dispatches one user retry if a failure is pending. The flag is
// cleared before the retry starts, so a failing retry sets it again for the
// next activity. It reports whether a retry was dispatched.
func (c *Controller) OnActivityReady(ctx context.Context) bool {
	cause := c.state.take()
	if cause == nil {
		return false
	}
	metrics.IncRetryDispatch()
	logger := xglog.WithComponentFromContext(ctx, "retry")
	logger.Info().
		Str(xglog.FieldEvent, "retry.dispatch").
		AnErr("previous_error", cause).
		Msg("retrying bundle update after previous failure")
	c.runner.Trigger(ctx, true)
	return true
}

// Choices returns the recovery options in dialog order.
func (c *Controller) Choices() []string {
	out := make([]string, len(choices))
	copy(out, choices)
	return out
}

// Reload restarts the host without touching the cache.
func (c *Controller) Reload(ctx context.Context) error {
	metrics.IncRecoveryAction("reload")
	logger := xglog.WithComponentFromContext(ctx, "retry")
	logger.Info().
		Str(xglog.FieldEvent, "retry.reload").
		Msg("reloading host")
	if err := c.reloader.Reload(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// DeleteAndReload clears the cached bundle and token, then reloads. The reload
// is skipped when the cache could not be cleared.
func (c *Controller) DeleteAndReload(ctx context.Context) error {
	metrics.IncRecoveryAction("delete_and_reload")
	logger := xglog.WithComponentFromContext(ctx, "retry")
	if err := c.store.Clear(); err != nil {
		logger.Error().Err(err).
			Str(xglog.FieldEvent, "retry.clear_failed").
			Msg("failed to delete cached bundle")
		return fmt.Errorf("clear cache: %w", err)
	}
	logger.Info().
		Str(xglog.FieldEvent, "retry.cache_cleared").
		Msg("cached bundle deleted, reloading host")
	if err := c.reloader.Reload(ctx); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// Choose runs the action for a dialog index.
func (c *Controller) Choose(ctx context.Context, index int) error {
	switch index {
	case ChoiceReload:
		return c.Reload(ctx)
	case ChoiceDeleteAndReload:
		return c.DeleteAndReload(ctx)
	default:
		return fmt.Errorf("%w: %d", ErrInvalidChoice, index)
	}
}

// Present shows the recovery dialog and runs the selected action.
func (c *Controller) Present(ctx context.Context, p Prompter) error {
	idx, err := p.Prompt(ctx, PromptTitle, c.Choices())
	if err != nil {
		return fmt.Errorf("recovery prompt: %w", err)
	}
	return c.Choose(ctx, idx)
}
