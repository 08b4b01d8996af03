// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	xglog "github.com/ManuGH/bundled/internal/log"
	"github.com/ManuGH/bundled/internal/metrics"
	"github.com/rs/zerolog"
)

// Orchestrator delivers lifecycle events to its modules in registration order.
// A failing or panicking module is logged and skipped; later modules still
// receive the event.
type Orchestrator struct {
	logger zerolog.Logger

	// dispatchMu serializes whole dispatches so stages never interleave.
	dispatchMu sync.Mutex

	mu        sync.Mutex
	modules   []Module
	frozen    bool
	delivered map[Stage]bool
	hooked    bool
}

// New returns an Orchestrator over a copy of modules.
func New(logger zerolog.Logger, modules ...Module) *Orchestrator {
	return &Orchestrator{
		logger:    logger,
		modules:   append([]Module(nil), modules...),
		delivered: make(map[Stage]bool, 3),
	}
}

// Register appends modules. It fails once the first event was dispatched.
func (o *Orchestrator) Register(modules ...Module) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.frozen {
		return ErrRegistryFrozen
	}
	o.modules = append(o.modules, modules...)
	return nil
}

// Modules returns the registered modules in order.
func (o *Orchestrator) Modules() []Module {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Module(nil), o.modules...)
}

// Delivered reports whether a stage has been dispatched.
func (o *Orchestrator) Delivered(s Stage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.delivered[s]
}

// AttachPackage is the host attach path. Only the first call dispatches Load;
// duplicate attach signals return false without touching any module.
func (o *Orchestrator) AttachPackage(ctx context.Context, p PackageParams) (bool, error) {
	o.mu.Lock()
	if o.hooked {
		o.mu.Unlock()
		o.logger.Debug().
			Str(xglog.FieldEvent, "lifecycle.attach_duplicate").
			Str("package", p.PackageName).
			Msg("ignoring duplicate attach signal")
		return false, nil
	}
	o.hooked = true
	o.mu.Unlock()

	return true, o.Dispatch(ctx, LoadEvent{Params: p})
}

// Dispatch delivers ev to every module. The returned error joins every
// *ModuleDispatchError; it is nil when all handlers succeeded.
func (o *Orchestrator) Dispatch(ctx context.Context, ev Event) error {
	stage := ev.Stage()

	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	o.mu.Lock()
	if stage.once() && o.delivered[stage] {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyDispatched, stage)
	}
	o.delivered[stage] = true
	o.frozen = true
	modules := append([]Module(nil), o.modules...)
	o.mu.Unlock()

	ctx = xglog.ContextWithStage(ctx, string(stage))
	start := time.Now()
	var errs []error
	handled := 0
	for _, m := range modules {
		ok, err := o.deliver(ctx, m, ev)
		if ok {
			handled++
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	logEv := o.logger.Info()
	if len(errs) > 0 {
		logEv = o.logger.Warn().Int("failed", len(errs))
	}
	logEv.Str(xglog.FieldEvent, "lifecycle.dispatched").
		Str(xglog.FieldStage, string(stage)).
		Int("modules", len(modules)).
		Int("handled", handled).
		Dur("duration", time.Since(start)).
		Msg("lifecycle stage dispatched")

	return errors.Join(errs...)
}

func (o *Orchestrator) deliver(ctx context.Context, m Module, ev Event) (handled bool, err error) {
	name := m.Name()
	stage := ev.Stage()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		handled = true
		err = &ModuleDispatchError{Module: name, Stage: stage, Err: fmt.Errorf("%w: %v", ErrModulePanic, r)}
		metrics.IncModuleDispatchError(name, string(stage))
		o.logger.Error().
			Str(xglog.FieldEvent, "lifecycle.module_panic").
			Str(xglog.FieldModule, name).
			Str(xglog.FieldStage, string(stage)).
			Interface("panic", r).
			Bytes("stack", debug.Stack()).
			Msg("module panicked during dispatch")
	}()

	handled, herr := ev.deliver(ctx, m)
	if herr == nil {
		return handled, nil
	}
	metrics.IncModuleDispatchError(name, string(stage))
	o.logger.Error().
		Err(herr).
		Str(xglog.FieldEvent, "lifecycle.module_failed").
		Str(xglog.FieldModule, name).
		Str(xglog.FieldStage, string(stage)).
		Msg("module failed during dispatch")
	return handled, &ModuleDispatchError{Module: name, Stage: stage, Err: herr}
}
