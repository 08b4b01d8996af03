// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryFrozen is returned by Register once dispatch has started.
	ErrRegistryFrozen = errors.New("module registry is frozen")
	// ErrAlreadyDispatched is returned when a once-only stage is fired again.
	ErrAlreadyDispatched = errors.New("lifecycle stage already dispatched")
	// ErrModulePanic marks a handler that panicked.
	ErrModulePanic = errors.New("module panicked")
)

// ModuleDispatchError reports one module's failure during a stage.
type ModuleDispatchError struct {
	Module string
	Stage  Stage
	Err    error
}

func (e *ModuleDispatchError) Error() string {
	return fmt.Sprintf("module %q failed on %s: %v", e.Module, e.Stage, e.Err)
}

func (e *ModuleDispatchError) Unwrap() error { return e.Err }
