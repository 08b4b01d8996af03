// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import "context"

// Event is one lifecycle signal with its payload.
type Event interface {
	Stage() Stage
	// deliver invokes the matching handler; handled is false when m lacks it.
	deliver(ctx context.Context, m Module) (handled bool, err error)
}

type InitEvent struct{ Params StartupParams }

type LoadEvent struct{ Params PackageParams }

type ContextReadyEvent struct{ Context HostContext }

type ActivityReadyEvent struct{ Activity Activity }

func (InitEvent) Stage() Stage          { return StageInit }
func (LoadEvent) Stage() Stage          { return StageLoad }
func (ContextReadyEvent) Stage() Stage  { return StageContextReady }
func (ActivityReadyEvent) Stage() Stage { return StageActivityReady }

func (e InitEvent) deliver(ctx context.Context, m Module) (bool, error) {
	h, ok := m.(Initializer)
	if !ok {
		return false, nil
	}
	return true, h.OnInit(ctx, e.Params)
}

func (e LoadEvent) deliver(ctx context.Context, m Module) (bool, error) {
	h, ok := m.(Loader)
	if !ok {
		return false, nil
	}
	return true, h.OnLoad(ctx, e.Params)
}

func (e ContextReadyEvent) deliver(ctx context.Context, m Module) (bool, error) {
	h, ok := m.(ContextReceiver)
	if !ok {
		return false, nil
	}
	return true, h.OnContextReady(ctx, e.Context)
}

func (e ActivityReadyEvent) deliver(ctx context.Context, m Module) (bool, error) {
	h, ok := m.(ActivityReceiver)
	if !ok {
		return false, nil
	}
	return true, h.OnActivityReady(ctx, e.Activity)
}
