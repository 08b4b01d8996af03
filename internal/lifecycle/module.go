// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package lifecycle fans host lifecycle events out to an ordered list of
// extension modules.
package lifecycle

import (
	"context"
	"time"
)

// Stage names a lifecycle event.
type Stage string

const (
	StageInit          Stage = "init"
	StageLoad          Stage = "load"
	StageContextReady  Stage = "context_ready"
	StageActivityReady Stage = "activity_ready"
)

// once reports whether the stage may be delivered only a single time.
func (s Stage) once() bool {
	return s != StageActivityReady
}

// StartupParams describe the host process at init time.
type StartupParams struct {
	Version   string
	DataDir   string
	StartedAt time.Time
}

// PackageParams describe the package the host attached to.
type PackageParams struct {
	PackageName string
	ProcessName string
	DataDir     string
}

// HostContext is the application context handed out once the host is up.
type HostContext struct {
	FilesDir string
	CacheDir string
}

// Activity identifies a newly created activity (window).
type Activity struct {
	ID   string
	Name string
}

// Module is an extension participating in the lifecycle. Capabilities are
// opt-in through the interfaces below.
type Module interface {
	Name() string
}

type Initializer interface {
	OnInit(ctx context.Context, p StartupParams) error
}

type Loader interface {
	OnLoad(ctx context.Context, p PackageParams) error
}

type ContextReceiver interface {
	OnContextReady(ctx context.Context, hc HostContext) error
}

type ActivityReceiver interface {
	OnActivityReady(ctx context.Context, a Activity) error
}

// Base gives embedding modules no-op handlers for every stage.
type Base struct{}

func (Base) OnInit(context.Context, StartupParams) error       { return nil }
func (Base) OnLoad(context.Context, PackageParams) error       { return nil }
func (Base) OnContextReady(context.Context, HostContext) error { return nil }
func (Base) OnActivityReady(context.Context, Activity) error   { return nil }
