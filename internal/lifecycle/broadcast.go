// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"maps"

	xglog "github.com/ManuGH/bundled/internal/log"
)

// BroadcastName is the registered name of the composite module.
const BroadcastName = "broadcast"

// Subscriber receives cross-cutting messages published through a Broadcast.
type Subscriber interface {
	OnBroadcast(ctx context.Context, topic string, payload any) error
}

// Contributor adds entries to the payload exposed to the bundle at startup.
type Contributor interface {
	Contribute() map[string]any
}

// Broadcast is a module that fans messages out to its siblings. It holds its
// own copy of the sibling list taken at construction.
type Broadcast struct {
	Base
	siblings []Module
}

// NewBroadcast builds a Broadcast over a snapshot of siblings.
func NewBroadcast(siblings []Module) *Broadcast {
	return &Broadcast{siblings: append([]Module(nil), siblings...)}
}

// WithBroadcast returns a new slice holding base followed by a Broadcast over base.
func WithBroadcast(base []Module) ([]Module, *Broadcast) {
	b := NewBroadcast(base)
	out := make([]Module, 0, len(base)+1)
	out = append(out, base...)
	return append(out, b), b
}

func (b *Broadcast) Name() string { return BroadcastName }

// Siblings returns the module snapshot.
func (b *Broadcast) Siblings() []Module {
	return append([]Module(nil), b.siblings...)
}

// Manifest lists sibling names in order.
func (b *Broadcast) Manifest() []string {
	names := make([]string, len(b.siblings))
	for i, m := range b.siblings {
		names[i] = m.Name()
	}
	return names
}

// Payload merges the contributions of all siblings, keyed by module name.
func (b *Broadcast) Payload() map[string]any {
	out := map[string]any{"modules": b.Manifest()}
	for _, m := range b.siblings {
		c, ok := m.(Contributor)
		if !ok {
			continue
		}
		entry := make(map[string]any)
		maps.Copy(entry, c.Contribute())
		out[m.Name()] = entry
	}
	return out
}

// Publish delivers payload to every Subscriber sibling. Failures are isolated
// like lifecycle dispatch and returned joined.
func (b *Broadcast) Publish(ctx context.Context, topic string, payload any) error {
	var errs []error
	for _, m := range b.siblings {
		s, ok := m.(Subscriber)
		if !ok {
			continue
		}
		if err := publishOne(ctx, s, topic, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func publishOne(ctx context.Context, s Subscriber, topic string, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrModulePanic, r)
		}
	}()
	return s.OnBroadcast(ctx, topic, payload)
}

// OnContextReady logs the module manifest once the host is up.
func (b *Broadcast) OnContextReady(ctx context.Context, _ HostContext) error {
	logger := xglog.WithComponentFromContext(ctx, "lifecycle")
	logger.Info().
		Str(xglog.FieldEvent, "lifecycle.manifest").
		Strs("modules", b.Manifest()).
		Msg("extension modules ready")
	return nil
}
