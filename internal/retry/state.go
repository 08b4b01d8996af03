// SPDX-License-Identifier: MIT

// Package retry holds the sticky update error and turns it into exactly one
// retry when the host reports a new activity. It also owns the two recovery
// actions offered to the user after a failure.
package retry

import (
	"sync"

	xglog "github.com/ManuGH/bundled/internal/log"
	"github.com/ManuGH/bundled/internal/metrics"
)

// State is the sticky "last update failed" flag. The updater reports failures
// into it; the controller drains it.
type State struct {
	mu      sync.Mutex
	lastErr error
}

// NewState returns a clear State.
func NewState() *State {
	metrics.SetStickyError(false)
	return &State{}
}

// Fail records err as the pending failure. A nil error is ignored.
func (s *State) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastErr = err
	metrics.SetStickyError(true)
	s.mu.Unlock()

	logger := xglog.WithComponent("retry")
	logger.Warn().
		Err(err).
		Str(xglog.FieldEvent, "retry.sticky_set").
		Msg("update failed, retry pending on next activity")
}

// Pending returns the recorded failure or nil.
func (s *State) Pending() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// take clears the flag and returns what was pending.
func (s *State) take() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.lastErr
	s.lastErr = nil
	if err != nil {
		metrics.SetStickyError(false)
	}
	return err
}
