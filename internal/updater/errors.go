// SPDX-License-Identifier: MIT

package updater

import (
	"errors"
	"fmt"

	xgnet "github.com/ManuGH/bundled/internal/platform/net"
)

var (
	// ErrTimeout marks a fetch that exceeded its timeout tier.
	ErrTimeout = errors.New("bundle fetch timed out")
	// ErrUnexpectedStatus marks any response other than 200 or 304.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrSuperseded is the cancellation cause of a run replaced by a newer trigger.
	ErrSuperseded = errors.New("update superseded by a newer trigger")
	// ErrClosed is returned for runs requested after Close.
	ErrClosed = errors.New("updater closed")
)

// StatusError reports an unexpected HTTP status from the bundle source.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received status: %s", e.Status)
}

func (e *StatusError) Is(target error) bool { return target == ErrUnexpectedStatus }

// TransportError wraps network level failures.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %v", xgnet.SanitizeURL(e.URL), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
