// SPDX-License-Identifier: MIT

package cache

import "fmt"

// WriteError reports a failed cache mutation. The previously committed bundle
// stays authoritative when one is returned.
type WriteError struct {
	Op   string
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
