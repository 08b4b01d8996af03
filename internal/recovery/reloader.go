// SPDX-License-Identifier: MIT

package recovery

import (
	"context"
	"fmt"
	"os"
	"syscall"

	xglog "github.com/ManuGH/bundled/internal/log"
)

// ExecReloader restarts the daemon by replacing the process image with a fresh
// copy of itself. The new process runs the lifecycle from Init again.
type ExecReloader struct {
	Path string
	Args []string
	Env  []string

	// Before runs ahead of the exec, e.g. to flush state. An error aborts the reload.
	Before func(ctx context.Context) error

	exec func(argv0 string, argv []string, envv []string) error
}

// NewExecReloader targets the running executable with the current arguments
// and environment.
func NewExecReloader() (*ExecReloader, error) {
	path, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &ExecReloader{
		Path: path,
		Args: append([]string(nil), os.Args...),
		Env:  os.Environ(),
		exec: syscall.Exec,
	}, nil
}

// Reload only returns when the exec failed.
func (r *ExecReloader) Reload(ctx context.Context) error {
	if r.Before != nil {
		if err := r.Before(ctx); err != nil {
			return fmt.Errorf("prepare reload: %w", err)
		}
	}
	logger := xglog.WithComponentFromContext(ctx, "recovery")
	logger.Info().
		Str(xglog.FieldEvent, "recovery.reload").
		Str(xglog.FieldPath, r.Path).
		Msg("re-executing daemon")

	exec := r.exec
	if exec == nil {
		exec = syscall.Exec
	}
	if err := exec(r.Path, r.Args, r.Env); err != nil {
		return fmt.Errorf("exec %s: %w", r.Path, err)
	}
	return nil
}
