package master

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreams-grid/dreams-core/internal/process"
)

// Output is what one sender invocation produced.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Handle runs the sender somewhere the master can be reached.
type Handle interface {
	// Exec runs argv to completion. A non-zero exit is reported through
	// Output.ExitCode, not as an error. ctx bounds the whole invocation;
	// when it ends the returned error wraps ctx.Err().
	Exec(ctx context.Context, argv []string) (Output, error)
}

// Locator resolves a Handle for the master service.
type Locator interface {
	// Resolve returns a handle, or an error wrapping ErrServiceUnavailable.
	Resolve(ctx context.Context) (Handle, error)
}

// Availability reports whether the local master daemon is up.
type Availability interface {
	IsRunning() bool
}

// ProcessLocator runs the sender as a local child process.
type ProcessLocator struct {
	daemon Availability
	env    []string
}

// NewProcessLocator creates a locator for a sender on this host. With a
// nil daemon the master is assumed to be managed elsewhere and always
// available.
func NewProcessLocator(daemon Availability, env []string) *ProcessLocator {
	return &ProcessLocator{daemon: daemon, env: env}
}

// Resolve returns a local handle if the daemon is running.
func (l *ProcessLocator) Resolve(_ context.Context) (Handle, error) {
	if l.daemon != nil && !l.daemon.IsRunning() {
		return nil, fmt.Errorf("%w: master daemon is not running", ErrServiceUnavailable)
	}
	return localHandle{env: l.env}, nil
}

type localHandle struct {
	env []string
}

func (h localHandle) Exec(ctx context.Context, argv []string) (Output, error) {
	res, err := process.Run(ctx, argv, h.env)
	out := Output{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return out, err
		}
		return out, &ProcessError{ExitCode: -1, Err: err}
	}
	return out, nil
}
