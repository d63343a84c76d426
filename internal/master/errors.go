package master

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrServiceUnavailable is returned when no running master can be found.
	ErrServiceUnavailable = errors.New("master: service unavailable")

	// ErrProcessExecution is matched by every *ProcessError.
	ErrProcessExecution = errors.New("master: process execution failed")

	// ErrUncertainOutcome is returned when the caller stopped waiting, or the
	// invocation hit its hard limit, after the command was handed to the
	// master. The device may or may not have applied it; re-poll to find out.
	ErrUncertainOutcome = errors.New("master: outcome uncertain")

	// ErrNotDispatched is returned when the caller gave up while the command
	// was still queued. Nothing reached the master, so it is safe to retry.
	ErrNotDispatched = errors.New("master: command not dispatched")
)

// ProcessError describes a sender invocation that ran but failed, or could
// not be started.
type ProcessError struct {
	// ExitCode is the sender's exit status, or -1 if it never ran.
	ExitCode int

	// Stderr holds the decoded error stream lines.
	Stderr []string

	// Err is the underlying start or transport error, if any.
	Err error
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	b.WriteString("master: sender ")
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, "exited with status %d", e.ExitCode)
	} else {
		b.WriteString("could not run")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Stderr) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Stderr, "; "))
	}
	return b.String()
}

// Is makes errors.Is(err, ErrProcessExecution) true for any *ProcessError.
func (e *ProcessError) Is(target error) bool {
	return target == ErrProcessExecution
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}

// OutcomeOf classifies an error returned by Dispatch into an outcome label.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrNotDispatched):
		return OutcomeNotDispatched
	case errors.Is(err, ErrUncertainOutcome):
		return OutcomeUncertain
	case errors.Is(err, ErrServiceUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeProcessError
	}
}
