package commands

import (
	"errors"

	"github.com/dreams-grid/dreams-core/internal/dnp3"
	"github.com/dreams-grid/dreams-core/internal/master"
	"github.com/dreams-grid/dreams-core/internal/plant"
)

// Error codes returned to requesters.
const (
	CodeNotFound           = "not_found"
	CodeBadRequest         = "bad_request"
	CodeServiceUnavailable = "service_unavailable"
	CodeProcessError       = "process_error"
	CodeUncertainOutcome   = "uncertain_outcome"
	CodeInternal           = "internal_error"
)

// ErrBadRequest is returned for malformed or incomplete requests.
var ErrBadRequest = errors.New("commands: bad request")

// ErrNotRunning is returned for messages delivered before Start or after Stop.
var ErrNotRunning = errors.New("commands: server not running")

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return "commands: " + e.msg }
func (e *requestError) Unwrap() error { return ErrBadRequest }

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

// CodeOf maps an operation error to its response code.
//
// A command that never left the queue is reported as service_unavailable:
// the master did not take it, and the requester may retry.
func CodeOf(err error) string {
	switch {
	case errors.Is(err, plant.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, dnp3.ErrUnsupportedCommandType),
		errors.Is(err, dnp3.ErrUnsupportedField),
		errors.Is(err, dnp3.ErrValueOutOfRange):
		return CodeBadRequest
	case errors.Is(err, master.ErrServiceUnavailable),
		errors.Is(err, master.ErrNotDispatched):
		return CodeServiceUnavailable
	case errors.Is(err, master.ErrUncertainOutcome):
		return CodeUncertainOutcome
	case errors.Is(err, master.ErrProcessExecution):
		return CodeProcessError
	default:
		return CodeInternal
	}
}
