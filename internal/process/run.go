package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// killGrace is how long Run waits for output pipes to drain after the
// process group has been killed.
const killGrace = 2 * time.Second

// Result is the outcome of a completed Run.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Run executes argv[0] with argv[1:] and waits for it to exit.
//
// A non-zero exit is not an error: it is reported through ExitCode. An
// error means the command could not be started, or ctx ended first and the
// process group was killed; in that case the returned error wraps ctx.Err()
// and Result holds whatever output had been produced.
func Run(ctx context.Context, argv []string, env []string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, errors.New("process: empty command")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // argv[0] is the configured sender path
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("starting %s: %w", argv[0], err)
	}

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitCh:
	case <-ctx.Done():
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL) //nolint:errcheck // group may already be gone

		res := Result{ExitCode: -1}
		select {
		case <-waitCh:
			res.Stdout, res.Stderr = stdout.Bytes(), stderr.Bytes()
		case <-time.After(killGrace):
			// Output is still being copied; leave it out rather than race.
		}
		res.Duration = time.Since(start)
		return res, fmt.Errorf("%s killed: %w", argv[0], ctx.Err())
	}

	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("waiting for %s: %w", argv[0], waitErr)
	}
	return res, nil
}
