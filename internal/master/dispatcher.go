package master

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dreams-grid/dreams-core/internal/dnp3"
	"github.com/dreams-grid/dreams-core/internal/keylock"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultHardLimit     = 2 * time.Minute
	defaultMaxConcurrent = 8
)

// Logger is the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds dispatcher settings.
type Config struct {
	// SenderPath is the executable prepended to every argument vector.
	SenderPath string

	// Timeout bounds how long Dispatch waits, queueing included.
	Timeout time.Duration

	// HardLimit bounds one invocation regardless of callers.
	HardLimit time.Duration

	// MaxConcurrent caps invocations across all devices.
	MaxConcurrent int
}

// Dispatcher hands encoded commands to the master.
type Dispatcher struct {
	locator Locator
	cfg     Config
	slots   *semaphore.Weighted
	devices keylock.Map
	metrics *Metrics
	logger  Logger
}

// NewDispatcher creates a dispatcher. Zero settings take defaults.
func NewDispatcher(locator Locator, cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HardLimit < cfg.Timeout {
		cfg.HardLimit = max(defaultHardLimit, cfg.Timeout)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}

	return &Dispatcher{
		locator: locator,
		cfg:     cfg,
		slots:   semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetMetrics enables dispatch metrics.
func (d *Dispatcher) SetMetrics(m *Metrics) {
	d.metrics = m
}

// result is what the invocation goroutine reports.
type result struct {
	lines []string
	err   error
}

// Dispatch runs cmd through the master and returns its decoded output.
//
// Errors:
//   - ErrServiceUnavailable: no master to talk to
//   - ErrNotDispatched: gave up while queued; nothing was sent
//   - *ProcessError (ErrProcessExecution): the sender failed
//   - ErrUncertainOutcome: gave up, or the hard limit hit, after sending
func (d *Dispatcher) Dispatch(ctx context.Context, cmd dnp3.Command) ([]string, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	device := cmd.Target.DeviceKey()
	log := []any{"kind", cmd.Kind, "device", device}

	handle, err := d.locator.Resolve(ctx)
	if err != nil {
		d.metrics.observe(cmd.Kind, OutcomeUnavailable, time.Since(start))
		d.logger.Error("master unavailable", append(log, "error", err)...)
		if !errors.Is(err, ErrServiceUnavailable) {
			err = fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
		}
		return nil, err
	}

	unlock, err := d.devices.LockContext(ctx, device)
	if err != nil {
		return nil, d.notDispatched(cmd, start, "device busy", err)
	}
	if err := d.slots.Acquire(ctx, 1); err != nil {
		unlock()
		return nil, d.notDispatched(cmd, start, "dispatch slots exhausted", err)
	}

	argv := append([]string{d.cfg.SenderPath}, cmd.Args...)
	done := make(chan result)
	abandoned := make(chan struct{})

	// The invocation owns the device lock and slot until it ends; callers
	// walking away must not let another command reach the device meanwhile.
	go func() {
		runCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.HardLimit)
		defer stop()

		d.metrics.running(1)
		res := d.invoke(runCtx, handle, argv)
		d.metrics.running(-1)
		d.slots.Release(1)
		unlock()

		select {
		case done <- res:
		case <-abandoned:
			d.logger.Warn("dispatch finished after caller stopped waiting",
				append(log, "output", res.lines, "error", res.err, "elapsed", time.Since(start))...)
		}
	}()

	d.logger.Debug("dispatching", append(log, "args", cmd.Args)...)

	select {
	case res := <-done:
		outcome := OutcomeOK
		switch {
		case errors.Is(res.err, ErrUncertainOutcome):
			outcome = OutcomeUncertain
		case res.err != nil:
			outcome = OutcomeProcessError
		}
		d.metrics.observe(cmd.Kind, outcome, time.Since(start))
		if res.err != nil {
			d.logger.Warn("dispatch failed", append(log, "error", res.err)...)
			return nil, res.err
		}
		d.logger.Info("dispatch complete", append(log, "lines", len(res.lines), "elapsed", time.Since(start))...)
		return res.lines, nil

	case <-ctx.Done():
		close(abandoned)
		d.metrics.observe(cmd.Kind, OutcomeUncertain, time.Since(start))
		d.logger.Warn("dispatch outcome uncertain", append(log, "error", ctx.Err())...)
		return nil, fmt.Errorf("%w: %s to %s: %w", ErrUncertainOutcome, cmd.Kind, device, ctx.Err())
	}
}

// invoke runs one sender invocation and classifies its result.
func (d *Dispatcher) invoke(ctx context.Context, handle Handle, argv []string) result {
	out, err := handle.Exec(ctx, argv)
	if err != nil {
		var pe *ProcessError
		if errors.As(err, &pe) {
			if pe.Stderr == nil {
				pe.Stderr = DecodeOutput(out.Stderr)
			}
			return result{err: pe}
		}
		if ctx.Err() != nil {
			return result{err: fmt.Errorf("%w: hard limit reached: %w", ErrUncertainOutcome, err)}
		}
		return result{err: &ProcessError{ExitCode: -1, Err: err, Stderr: DecodeOutput(out.Stderr)}}
	}

	if out.ExitCode != 0 {
		return result{err: &ProcessError{ExitCode: out.ExitCode, Stderr: DecodeOutput(out.Stderr)}}
	}
	return result{lines: DecodeOutput(out.Stdout, out.Stderr)}
}

func (d *Dispatcher) notDispatched(cmd dnp3.Command, start time.Time, reason string, err error) error {
	d.metrics.observe(cmd.Kind, OutcomeNotDispatched, time.Since(start))
	d.logger.Warn("command not dispatched", "kind", cmd.Kind, "device", cmd.Target.DeviceKey(), "reason", reason)
	return fmt.Errorf("%w: %s: %w", ErrNotDispatched, reason, err)
}
