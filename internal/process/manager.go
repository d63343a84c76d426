package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

const (
	defaultRestartDelay    = 5 * time.Second
	defaultMaxRestartDelay = 5 * time.Minute
	defaultStableThreshold = 2 * time.Minute
	defaultGracefulTimeout = 10 * time.Second

	// maxLogLine bounds one captured output line.
	maxLogLine = 64 * 1024
)

// Config holds configuration for a managed daemon.
type Config struct {
	// Name identifies the process in logs.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are passed to the binary.
	Args []string

	// Env are extra KEY=value entries appended to the parent environment.
	Env []string

	// WorkDir is the working directory. Empty inherits the parent's.
	WorkDir string

	// RestartOnFailure restarts the daemon when it exits unexpectedly.
	RestartOnFailure bool

	// RestartDelay is the first backoff delay. It doubles per consecutive
	// failure up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long the daemon must run before a later exit
	// resets the backoff.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// OnStart is called after every successful start.
	OnStart func()

	// OnStop is called when the process exits, with nil for a requested stop.
	OnStop func(err error)
}

// DefaultConfig returns a Config with restart enabled.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:               name,
		Binary:             binary,
		Args:               args,
		RestartOnFailure:   true,
		RestartDelay:       defaultRestartDelay,
		MaxRestartDelay:    defaultMaxRestartDelay,
		StableThreshold:    defaultStableThreshold,
		MaxRestartAttempts: 10,
		GracefulTimeout:    defaultGracefulTimeout,
	}
}

// Logger defines the logging interface for the process package.
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

// Manager supervises one daemon.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool
	stop          chan struct{}
	done          chan struct{}
}

// NewManager creates a manager. Zero durations take package defaults.
func NewManager(cfg Config) *Manager {
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = defaultMaxRestartDelay
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = defaultStableThreshold
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Start launches the daemon and supervises it until Stop or ctx ends.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.status == StatusRunning || m.status == StatusStarting {
		m.mu.Unlock()
		return fmt.Errorf("process %s is already running", m.config.Name)
	}
	m.status = StatusStarting
	m.stopRequested = false
	m.restartCount = 0
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.mu.Unlock()

	if err := m.launch(ctx); err != nil {
		m.mu.Lock()
		m.status = StatusFailed
		m.lastError = err
		close(m.done)
		m.mu.Unlock()
		return err
	}

	go m.supervise(ctx)
	return nil
}

func (m *Manager) launch(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, m.config.Binary, m.config.Args...) //nolint:gosec // binary comes from validated config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(m.config.Env) > 0 {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	cmd.Dir = m.config.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.mu.Lock()
	m.cmd = cmd
	m.status = StatusRunning
	m.startTime = time.Now()
	m.mu.Unlock()

	go m.logLines("stdout", stdout)
	go m.logLines("stderr", stderr)

	m.logger.Info("process started", "name", m.config.Name, "pid", cmd.Process.Pid)
	if m.config.OnStart != nil {
		m.config.OnStart()
	}
	return nil
}

// logLines logs each output line of the daemon. The master prints one line
// per write it performs, so this doubles as a device-side audit trail.
func (m *Manager) logLines(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLogLine)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			m.logger.Info("process output", "name", m.config.Name, "stream", stream, "line", line)
		}
	}
}

func (m *Manager) supervise(ctx context.Context) {
	defer close(m.done)

	for {
		m.mu.RLock()
		cmd := m.cmd
		started := m.startTime
		m.mu.RUnlock()

		err := cmd.Wait()

		m.mu.Lock()
		stopRequested := m.stopRequested
		if stopRequested || ctx.Err() != nil {
			m.status = StatusStopped
			m.mu.Unlock()
			m.logger.Info("process stopped", "name", m.config.Name)
			if m.config.OnStop != nil {
				m.config.OnStop(nil)
			}
			return
		}
		if err == nil {
			err = errors.New("exited with status 0")
		}
		m.status = StatusFailed
		m.lastError = err
		if time.Since(started) >= m.config.StableThreshold {
			m.restartCount = 0
		}
		m.restartCount++
		attempt := m.restartCount
		m.mu.Unlock()

		m.logger.Warn("process exited unexpectedly", "name", m.config.Name, "error", err)
		if m.config.OnStop != nil {
			m.config.OnStop(err)
		}

		if !m.config.RestartOnFailure {
			return
		}
		if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
			m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
			return
		}

		delay := m.backoff(attempt)
		m.logger.Info("restarting process", "name", m.config.Name, "attempt", attempt, "delay", delay)

		if !m.waitForRestart(ctx, delay) {
			m.setStopped()
			return
		}

		for {
			err := m.launch(ctx)
			if err == nil {
				break
			}
			m.logger.Error("failed to restart process", "name", m.config.Name, "error", err)

			m.mu.Lock()
			m.lastError = err
			m.restartCount++
			attempt = m.restartCount
			m.mu.Unlock()

			if m.config.MaxRestartAttempts > 0 && attempt > m.config.MaxRestartAttempts {
				m.logger.Error("max restart attempts reached", "name", m.config.Name, "attempts", attempt-1)
				return
			}
			if !m.waitForRestart(ctx, m.backoff(attempt)) {
				m.setStopped()
				return
			}
		}
	}
}

// waitForRestart sleeps for delay and reports whether a restart should
// still happen.
func (m *Manager) waitForRestart(ctx context.Context, delay time.Duration) bool {
	m.mu.RLock()
	stop := m.stop
	m.mu.RUnlock()

	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-time.After(delay):
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.stopRequested
}

func (m *Manager) setStopped() {
	m.mu.Lock()
	m.status = StatusStopped
	m.mu.Unlock()
}

// backoff returns the delay before restart attempt n (1-based).
func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.config.RestartDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.config.MaxRestartDelay {
			return m.config.MaxRestartDelay
		}
	}
	return min(delay, m.config.MaxRestartDelay)
}

// Stop sends SIGTERM to the process group and escalates to SIGKILL after
// GracefulTimeout. It returns once supervision has ended.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.done == nil {
		m.mu.Unlock()
		return nil
	}
	if !m.stopRequested {
		m.stopRequested = true
		close(m.stop)
	}
	cmd := m.cmd
	done := m.done
	running := m.status == StatusRunning
	m.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM", "name", m.config.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timed out, sending SIGKILL", "name", m.config.Name)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}
	<-done
	return nil
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// IsRunning reports whether the daemon is up.
func (m *Manager) IsRunning() bool {
	return m.Status() == StatusRunning
}

// LastError returns the error of the last unexpected exit or failed start.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastError
}

// RestartCount returns consecutive restarts since the last stable run.
func (m *Manager) RestartCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.restartCount
}

// PID returns the process ID, or 0 if not running.
func (m *Manager) PID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == StatusRunning && m.cmd != nil && m.cmd.Process != nil {
		return m.cmd.Process.Pid
	}
	return 0
}

// Stats is a snapshot of the supervised process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns a snapshot of the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := Stats{
		Name:         m.config.Name,
		Status:       m.status,
		RestartCount: m.restartCount,
	}
	if m.status == StatusRunning {
		if m.cmd != nil && m.cmd.Process != nil {
			stats.PID = m.cmd.Process.Pid
		}
		stats.Uptime = time.Since(m.startTime)
	}
	if m.lastError != nil {
		stats.LastError = m.lastError.Error()
	}
	return stats
}
