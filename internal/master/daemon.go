package master

import (
	"context"
	"time"

	"github.com/dreams-grid/dreams-core/internal/process"
)

// DaemonConfig describes the long-running dreams-master process.
type DaemonConfig struct {
	Binary             string
	Args               []string
	Env                []string
	RestartOnFailure   bool
	RestartDelay       time.Duration
	MaxRestartAttempts int
}

// Daemon supervises the dreams-master process in exec mode. The master loads
// its plant roster at startup, so Reload restarts it to pick up new plants.
type Daemon struct {
	cfg     DaemonConfig
	manager *process.Manager
	logger  Logger
}

// NewDaemon creates a daemon supervisor.
func NewDaemon(cfg DaemonConfig) *Daemon {
	return &Daemon{
		cfg:     cfg,
		manager: newDaemonManager(cfg),
		logger:  noopLogger{},
	}
}

func newDaemonManager(cfg DaemonConfig) *process.Manager {
	pcfg := process.DefaultConfig("dreams-master", cfg.Binary, cfg.Args)
	pcfg.Env = cfg.Env
	pcfg.RestartOnFailure = cfg.RestartOnFailure
	pcfg.MaxRestartAttempts = cfg.MaxRestartAttempts
	if cfg.RestartDelay > 0 {
		pcfg.RestartDelay = cfg.RestartDelay
	}
	return process.NewManager(pcfg)
}

// SetLogger sets the logger for the daemon and its process manager.
func (d *Daemon) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	d.logger = logger
	d.manager.SetLogger(logger)
}

// Start launches the daemon.
func (d *Daemon) Start(ctx context.Context) error {
	return d.manager.Start(ctx)
}

// Stop terminates the daemon.
func (d *Daemon) Stop() error {
	return d.manager.Stop()
}

// Reload restarts the daemon so it re-reads the plant roster.
func (d *Daemon) Reload(ctx context.Context) error {
	d.logger.Info("reloading master daemon")
	if err := d.manager.Stop(); err != nil {
		return err
	}
	return d.manager.Start(ctx)
}

// IsRunning reports whether the daemon is up.
func (d *Daemon) IsRunning() bool {
	return d.manager.IsRunning()
}

// Stats returns a snapshot of the daemon process.
func (d *Daemon) Stats() process.Stats {
	return d.manager.Stats()
}
