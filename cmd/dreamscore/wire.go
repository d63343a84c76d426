package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/dreams-grid/dreams-core/internal/audit"
	"github.com/dreams-grid/dreams-core/internal/control"
	"github.com/dreams-grid/dreams-core/internal/dnp3"
	"github.com/dreams-grid/dreams-core/internal/infrastructure/config"
	"github.com/dreams-grid/dreams-core/internal/infrastructure/database"
	"github.com/dreams-grid/dreams-core/internal/infrastructure/logging"
	"github.com/dreams-grid/dreams-core/internal/master"
	"github.com/dreams-grid/dreams-core/internal/plant"
)

// openDatabase opens SQLite and applies pending migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// newEncoder builds the encoder from the configured point tables.
func newEncoder(cfg config.PointsConfig) (*dnp3.Encoder, error) {
	points, err := dnp3.NewPointTables(cfg.Control, cfg.Deadband)
	if err != nil {
		return nil, fmt.Errorf("loading point tables: %w", err)
	}
	return dnp3.NewEncoder(points), nil
}

// locatorHandle is a Locator that may own resources.
type locatorHandle struct {
	master.Locator
	closer io.Closer
}

func (l locatorHandle) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// newLocator picks the master handle for the configured mode. daemon may be
// nil, in which case an exec-mode master is assumed to be running.
func newLocator(cfg config.MasterConfig, daemon master.Availability) (locatorHandle, error) {
	switch cfg.Mode {
	case config.MasterModeDocker:
		l, err := master.NewDockerLocator(cfg.Docker.Host, cfg.Service)
		if err != nil {
			return locatorHandle{}, err
		}
		return locatorHandle{Locator: l, closer: l}, nil
	default:
		return locatorHandle{Locator: master.NewProcessLocator(daemon, cfg.Daemon.Env)}, nil
	}
}

// components are the pieces shared by serve and the one-shot commands.
type components struct {
	db           *database.DB
	plants       *plant.SQLiteRepository
	registration *plant.Registration
	commandLog   *audit.SQLiteRepository
	dispatcher   *master.Dispatcher
	service      *control.Service
	locator      locatorHandle
}

func (c *components) Close() error {
	if err := c.locator.Close(); err != nil {
		c.db.Close() //nolint:errcheck // reporting the first error
		return err
	}
	return c.db.Close()
}

// buildComponents wires the registry, dispatcher and control service.
// Every dispatch is written to the command log.
func buildComponents(ctx context.Context, cfg *config.Config, log *logging.Logger, daemon master.Availability) (*components, error) {
	encoder, err := newEncoder(cfg.Points)
	if err != nil {
		return nil, err
	}

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	locator, err := newLocator(cfg.Master, daemon)
	if err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("creating master locator: %w", err)
	}

	plants := plant.NewSQLiteRepository(db.DB)
	registration := plant.NewRegistration(plant.NewAllocator(plants), plants)
	registration.SetLogger(log.With("component", "registration"))

	dispatcher := master.NewDispatcher(locator, master.Config{
		SenderPath:    cfg.Master.SenderPath,
		Timeout:       cfg.GetDispatchTimeout(),
		HardLimit:     cfg.GetExecHardLimit(),
		MaxConcurrent: cfg.Master.MaxConcurrent,
	})
	dispatcher.SetLogger(log.With("component", "master"))

	commandLog := audit.NewSQLiteRepository(db.DB)
	logRecorder := control.NewLogRecorder(commandLog)
	logRecorder.SetLogger(log)

	service := control.NewService(plants, encoder, dispatcher, control.Config{
		PollRetries: cfg.Control.PollRetries,
	})
	service.SetLogger(log.With("component", "control"))
	service.AddRecorder(logRecorder)

	return &components{
		db:           db,
		plants:       plants,
		registration: registration,
		commandLog:   commandLog,
		dispatcher:   dispatcher,
		service:      service,
		locator:      locator,
	}, nil
}

// daemonEnv points the master daemon at the roster endpoint of the ops
// listener. The daemon reads API_HOST, API_PORT and ADMIN_ACCESS_TOKEN.
func daemonEnv(cfg *config.Config) ([]string, error) {
	env := append([]string(nil), cfg.Master.Daemon.Env...)
	if cfg.Master.Daemon.RosterToken == "" {
		return env, nil
	}

	host, port, err := net.SplitHostPort(cfg.Metrics.Listen)
	if err != nil {
		return nil, fmt.Errorf("metrics.listen %q: %w", cfg.Metrics.Listen, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return append(env,
		"API_HOST="+host,
		"API_PORT="+port,
		"ADMIN_ACCESS_TOKEN="+cfg.Master.Daemon.RosterToken,
	), nil
}

// daemonConfig converts the config section for master.NewDaemon.
func daemonConfig(cfg *config.Config, env []string) master.DaemonConfig {
	d := cfg.Master.Daemon
	return master.DaemonConfig{
		Binary:             d.Binary,
		Args:               d.Args,
		Env:                env,
		RestartOnFailure:   d.RestartOnFailure,
		RestartDelay:       time.Duration(d.RestartDelaySeconds) * time.Second,
		MaxRestartAttempts: d.MaxRestartAttempts,
	}
}
