package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dreams-grid/dreams-core/internal/api"
	"github.com/dreams-grid/dreams-core/internal/commands"
	"github.com/dreams-grid/dreams-core/internal/control"
	"github.com/dreams-grid/dreams-core/internal/infrastructure/config"
	"github.com/dreams-grid/dreams-core/internal/infrastructure/influxdb"
	"github.com/dreams-grid/dreams-core/internal/infrastructure/logging"
	"github.com/dreams-grid/dreams-core/internal/infrastructure/mqtt"
	"github.com/dreams-grid/dreams-core/internal/master"
)

// startupCheckTimeout bounds the health checks run before serving.
const startupCheckTimeout = 10 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the control core",
		Long: `Run the control core: supervise the master daemon (exec mode), serve
control requests over MQTT and expose health, metrics and the plant roster.
SIGHUP restarts a managed master daemon so it reloads the roster.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}
}

// healthFunc adapts a function to api.HealthChecker.
type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

// run is the serve logic, separated for testability.
func run(ctx context.Context, flags *globalFlags) error {
	log := logging.Default()
	log.Info("starting DREAMS Core", "version", version, "commit", commit, "build_date", date)

	cfg, err := loadConfig(flags, true)
	if err != nil {
		return err
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", getConfigPath(flags.configPath), "master_mode", cfg.Master.Mode)

	checks := map[string]api.HealthChecker{}

	// Master daemon (exec mode, managed)
	var daemon *master.Daemon
	if cfg.Master.Mode == config.MasterModeExec && cfg.Master.Daemon.Managed {
		env, envErr := daemonEnv(cfg)
		if envErr != nil {
			return envErr
		}
		daemon = master.NewDaemon(daemonConfig(cfg, env))
		daemon.SetLogger(log.With("component", "master-daemon"))
		checks["master"] = healthFunc(func(context.Context) error {
			if !daemon.IsRunning() {
				return errors.New("master daemon is not running")
			}
			return nil
		})
	}

	var availability master.Availability
	if daemon != nil {
		availability = daemon
	}
	comp, err := buildComponents(ctx, cfg, log, availability)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := comp.Close(); closeErr != nil {
			log.Error("error closing components", "error", closeErr)
		}
	}()
	checks["database"] = comp.db

	if cfg.Master.Mode == config.MasterModeDocker {
		checks["master"] = healthFunc(func(ctx context.Context) error {
			_, resolveErr := comp.locator.Resolve(ctx)
			return resolveErr
		})
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	comp.dispatcher.SetMetrics(master.NewMetrics(registry))

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		comp.service.AddRecorder(control.NewInfluxRecorder(influxClient))
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT command surface (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() { log.Info("MQTT connected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		checks["mqtt"] = mqttClient

		qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated 0..2
		events := commands.NewEventRecorder(mqttClient, qos)
		events.SetLogger(log.With("component", "events"))
		comp.service.AddRecorder(events)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled, control requests only via CLI")
	}

	// Ops listener. It serves the roster, so it starts before the daemon.
	if cfg.Metrics.Enabled {
		var roster api.RosterSource
		if cfg.Master.Daemon.RosterToken != "" {
			roster = comp.plants
		}
		ops, opsErr := api.New(api.Deps{
			Listen:      cfg.Metrics.Listen,
			Logger:      log.With("component", "api"),
			Version:     version,
			Gatherer:    registry,
			Checks:      checks,
			Roster:      roster,
			RosterToken: cfg.Master.Daemon.RosterToken,
		})
		if opsErr != nil {
			return fmt.Errorf("creating ops server: %w", opsErr)
		}
		if startErr := ops.Start(ctx); startErr != nil {
			return fmt.Errorf("starting ops server: %w", startErr)
		}
		defer func() {
			log.Info("stopping ops server")
			if closeErr := ops.Close(); closeErr != nil {
				log.Error("error stopping ops server", "error", closeErr)
			}
		}()
	}

	if daemon != nil {
		if startErr := daemon.Start(ctx); startErr != nil {
			return fmt.Errorf("starting master daemon: %w", startErr)
		}
		defer func() {
			log.Info("stopping master daemon")
			if stopErr := daemon.Stop(); stopErr != nil {
				log.Error("error stopping master daemon", "error", stopErr)
			}
		}()
		log.Info("master daemon started", "binary", cfg.Master.Daemon.Binary)
	}

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	if mqttClient != nil {
		server := commands.NewServer(mqttClient, comp.service, byte(cfg.MQTT.QoS)) //nolint:gosec // validated 0..2
		server.SetLogger(log.With("component", "commands"))
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting command server: %w", startErr)
		}
		defer func() {
			log.Info("stopping command server")
			if stopErr := server.Stop(); stopErr != nil {
				log.Error("error stopping command server", "error", stopErr)
			}
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reloadOnSignal(gctx, hup, daemon, log)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// reloadOnSignal restarts the daemon on each signal until ctx ends.
func reloadOnSignal(ctx context.Context, sig <-chan os.Signal, daemon *master.Daemon, log *logging.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
			if daemon == nil {
				log.Warn("reload requested but the master daemon is not managed here")
				continue
			}
			if err := daemon.Reload(ctx); err != nil {
				log.Error("reloading master daemon", "error", err)
				continue
			}
			log.Info("master daemon reloaded")
		}
	}
}

// healthCheck probes every component concurrently and returns the first
// failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for name, check := range checks {
		g.Go(func() error {
			if err := check.HealthCheck(gctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
