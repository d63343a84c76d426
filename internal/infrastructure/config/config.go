package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the DREAMS control core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Master   MasterConfig   `yaml:"master"`
	Control  ControlConfig  `yaml:"control"`
	Points   PointsConfig   `yaml:"points"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SiteConfig identifies this control core installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Master handle modes.
const (
	MasterModeExec   = "exec"
	MasterModeDocker = "docker"
)

// MasterConfig describes how the external DNP3 master is reached.
type MasterConfig struct {
	// Mode selects the handle: "exec" runs the sender locally next to a
	// supervised master daemon, "docker" execs inside the master's container.
	Mode string `yaml:"mode"`

	// Service is the name of the master service (docker mode: swarm service
	// or compose service name).
	Service string `yaml:"service"`

	// SenderPath is the fixed executable invoked for every command.
	SenderPath string `yaml:"sender_path"`

	// DispatchTimeout bounds how long a caller waits for one invocation
	// before the outcome is reported as uncertain (seconds).
	DispatchTimeout int `yaml:"dispatch_timeout"`

	// ExecHardLimit is the absolute lifetime of one invocation (seconds).
	// The process is only killed after this, never on caller abandonment.
	ExecHardLimit int `yaml:"exec_hard_limit"`

	// MaxConcurrent caps simultaneous invocations across all gateways.
	MaxConcurrent int `yaml:"max_concurrent"`

	Daemon MasterDaemonConfig `yaml:"daemon"`
	Docker MasterDockerConfig `yaml:"docker"`
}

// MasterDaemonConfig contains settings for supervising the long-running
// dreams-master daemon in exec mode.
type MasterDaemonConfig struct {
	// Managed indicates whether the core starts and supervises the daemon.
	// If false, the daemon is expected to run externally and the sender is
	// always considered available.
	Managed bool `yaml:"managed"`

	// Binary is the path to the daemon executable.
	Binary string `yaml:"binary"`

	// Args are extra command-line arguments for the daemon.
	Args []string `yaml:"args"`

	// Env are extra KEY=value entries for the daemon environment.
	Env []string `yaml:"env"`

	// RosterToken authorises the daemon's startup fetch of the plant roster
	// from the ops listener. Empty disables the roster endpoint.
	RosterToken string `yaml:"roster_token"`

	RestartOnFailure    bool `yaml:"restart_on_failure"`
	RestartDelaySeconds int  `yaml:"restart_delay_seconds"`
	MaxRestartAttempts  int  `yaml:"max_restart_attempts"`
}

// MasterDockerConfig contains Docker Engine settings for docker mode.
type MasterDockerConfig struct {
	// Host overrides DOCKER_HOST when set (e.g. unix:///var/run/docker.sock).
	Host string `yaml:"host"`
}

// ControlConfig contains control-operation policy.
type ControlConfig struct {
	// PollRetries is how many times an integrity poll is repeated after an
	// uncertain outcome. Writes are never repeated.
	PollRetries int `yaml:"poll_retries"`
}

// PointsConfig holds the DNP3 point-index tables. Empty tables fall back to
// the built-in defaults.
type PointsConfig struct {
	Control  map[string]int            `yaml:"control"`
	Deadband map[string]map[string]int `yaml:"deadband"`
}

// MetricsConfig contains the ops listener settings (Prometheus + health).
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: DREAMS_SECTION_KEY
// For example: DREAMS_DATABASE_PATH, DREAMS_MASTER_MODE
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. Used by one-shot CLI commands when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "dreams-001",
			Name: "DREAMS",
		},
		Database: DatabaseConfig{
			Path:        "./data/dreams.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "dreams-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Master: MasterConfig{
			Mode:            MasterModeExec,
			Service:         "dnp3-master",
			SenderPath:      "/dreams-master/bin/dreams-msg-sender",
			DispatchTimeout: 15,
			ExecHardLimit:   120,
			MaxConcurrent:   8,
			Daemon: MasterDaemonConfig{
				Binary:              "/dreams-master/bin/dreams-master",
				RestartOnFailure:    true,
				RestartDelaySeconds: 5,
				MaxRestartAttempts:  10,
			},
		},
		Control: ControlConfig{
			PollRetries: 1,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: DREAMS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("DREAMS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("DREAMS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("DREAMS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("DREAMS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("DREAMS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Master
	if v := os.Getenv("DREAMS_MASTER_MODE"); v != "" {
		cfg.Master.Mode = v
	}
	if v := os.Getenv("DREAMS_MASTER_SERVICE"); v != "" {
		cfg.Master.Service = v
	}
	if v := os.Getenv("DREAMS_MASTER_SENDER_PATH"); v != "" {
		cfg.Master.SenderPath = v
	}
	if v := os.Getenv("DREAMS_MASTER_ROSTER_TOKEN"); v != "" {
		cfg.Master.Daemon.RosterToken = v
	}
	if v := os.Getenv("DREAMS_MASTER_DISPATCH_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Master.DispatchTimeout = n
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	switch c.Master.Mode {
	case MasterModeExec, MasterModeDocker:
	default:
		errs = append(errs, fmt.Sprintf("master.mode must be %q or %q", MasterModeExec, MasterModeDocker))
	}
	if c.Master.SenderPath == "" {
		errs = append(errs, "master.sender_path is required")
	}
	if c.Master.Mode == MasterModeDocker && c.Master.Service == "" {
		errs = append(errs, "master.service is required in docker mode")
	}
	if c.Master.Mode == MasterModeExec && c.Master.Daemon.Managed && c.Master.Daemon.Binary == "" {
		errs = append(errs, "master.daemon.binary is required when the daemon is managed")
	}
	if c.Master.DispatchTimeout <= 0 {
		errs = append(errs, "master.dispatch_timeout must be positive")
	}
	if c.Master.ExecHardLimit < c.Master.DispatchTimeout {
		errs = append(errs, "master.exec_hard_limit must not be shorter than master.dispatch_timeout")
	}
	if c.Master.MaxConcurrent < 1 {
		errs = append(errs, "master.max_concurrent must be at least 1")
	}

	if c.Control.PollRetries < 0 {
		errs = append(errs, "control.poll_retries must not be negative")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}
	if c.Master.Daemon.RosterToken != "" && !c.Metrics.Enabled {
		errs = append(errs, "master.daemon.roster_token requires metrics.enabled (the roster is served by the ops listener)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetDispatchTimeout returns the master dispatch timeout as a Duration.
func (c *Config) GetDispatchTimeout() time.Duration {
	return time.Duration(c.Master.DispatchTimeout) * time.Second
}

// GetExecHardLimit returns the absolute invocation lifetime as a Duration.
func (c *Config) GetExecHardLimit() time.Duration {
	return time.Duration(c.Master.ExecHardLimit) * time.Second
}
