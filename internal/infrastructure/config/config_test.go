package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
master:
  mode: "docker"
  service: "dnp3-master"
  dispatch_timeout: 10
points:
  deadband:
    energyStorage:
      P_SUM: 7
      Q_SUM: 8
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.Master.Mode != MasterModeDocker {
		t.Errorf("Master.Mode = %q, want %q", cfg.Master.Mode, MasterModeDocker)
	}
	if cfg.GetDispatchTimeout() != 10*time.Second {
		t.Errorf("GetDispatchTimeout() = %v, want 10s", cfg.GetDispatchTimeout())
	}
	// Defaults survive partial YAML.
	if cfg.Master.SenderPath != "/dreams-master/bin/dreams-msg-sender" {
		t.Errorf("Master.SenderPath = %q, want default", cfg.Master.SenderPath)
	}
	if got := cfg.Points.Deadband["energyStorage"]["Q_SUM"]; got != 8 {
		t.Errorf("Points.Deadband[energyStorage][Q_SUM] = %d, want 8", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("site: [unclosed"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected parse error, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "unknown master mode", mutate: func(c *Config) { c.Master.Mode = "ssh" }, wantErr: true},
		{name: "missing sender path", mutate: func(c *Config) { c.Master.SenderPath = "" }, wantErr: true},
		{
			name: "docker mode without service",
			mutate: func(c *Config) {
				c.Master.Mode = MasterModeDocker
				c.Master.Service = ""
			},
			wantErr: true,
		},
		{
			name: "managed daemon without binary",
			mutate: func(c *Config) {
				c.Master.Daemon.Managed = true
				c.Master.Daemon.Binary = ""
			},
			wantErr: true,
		},
		{name: "zero dispatch timeout", mutate: func(c *Config) { c.Master.DispatchTimeout = 0 }, wantErr: true},
		{
			name: "hard limit below timeout",
			mutate: func(c *Config) {
				c.Master.DispatchTimeout = 30
				c.Master.ExecHardLimit = 10
			},
			wantErr: true,
		},
		{name: "zero concurrency", mutate: func(c *Config) { c.Master.MaxConcurrent = 0 }, wantErr: true},
		{
			name:    "roster token without ops listener",
			mutate:  func(c *Config) { c.Master.Daemon.RosterToken = "t" },
			wantErr: true,
		},
		{
			name: "roster token with ops listener",
			mutate: func(c *Config) {
				c.Master.Daemon.RosterToken = "t"
				c.Metrics.Enabled = true
			},
		},
		{name: "negative poll retries", mutate: func(c *Config) { c.Control.PollRetries = -1 }, wantErr: true},
		{
			name: "metrics without listen address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Listen = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("DREAMS_DATABASE_PATH", "/custom/path.db")
	t.Setenv("DREAMS_MQTT_HOST", "mqtt.example.com")
	t.Setenv("DREAMS_MQTT_USERNAME", "testuser")
	t.Setenv("DREAMS_MQTT_PASSWORD", "testpass")
	t.Setenv("DREAMS_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("DREAMS_MASTER_MODE", "docker")
	t.Setenv("DREAMS_MASTER_SERVICE", "dnp3-master-b")
	t.Setenv("DREAMS_MASTER_SENDER_PATH", "/opt/sender")
	t.Setenv("DREAMS_MASTER_DISPATCH_TIMEOUT", "42")
	t.Setenv("DREAMS_MASTER_ROSTER_TOKEN", "roster-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Master.Mode != "docker" {
		t.Errorf("Master.Mode = %q, want docker", cfg.Master.Mode)
	}
	if cfg.Master.Service != "dnp3-master-b" {
		t.Errorf("Master.Service = %q, want dnp3-master-b", cfg.Master.Service)
	}
	if cfg.Master.SenderPath != "/opt/sender" {
		t.Errorf("Master.SenderPath = %q, want /opt/sender", cfg.Master.SenderPath)
	}
	if cfg.Master.DispatchTimeout != 42 {
		t.Errorf("Master.DispatchTimeout = %d, want 42", cfg.Master.DispatchTimeout)
	}
	if cfg.Master.Daemon.RosterToken != "roster-secret" {
		t.Errorf("Master.Daemon.RosterToken = %q, want roster-secret", cfg.Master.Daemon.RosterToken)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Master.Mode != MasterModeExec {
		t.Errorf("defaultConfig Master.Mode = %q, want %q", cfg.Master.Mode, MasterModeExec)
	}
	if cfg.Master.Service != "dnp3-master" {
		t.Errorf("defaultConfig Master.Service = %q, want dnp3-master", cfg.Master.Service)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.GetExecHardLimit() != 120*time.Second {
		t.Errorf("GetExecHardLimit() = %v, want 2m", cfg.GetExecHardLimit())
	}
}
