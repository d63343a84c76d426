package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dreams-grid/dreams-core/internal/audit"
	"github.com/dreams-grid/dreams-core/internal/control"
	"github.com/dreams-grid/dreams-core/internal/infrastructure/config"
	"github.com/dreams-grid/dreams-core/internal/plant"
)

// testEnv points one-shot commands at a fresh database and a fake sender
// that echoes its arguments.
func testEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()

	sender := filepath.Join(dir, "sender.sh")
	script := "#!/bin/sh\necho \"sent $*\"\n"
	if err := os.WriteFile(sender, []byte(script), 0o755); err != nil { //nolint:gosec // test script must be executable
		t.Fatalf("writing sender: %v", err)
	}

	t.Setenv("DREAMS_CONFIG", "")
	t.Setenv("DREAMS_DATABASE_PATH", filepath.Join(dir, "dreams.db"))
	t.Setenv("DREAMS_MASTER_SENDER_PATH", sender)
}

// execute runs the CLI with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("dreamscore %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("DREAMS_CONFIG", "")
	if got := getConfigPath(""); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("DREAMS_CONFIG", "/etc/dreams/env.yaml")
	if got := getConfigPath(""); got != "/etc/dreams/env.yaml" {
		t.Errorf("getConfigPath() = %q, want env value", got)
	}
	if got := getConfigPath("/flag.yaml"); got != "/flag.yaml" {
		t.Errorf("getConfigPath(flag) = %q, want /flag.yaml", got)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("DREAMS_CONFIG", "")

	// One-shot commands fall back to defaults when no config exists.
	cfg, err := loadConfig(&globalFlags{}, false)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Master.Mode != config.MasterModeExec {
		t.Errorf("Master.Mode = %q, want exec", cfg.Master.Mode)
	}

	if _, err := loadConfig(&globalFlags{}, true); err == nil {
		t.Error("loadConfig(required) expected error for missing file")
	}
	if _, err := loadConfig(&globalFlags{configPath: "/nonexistent/config.yaml"}, false); err == nil {
		t.Error("loadConfig(explicit path) expected error for missing file")
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, &globalFlags{configPath: "/nonexistent/path/config.yaml"}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
site:
  id: test-site
database:
  path: "` + filepath.Join(dir, "dreams.db") + `"
  busy_timeout: 1
logging:
  level: error
metrics:
  enabled: true
  listen: "127.0.0.1:0"
`
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := run(ctx, &globalFlags{configPath: configPath}); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func TestCLI_RegisterAndOperate(t *testing.T) {
	testEnv(t)

	mustExecute(t, "register", "gateway", "gw-1", "--ip", "10.0.0.5", "--token", "site-1")

	out := mustExecute(t, "register", "plant", "PL1", "--gateway", "gw-1", "--name", "North")
	var first plant.Plant
	if err := json.Unmarshal([]byte(out), &first); err != nil {
		t.Fatalf("decoding plant: %v\n%s", err, out)
	}
	if first.DNP3Address != 4 {
		t.Errorf("first address = %d, want 4", first.DNP3Address)
	}

	out = mustExecute(t, "register", "plant", "PL2", "--gateway", "gw-1", "--name", "South",
		"--category", "energyStorage")
	var second plant.Plant
	if err := json.Unmarshal([]byte(out), &second); err != nil {
		t.Fatalf("decoding plant: %v", err)
	}
	if second.DNP3Address != 5 {
		t.Errorf("second address = %d, want 5", second.DNP3Address)
	}

	out = mustExecute(t, "meters", "PL1", "--token", "site-1")
	var meters []plant.MeterEntry
	if err := json.Unmarshal([]byte(out), &meters); err != nil {
		t.Fatalf("decoding meters: %v", err)
	}
	if len(meters) != 2 || meters[0].PlantNo != "PL1" || meters[1].PlantNo != "PL2" {
		t.Errorf("meters = %+v", meters)
	}

	if _, err := execute(t, "meters", "PL1", "--token", "wrong"); err == nil {
		t.Error("meters with a wrong token expected error")
	}

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"poll", "PL1"}, "sent poll 10.0.0.5 4"},
		{[]string{"control", "PL1", "active_power", "50"}, "sent 1 10.0.0.5 1 50 4"},
		{[]string{"deadband", "PL2", "P_SUM", "0.025"}, "sent 1 10.0.0.5 7 250 5"},
	}
	for _, tt := range tests {
		out := mustExecute(t, tt.args...)
		var res control.Result
		if err := json.Unmarshal([]byte(out), &res); err != nil {
			t.Fatalf("%v: decoding result: %v", tt.args, err)
		}
		if len(res.Output) != 1 || res.Output[0] != tt.want {
			t.Errorf("%v: output = %q, want [%q]", tt.args, res.Output, tt.want)
		}
	}

	if _, err := execute(t, "control", "PL1", "turbo", "50"); err == nil {
		t.Error("control with unknown type expected error")
	}
	if _, err := execute(t, "control", "PL1", "active_power", "lots"); err == nil {
		t.Error("control with non-numeric value expected error")
	}

	out = mustExecute(t, "log", "--plant", "PL1")
	var page audit.ListResult
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("decoding log: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("log total = %d, want 2 (poll and control)", page.Total)
	}
	for _, e := range page.Entries {
		if e.Outcome != "ok" || e.GatewayID != "gw-1" {
			t.Errorf("log entry = %+v", e)
		}
	}
}

func TestCLI_RegisterPlantUnknownGateway(t *testing.T) {
	testEnv(t)

	if _, err := execute(t, "register", "plant", "PL1", "--gateway", "gw-x", "--name", "North"); err == nil {
		t.Error("register on an unknown gateway expected error")
	}
}

func TestCLI_Version(t *testing.T) {
	out := mustExecute(t, "version")
	if !strings.HasPrefix(out, "dreamscore "+version) {
		t.Errorf("version output = %q", out)
	}
}
