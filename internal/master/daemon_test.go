package master

import (
	"context"
	"testing"

	"github.com/dreams-grid/dreams-core/internal/process"
)

func TestDaemon_AvailabilityFollowsProcess(t *testing.T) {
	d := NewDaemon(DaemonConfig{
		Binary: "/bin/sleep",
		Args:   []string{"60"},
	})
	locator := NewProcessLocator(d, nil)

	if _, err := locator.Resolve(context.Background()); err == nil {
		t.Fatal("Resolve() succeeded before the daemon started")
	}

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer d.Stop() //nolint:errcheck // test cleanup

	if _, err := locator.Resolve(context.Background()); err != nil {
		t.Fatalf("Resolve() error = %v with daemon running", err)
	}

	firstPID := d.Stats().PID
	if err := d.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if !d.IsRunning() {
		t.Fatal("daemon not running after Reload()")
	}
	if d.Stats().PID == firstPID {
		t.Error("Reload() did not start a new process")
	}

	if err := d.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if d.Stats().Status != process.StatusStopped {
		t.Errorf("Status = %q, want stopped", d.Stats().Status)
	}
}
