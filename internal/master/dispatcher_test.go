package master

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dreams-grid/dreams-core/internal/dnp3"
)

// fakeHandle records invocations and delegates to exec.
type fakeHandle struct {
	mu    sync.Mutex
	calls [][]string
	exec  func(ctx context.Context, argv []string) (Output, error)
}

func (h *fakeHandle) Exec(ctx context.Context, argv []string) (Output, error) {
	h.mu.Lock()
	h.calls = append(h.calls, argv)
	h.mu.Unlock()
	return h.exec(ctx, argv)
}

func (h *fakeHandle) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type fakeLocator struct {
	handle Handle
	err    error
}

func (l fakeLocator) Resolve(context.Context) (Handle, error) {
	return l.handle, l.err
}

func okExec(stdout string) func(context.Context, []string) (Output, error) {
	return func(context.Context, []string) (Output, error) {
		return Output{Stdout: []byte(stdout)}, nil
	}
}

func pollCommand(ip string, addr int) dnp3.Command {
	return dnp3.NewEncoder(dnp3.DefaultPointTables()).EncodePoll(dnp3.Target{IPAddress: ip, Address: addr})
}

func newTestDispatcher(h Handle, cfg Config) *Dispatcher {
	if cfg.SenderPath == "" {
		cfg.SenderPath = "/dreams-master/bin/dreams-msg-sender"
	}
	return NewDispatcher(fakeLocator{handle: h}, cfg)
}

func TestDispatcher_Success(t *testing.T) {
	h := &fakeHandle{exec: okExec("** Manually perform integrity poll\n")}
	d := newTestDispatcher(h, Config{})

	lines, err := d.Dispatch(context.Background(), pollCommand("10.0.0.5", 6))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !slices.Equal(lines, []string{"** Manually perform integrity poll"}) {
		t.Errorf("lines = %q", lines)
	}

	want := []string{"/dreams-master/bin/dreams-msg-sender", "poll", "10.0.0.5", "6"}
	if !slices.Equal(h.calls[0], want) {
		t.Errorf("argv = %q, want %q", h.calls[0], want)
	}
}

func TestDispatcher_ServiceUnavailable(t *testing.T) {
	d := NewDispatcher(fakeLocator{err: errors.New("no such service")}, Config{SenderPath: "/bin/sender"})

	_, err := d.Dispatch(context.Background(), pollCommand("10.0.0.5", 6))
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("Dispatch() error = %v, want ErrServiceUnavailable", err)
	}
}

func TestDispatcher_ProcessError(t *testing.T) {
	h := &fakeHandle{exec: func(context.Context, []string) (Output, error) {
		return Output{Stdout: []byte("partial\n"), Stderr: []byte("gateway 10.0.0.5 unreachable\n"), ExitCode: 2}, nil
	}}
	d := newTestDispatcher(h, Config{})

	_, err := d.Dispatch(context.Background(), pollCommand("10.0.0.5", 6))
	if !errors.Is(err, ErrProcessExecution) {
		t.Fatalf("Dispatch() error = %v, want ErrProcessExecution", err)
	}

	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("error %T is not *ProcessError", err)
	}
	if pe.ExitCode != 2 {
		t.Errorf("ExitCode = %d, want 2", pe.ExitCode)
	}
	if !slices.Equal(pe.Stderr, []string{"gateway 10.0.0.5 unreachable"}) {
		t.Errorf("Stderr = %q", pe.Stderr)
	}
}

func TestDispatcher_StartFailureIsProcessError(t *testing.T) {
	h := &fakeHandle{exec: func(context.Context, []string) (Output, error) {
		return Output{ExitCode: -1}, errors.New("exec format error")
	}}
	d := newTestDispatcher(h, Config{})

	_, err := d.Dispatch(context.Background(), pollCommand("10.0.0.5", 6))
	if !errors.Is(err, ErrProcessExecution) || errors.Is(err, ErrUncertainOutcome) {
		t.Fatalf("Dispatch() error = %v, want only ErrProcessExecution", err)
	}
}

func TestDispatcher_TimeoutIsUncertainAndKeepsDeviceLocked(t *testing.T) {
	release := make(chan struct{})
	h := &fakeHandle{exec: func(context.Context, []string) (Output, error) {
		<-release
		return Output{Stdout: []byte("late\n")}, nil
	}}
	d := newTestDispatcher(h, Config{Timeout: 50 * time.Millisecond, HardLimit: time.Minute})
	cmd := pollCommand("10.0.0.5", 6)

	_, err := d.Dispatch(context.Background(), cmd)
	if !errors.Is(err, ErrUncertainOutcome) {
		t.Fatalf("Dispatch() error = %v, want ErrUncertainOutcome", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error %v does not wrap the deadline", err)
	}

	// The first invocation is still running: the device must stay locked.
	_, err = d.Dispatch(context.Background(), cmd)
	if !errors.Is(err, ErrNotDispatched) {
		t.Fatalf("second Dispatch() error = %v, want ErrNotDispatched", err)
	}
	if n := h.callCount(); n != 1 {
		t.Fatalf("exec calls = %d, want 1", n)
	}

	close(release)

	deadline := time.After(5 * time.Second)
	for {
		lines, err := d.Dispatch(context.Background(), cmd)
		if err == nil {
			if !slices.Equal(lines, []string{"late"}) {
				t.Errorf("lines = %q", lines)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("device never unlocked: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDispatcher_CallerCancellationIsUncertain(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	h := &fakeHandle{exec: func(context.Context, []string) (Output, error) {
		close(started)
		<-release
		return Output{}, nil
	}}
	d := newTestDispatcher(h, Config{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := d.Dispatch(ctx, pollCommand("10.0.0.5", 6))
		errCh <- err
	}()

	<-started
	cancel()

	if err := <-errCh; !errors.Is(err, ErrUncertainOutcome) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Dispatch() error = %v, want uncertain wrapping context.Canceled", err)
	}
}

func TestDispatcher_InvocationNotCancelledByCaller(t *testing.T) {
	sawCancel := make(chan bool, 1)
	h := &fakeHandle{exec: func(ctx context.Context, _ []string) (Output, error) {
		time.Sleep(100 * time.Millisecond)
		sawCancel <- ctx.Err() != nil
		return Output{}, nil
	}}
	d := newTestDispatcher(h, Config{Timeout: 20 * time.Millisecond, HardLimit: time.Minute})

	if _, err := d.Dispatch(context.Background(), pollCommand("10.0.0.5", 6)); !errors.Is(err, ErrUncertainOutcome) {
		t.Fatalf("Dispatch() error = %v, want ErrUncertainOutcome", err)
	}
	if <-sawCancel {
		t.Error("invocation context was cancelled when the caller stopped waiting")
	}
}

func TestDispatcher_HardLimitIsUncertain(t *testing.T) {
	d := newTestDispatcher(nil, Config{})
	h := &fakeHandle{exec: func(ctx context.Context, _ []string) (Output, error) {
		<-ctx.Done()
		return Output{ExitCode: -1}, fmt.Errorf("sender killed: %w", ctx.Err())
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.invoke(ctx, h, []string{"sender"})
	if !errors.Is(res.err, ErrUncertainOutcome) {
		t.Errorf("invoke() error = %v, want ErrUncertainOutcome", res.err)
	}
}

// concurrencyProbe tracks how many invocations overlap.
type concurrencyProbe struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (p *concurrencyProbe) exec(hold time.Duration) func(context.Context, []string) (Output, error) {
	return func(context.Context, []string) (Output, error) {
		n := p.current.Add(1)
		for {
			peak := p.peak.Load()
			if n <= peak || p.peak.CompareAndSwap(peak, n) {
				break
			}
		}
		time.Sleep(hold)
		p.current.Add(-1)
		return Output{}, nil
	}
}

func TestDispatcher_SerialisesPerDevice(t *testing.T) {
	probe := &concurrencyProbe{}
	h := &fakeHandle{exec: probe.exec(10 * time.Millisecond)}
	d := newTestDispatcher(h, Config{Timeout: 10 * time.Second})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := d.Dispatch(context.Background(), pollCommand("10.0.0.5", 6)); err != nil {
				t.Errorf("Dispatch() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := probe.peak.Load(); peak != 1 {
		t.Errorf("peak concurrency on one device = %d, want 1", peak)
	}
	if n := h.callCount(); n != 5 {
		t.Errorf("exec calls = %d, want 5", n)
	}
}

func TestDispatcher_DevicesRunInParallel(t *testing.T) {
	var entered sync.WaitGroup
	entered.Add(2)
	both := make(chan struct{})
	go func() {
		entered.Wait()
		close(both)
	}()

	h := &fakeHandle{exec: func(context.Context, []string) (Output, error) {
		entered.Done()
		select {
		case <-both:
			return Output{}, nil
		case <-time.After(5 * time.Second):
			return Output{}, errors.New("devices did not overlap")
		}
	}}
	d := newTestDispatcher(h, Config{Timeout: 10 * time.Second})

	var wg sync.WaitGroup
	for _, addr := range []int{6, 7} {
		wg.Add(1)
		go func(addr int) {
			defer wg.Done()
			if _, err := d.Dispatch(context.Background(), pollCommand("10.0.0.5", addr)); err != nil {
				t.Errorf("Dispatch(addr %d) error = %v", addr, err)
			}
		}(addr)
	}
	wg.Wait()
}

func TestDispatcher_GlobalCap(t *testing.T) {
	probe := &concurrencyProbe{}
	h := &fakeHandle{exec: probe.exec(10 * time.Millisecond)}
	d := newTestDispatcher(h, Config{Timeout: 10 * time.Second, MaxConcurrent: 2})

	var wg sync.WaitGroup
	for addr := 4; addr < 10; addr++ {
		wg.Add(1)
		go func(addr int) {
			defer wg.Done()
			if _, err := d.Dispatch(context.Background(), pollCommand("10.0.0.5", addr)); err != nil {
				t.Errorf("Dispatch() error = %v", err)
			}
		}(addr)
	}
	wg.Wait()

	if peak := probe.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestDispatcher_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	h := &fakeHandle{exec: okExec("ok\n")}
	d := newTestDispatcher(h, Config{})
	d.SetMetrics(metrics)

	cmd := pollCommand("10.0.0.5", 6)
	for i := 0; i < 3; i++ {
		if _, err := d.Dispatch(context.Background(), cmd); err != nil {
			t.Fatalf("Dispatch() error = %v", err)
		}
	}

	if got := testutil.ToFloat64(metrics.dispatches.WithLabelValues("poll", OutcomeOK)); got != 3 {
		t.Errorf("dispatch_total{poll,ok} = %v, want 3", got)
	}
	if got := testutil.ToFloat64(metrics.inflight); got != 0 {
		t.Errorf("dispatch_inflight = %v, want 0", got)
	}
}
