package keylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMap_SameKeyIsExclusive(t *testing.T) {
	var m Map
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("gw-1")
			defer unlock()

			n := inside.Add(1)
			for {
				cur := maxInside.Load()
				if n <= cur || maxInside.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if got := maxInside.Load(); got != 1 {
		t.Errorf("max concurrent holders = %d, want 1", got)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d after all released, want 0", m.Len())
	}
}

func TestMap_DifferentKeysDoNotBlock(t *testing.T) {
	var m Map

	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on key b blocked behind key a")
	}
}

func TestMap_LockContextCancelled(t *testing.T) {
	var m Map

	unlock := m.Lock("dev")
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.LockContext(ctx, "dev")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("LockContext() error = %v, want deadline exceeded", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1 (only the holder)", m.Len())
	}
}

func TestMap_UnlockIsIdempotent(t *testing.T) {
	var m Map

	unlock := m.Lock("k")
	unlock()
	unlock()

	// A double unlock must not free a slot someone else holds.
	unlock2 := m.Lock("k")
	acquired := make(chan struct{})
	go func() {
		u := m.Lock("k")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired while first still holds")
	case <-time.After(30 * time.Millisecond):
	}
	unlock2()
	<-acquired
}
