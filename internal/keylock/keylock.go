// Package keylock provides mutual exclusion scoped to a string key.
//
// It serialises work per gateway (address allocation) and per physical
// device (master dispatch) while letting unrelated keys proceed in parallel.
package keylock

import (
	"context"
	"sync"
)

// Map hands out one lock per key. Entries are reference counted and removed
// once no holder or waiter remains, so the map does not grow with every key
// ever seen.
//
// The zero value is ready to use.
type Map struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	// sem is a one-slot semaphore; a channel lets waiters give up on ctx.
	sem  chan struct{}
	refs int
}

// Lock blocks until the lock for key is held and returns its release func.
func (m *Map) Lock(key string) (unlock func()) {
	unlock, _ = m.LockContext(context.Background(), key)
	return unlock
}

// LockContext is Lock with cancellation. On error the lock is not held.
func (m *Map) LockContext(ctx context.Context, key string) (unlock func(), err error) {
	e := m.acquireEntry(key)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		m.releaseEntry(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			m.releaseEntry(key, e)
		})
	}, nil
}

// Len returns the number of keys currently held or waited on.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Map) acquireEntry(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks == nil {
		m.locks = make(map[string]*entry)
	}
	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *Map) releaseEntry(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
