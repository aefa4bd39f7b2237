// Package keylock provides mutual exclusion scoped to a key, with
// context-bounded waits. Callers holding different keys never contend.
package keylock

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Map hands out one exclusive lock per key. Entries are dropped once no
// goroutine holds or waits on them.
type Map[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*entry
}

func New[K comparable]() *Map[K] {
	return &Map[K]{locks: make(map[K]*entry)}
}

// Lock blocks until the lock for key is held or ctx is done. On success the
// returned func releases the lock and must be called exactly once.
func (m *Map[K]) Lock(ctx context.Context, key K) (func(), error) {
	e := m.acquire(key)

	if err := e.sem.Acquire(ctx, 1); err != nil {
		m.release(key, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			m.release(key, e)
		})
	}, nil
}

// Len returns the number of keys currently held or awaited.
func (m *Map[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *Map[K]) acquire(key K) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.locks[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		m.locks[key] = e
	}
	e.refs++
	return e
}

func (m *Map[K]) release(key K, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(m.locks, key)
	}
}
