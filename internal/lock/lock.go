// ABOUTME: Per-key mutual exclusion for conversation turns
// ABOUTME: Map of lazily created semaphores with bounded-wait acquisition

package lock

import (
	"context"
	"sync"
	"time"
)

// KeyedLock provides per-key mutual exclusion with bounded-wait acquisition.
// Exactly one holder per key at a time; a second Acquire on the same key
// blocks until release or timeout. Entries are created lazily and retained
// for the process lifetime. Entries are never reaped; that is a memory
// hygiene concern only, correctness does not depend on cleanup.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// New creates an empty KeyedLock.
func New() *KeyedLock {
	return &KeyedLock{
		locks: make(map[string]chan struct{}),
	}
}

// semaphore returns the semaphore channel for a key, creating it if needed.
func (l *KeyedLock) semaphore(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.locks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.locks[key] = sem
	}
	return sem
}

// Acquire attempts to take the lock for key, waiting up to timeout.
// It returns true if the lock was obtained and false if not. A false result
// means "busy", never an error: the caller holds nothing and must not Release.
// Acquisition also fails when ctx is cancelled before the lock is obtained.
func (l *KeyedLock) Acquire(ctx context.Context, key string, timeout time.Duration) bool {
	sem := l.semaphore(key)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

// Release frees the lock for key. Releasing a key that is not held, or was
// never acquired, is a no-op. It never panics.
func (l *KeyedLock) Release(key string) {
	l.mu.Lock()
	sem, ok := l.locks[key]
	l.mu.Unlock()

	if !ok {
		return
	}

	select {
	case <-sem:
	default:
		// Not held; double release is tolerated.
	}
}

// Len reports the number of keys tracked. Intended for introspection and tests.
func (l *KeyedLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
