// ABOUTME: Package documentation for the lock package
// ABOUTME: Explains the keyed mutual-exclusion primitive

// Package lock implements per-key mutual exclusion with bounded waits.
//
// The chat service uses one KeyedLock instance, keyed by conversation id, to
// guarantee at most one in-flight turn per conversation within this process.
// The lock is process-local; the durable conversation state store provides
// the cross-process half of that guarantee.
package lock
