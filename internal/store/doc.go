// ABOUTME: Package documentation for the store package
// ABOUTME: Explains the persistence layer and its implementations

// Package store provides persistence for conversation threads, messages and
// per-conversation run-control state.
//
// Two implementations exist: SQLiteStore, the production store backed by
// modernc.org/sqlite, and MockStore, an in-memory implementation for tests.
//
// Threads keep at most one active row per user (enforced by a partial unique
// index), and conversation state keeps exactly one row per conversation id.
// Conversation state writes use an optimistic-concurrency version column; a
// lost race is retried once internally before surfacing ErrConflict.
package store
