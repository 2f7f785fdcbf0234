// ABOUTME: Package documentation for the chat package
// ABOUTME: Explains the turn orchestration core and its guarantees

// Package chat orchestrates conversational turns against the assistant
// backend.
//
// ProcessTurn guarantees at most one in-flight turn per conversation through
// two redundant mechanisms: a process-local keyed lock with a bounded wait,
// and a durable Idle/Processing/Error state row keyed by the conversation's
// external id. The lock handles intra-process contention; the state row
// survives restarts, with a staleness rule that reclassifies abandoned
// Processing rows so conversations cannot wedge permanently.
//
// Failures after the user's message has been persisted trigger a
// compensating delete of that message, so no "sent but never answered"
// message remains visible. Every turn ends through the same cleanup path:
// state back to Idle, lock released, cleanup failures logged but never
// allowed to mask the turn's own result.
package chat
