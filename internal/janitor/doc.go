// ABOUTME: Package documentation for the janitor package
// ABOUTME: Explains scheduled retention cleanup

// Package janitor runs scheduled retention cleanup.
//
// Each sweep deactivates active threads whose last use exceeds the thread
// expiration window, and flips Processing conversation states older than the
// staleness timeout to Error so the chat service's recovery path is never the
// only thing unwedging abandoned conversations.
package janitor
