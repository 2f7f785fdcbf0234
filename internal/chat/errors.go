// ABOUTME: Caller-visible error taxonomy for the chat service
// ABOUTME: Stable machine-readable codes instead of exception-driven control flow

package chat

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code surfaced to callers.
type Code string

// Error codes for chat turn processing.
const (
	// CodeInvalidThread: the caller's active thread does not match the
	// requested thread. Rejected before any side effect.
	CodeInvalidThread Code = "INVALID_THREAD"

	// CodeConversationBusy: the per-conversation lock could not be acquired
	// in time. The caller may retry; nothing was mutated.
	CodeConversationBusy Code = "CONVERSATION_BUSY"

	// CodeProcessingInProgress: durable state reports another turn active
	// and not stale. Nothing was mutated beyond the state read.
	CodeProcessingInProgress Code = "PROCESSING_IN_PROGRESS"

	// Post-persistence failures. All trigger a best-effort rollback of the
	// user message before surfacing.
	CodeRateLimit             Code = "RATE_LIMIT"
	CodeNetworkError          Code = "NETWORK_ERROR"
	CodeTimeout               Code = "TIMEOUT"
	CodeRunProcessingFailed   Code = "RUN_PROCESSING_FAILED"
	CodeAssistantCreateFailed Code = "ASSISTANT_CREATE_FAILED"
	CodeProcessingFailed      Code = "PROCESSING_FAILED"
)

// Error is a tagged chat failure. The Code is stable for callers; the
// wrapped cause is for logs.
type Error struct {
	Code Code
	msg  string
	err  error
}

// NewError creates an Error with a code and message.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, msg: msg}
}

// WrapError creates an Error with a code around an underlying cause.
func WrapError(code Code, msg string, err error) *Error {
	return &Error{Code: code, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.msg)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.err
}

// CodeOf extracts the Code from an error. Unclassified errors fall back to
// PROCESSING_FAILED; nil has no code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return chatErr.Code
	}
	return CodeProcessingFailed
}
