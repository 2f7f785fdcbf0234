// ABOUTME: Gateway contract for the external conversational assistant service
// ABOUTME: Defines run statuses, tool call types, and the remote operations

package assistant

import (
	"context"
	"errors"
)

// ErrRateLimited indicates the assistant backend rejected a call for
// exceeding its rate limits. Callers may surface it as a throttling condition.
var ErrRateLimited = errors.New("assistant rate limited")

// Status is the lifecycle status of a run on the assistant backend.
type Status string

// Run statuses as reported by the assistant backend.
const (
	StatusQueued         Status = "queued"
	StatusInProgress     Status = "in_progress"
	StatusRequiresAction Status = "requires_action"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusExpired        Status = "expired"
	StatusCancelling     Status = "cancelling"
	StatusCancelled      Status = "cancelled"
)

// Terminal reports whether the status ends a run. RequiresAction is not
// terminal: the run resumes once tool outputs are submitted.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelling, StatusCancelled:
		return true
	}
	return false
}

// ToolCall is a function invocation requested by the assistant mid-run.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON as supplied by the assistant
}

// ToolOutput is the result of one tool call, submitted back to the run.
type ToolOutput struct {
	ToolCallID string
	Output     string // JSON payload
}

// Run describes one assistant-side execution attempt.
type Run struct {
	ID        string
	Status    Status
	ToolCalls []ToolCall // populated when Status is RequiresAction
}

// Gateway abstracts the external conversational assistant API.
// Implementations are expected to be slow and occasionally unreliable;
// callers own all retry and timeout policy.
type Gateway interface {
	// CreateThread creates a new conversation thread and returns its external id.
	CreateThread(ctx context.Context) (string, error)

	// AddMessage appends a message to an external thread.
	AddMessage(ctx context.Context, threadID, text, role string) error

	// CreateRun starts a new run on the thread.
	CreateRun(ctx context.Context, threadID string) (*Run, error)

	// GetRun fetches the current status of a run, including any pending
	// tool calls when the run requires action.
	GetRun(ctx context.Context, threadID, runID string) (*Run, error)

	// SubmitToolOutputs submits all outputs for a run's pending tool calls
	// in one batch.
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error

	// GetLatestMessage returns the text of the most recent assistant
	// message on the thread.
	GetLatestMessage(ctx context.Context, threadID string) (string, error)
}
