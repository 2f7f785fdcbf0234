// ABOUTME: OpenAI Assistants API implementation of the Gateway interface
// ABOUTME: Maps runs, tool calls and rate-limit errors onto gateway types

package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIGateway implements Gateway against the OpenAI Assistants API.
type OpenAIGateway struct {
	client      *openai.Client
	assistantID string
	logger      *slog.Logger
}

// NewOpenAIGateway creates a gateway bound to one assistant.
// baseURL overrides the API endpoint when non-empty (for proxies and tests).
func NewOpenAIGateway(apiKey, assistantID, baseURL string) *OpenAIGateway {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(cfg),
		assistantID: assistantID,
		logger:      slog.Default().With("component", "assistant"),
	}
}

// CreateThread creates a new assistant thread and returns its id.
func (g *OpenAIGateway) CreateThread(ctx context.Context) (string, error) {
	thread, err := g.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", wrapAPIError("creating thread", err)
	}
	g.logger.Debug("created assistant thread", "thread_id", thread.ID)
	return thread.ID, nil
}

// AddMessage appends a message to the thread.
func (g *OpenAIGateway) AddMessage(ctx context.Context, threadID, text, role string) error {
	_, err := g.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    role,
		Content: text,
	})
	if err != nil {
		return wrapAPIError("adding message", err)
	}
	return nil
}

// CreateRun starts a run on the thread using the configured assistant.
func (g *OpenAIGateway) CreateRun(ctx context.Context, threadID string) (*Run, error) {
	run, err := g.client.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID: g.assistantID,
	})
	if err != nil {
		return nil, wrapAPIError("creating run", err)
	}
	g.logger.Debug("created run", "thread_id", threadID, "run_id", run.ID, "status", run.Status)
	return convertRun(run), nil
}

// GetRun fetches the run's current status and pending tool calls.
func (g *OpenAIGateway) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := g.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, wrapAPIError("retrieving run", err)
	}
	return convertRun(run), nil
}

// SubmitToolOutputs submits the batch of tool outputs for a run.
func (g *OpenAIGateway) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []ToolOutput) error {
	toolOutputs := make([]openai.ToolOutput, 0, len(outputs))
	for _, out := range outputs {
		toolOutputs = append(toolOutputs, openai.ToolOutput{
			ToolCallID: out.ToolCallID,
			Output:     out.Output,
		})
	}
	_, err := g.client.SubmitToolOutputs(ctx, threadID, runID, openai.SubmitToolOutputsRequest{
		ToolOutputs: toolOutputs,
	})
	if err != nil {
		return wrapAPIError("submitting tool outputs", err)
	}
	g.logger.Debug("submitted tool outputs", "thread_id", threadID, "run_id", runID, "count", len(outputs))
	return nil
}

// GetLatestMessage returns the newest assistant message text on the thread.
func (g *OpenAIGateway) GetLatestMessage(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := g.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", wrapAPIError("listing messages", err)
	}
	if len(list.Messages) == 0 {
		return "", fmt.Errorf("thread %s has no messages", threadID)
	}
	for _, content := range list.Messages[0].Content {
		if content.Text != nil {
			return content.Text.Value, nil
		}
	}
	return "", fmt.Errorf("latest message on thread %s has no text content", threadID)
}

// convertRun maps an API run onto the gateway Run type.
func convertRun(run openai.Run) *Run {
	out := &Run{
		ID:     run.ID,
		Status: Status(run.Status),
	}
	if run.RequiredAction != nil && run.RequiredAction.SubmitToolOutputs != nil {
		for _, call := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        call.ID,
				Name:      call.Function.Name,
				Arguments: call.Function.Arguments,
			})
		}
	}
	return out
}

// wrapAPIError normalizes API failures, surfacing 429s as ErrRateLimited.
func wrapAPIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", op, ErrRateLimited)
	}
	return fmt.Errorf("%s: %w", op, err)
}
