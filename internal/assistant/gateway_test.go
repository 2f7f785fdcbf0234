// ABOUTME: Tests for gateway types
// ABOUTME: Verifies terminal status classification and run conversion

package assistant

import (
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Terminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusExpired, StatusCancelling, StatusCancelled}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "status %s should be terminal", s)
	}

	nonTerminal := []Status{StatusQueued, StatusInProgress, StatusRequiresAction}
	for _, s := range nonTerminal {
		assert.False(t, s.Terminal(), "status %s should not be terminal", s)
	}
}

func TestConvertRun_ToolCalls(t *testing.T) {
	run := openai.Run{
		ID:     "run-1",
		Status: openai.RunStatusRequiresAction,
		RequiredAction: &openai.RunRequiredAction{
			Type: openai.RequiredActionTypeSubmitToolOutputs,
			SubmitToolOutputs: &openai.SubmitToolOutputs{
				ToolCalls: []openai.ToolCall{
					{
						ID:       "call-1",
						Function: openai.FunctionCall{Name: "get_job_listings", Arguments: `{"search":"go"}`},
					},
					{
						ID:       "call-2",
						Function: openai.FunctionCall{Name: "get_course_recommendations", Arguments: `{}`},
					},
				},
			},
		},
	}

	converted := convertRun(run)
	require.Len(t, converted.ToolCalls, 2)
	assert.Equal(t, "run-1", converted.ID)
	assert.Equal(t, StatusRequiresAction, converted.Status)
	assert.Equal(t, "get_job_listings", converted.ToolCalls[0].Name)
	assert.Equal(t, `{"search":"go"}`, converted.ToolCalls[0].Arguments)
	assert.Equal(t, "call-2", converted.ToolCalls[1].ID)
}

func TestConvertRun_NoRequiredAction(t *testing.T) {
	converted := convertRun(openai.Run{ID: "run-1", Status: openai.RunStatusInProgress})
	assert.Empty(t, converted.ToolCalls)
	assert.Equal(t, StatusInProgress, converted.Status)
}
