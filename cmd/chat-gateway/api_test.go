// ABOUTME: Tests for the HTTP surface
// ABOUTME: Verifies wire field names, identity handling, and error status mapping

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/chat-gateway/internal/assistant"
	"github.com/pathwise/chat-gateway/internal/chat"
	"github.com/pathwise/chat-gateway/internal/lock"
	"github.com/pathwise/chat-gateway/internal/store"
	"github.com/pathwise/chat-gateway/internal/tools"
)

// stubGateway satisfies assistant.Gateway with canned responses.
type stubGateway struct{}

func (stubGateway) CreateThread(ctx context.Context) (string, error) { return "ext-stub", nil }
func (stubGateway) AddMessage(ctx context.Context, threadID, text, role string) error {
	return nil
}
func (stubGateway) CreateRun(ctx context.Context, threadID string) (*assistant.Run, error) {
	return &assistant.Run{ID: "run-1", Status: assistant.StatusQueued}, nil
}
func (stubGateway) GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	return &assistant.Run{ID: runID, Status: assistant.StatusCompleted}, nil
}
func (stubGateway) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []assistant.ToolOutput) error {
	return nil
}
func (stubGateway) GetLatestMessage(ctx context.Context, threadID string) (string, error) {
	return "stub reply", nil
}

func newTestAPI(t *testing.T) *api {
	t.Helper()
	dispatcher := tools.NewDispatcher(tools.Config{
		JobListingsURL:           "http://jobs.invalid",
		CourseRecommendationsURL: "http://courses.invalid",
	})
	service := chat.New(store.NewMockStore(), stubGateway{}, dispatcher, lock.New(), chat.Options{}, slog.Default())
	return newAPI(service, slog.Default())
}

func TestHandleStart_WireFields(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/chat/start", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ext-stub", body["thread_id"])
	assert.Contains(t, body, "created_at")

	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	welcome := messages[0].(map[string]any)
	assert.Equal(t, "assistant", welcome["role"])
	assert.NotEmpty(t, welcome["content"])
	assert.Contains(t, welcome, "created_at")
}

func TestHandleStart_MissingIdentity(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/chat/start", nil)
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleMessage_WireFields(t *testing.T) {
	a := newTestAPI(t)

	start := httptest.NewRequest(http.MethodPost, "/chat/start", nil)
	start.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, start)
	require.Equal(t, http.StatusOK, rec.Code)

	msg := httptest.NewRequest(http.MethodPost, "/chat/message",
		strings.NewReader(`{"thread_id":"ext-stub","text":"hello"}`))
	msg.Header.Set("X-User-ID", "user-1")
	rec = httptest.NewRecorder()
	a.routes().ServeHTTP(rec, msg)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ext-stub", body["thread_id"])
	assert.Equal(t, "stub reply", body["response"])
}

func TestHandleMessage_InvalidThreadStatus(t *testing.T) {
	a := newTestAPI(t)

	msg := httptest.NewRequest(http.MethodPost, "/chat/message",
		strings.NewReader(`{"thread_id":"ext-unknown","text":"hello"}`))
	msg.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, msg)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(chat.CodeInvalidThread), body["code"])
}
