// ABOUTME: Tests for the chat turn orchestrator
// ABOUTME: Verifies mutual exclusion, rollback, staleness recovery and tool batching

package chat

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/chat-gateway/internal/assistant"
	"github.com/pathwise/chat-gateway/internal/lock"
	"github.com/pathwise/chat-gateway/internal/store"
	"github.com/pathwise/chat-gateway/internal/tools"
)

// fakeClock is an adjustable clock for deadline tests. Each read ticks it
// forward a little so successive timestamps are strictly ordered.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// mockGateway implements assistant.Gateway for tests.
type mockGateway struct {
	mu sync.Mutex

	createThreadID   string
	createThreadErr  error
	createThreadGate func() // runs before CreateThread proceeds

	addMessageErr   error
	addedMessages   []string
	addMessageCalls int

	createRunErr   error
	createRunFails int // fail this many CreateRun calls before succeeding
	createRunCalls int
	runID          string

	getRunQueue []*assistant.Run // successive GetRun results; last repeats
	getRunErrs  int              // fail this many GetRun calls before serving the queue
	getRunCalls int

	submitted [][]assistant.ToolOutput
	submitErr error

	latestMessage    string
	latestMessageErr error
}

func (g *mockGateway) CreateThread(ctx context.Context) (string, error) {
	if g.createThreadGate != nil {
		g.createThreadGate()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createThreadErr != nil {
		return "", g.createThreadErr
	}
	if g.createThreadID == "" {
		return "ext-thread-new", nil
	}
	return g.createThreadID, nil
}

func (g *mockGateway) AddMessage(ctx context.Context, threadID, text, role string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addMessageCalls++
	if g.addMessageErr != nil {
		return g.addMessageErr
	}
	g.addedMessages = append(g.addedMessages, role+":"+text)
	return nil
}

func (g *mockGateway) CreateRun(ctx context.Context, threadID string) (*assistant.Run, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createRunCalls++
	if g.createRunErr != nil {
		return nil, g.createRunErr
	}
	if g.createRunCalls <= g.createRunFails {
		return nil, errors.New("transient create failure")
	}
	runID := g.runID
	if runID == "" {
		runID = "run-1"
	}
	return &assistant.Run{ID: runID, Status: assistant.StatusQueued}, nil
}

func (g *mockGateway) GetRun(ctx context.Context, threadID, runID string) (*assistant.Run, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getRunCalls++
	if g.getRunCalls <= g.getRunErrs {
		return nil, errors.New("transient poll failure")
	}
	if len(g.getRunQueue) == 0 {
		return &assistant.Run{ID: runID, Status: assistant.StatusCompleted}, nil
	}
	run := g.getRunQueue[0]
	if len(g.getRunQueue) > 1 {
		g.getRunQueue = g.getRunQueue[1:]
	}
	return run, nil
}

func (g *mockGateway) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []assistant.ToolOutput) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.submitErr != nil {
		return g.submitErr
	}
	g.submitted = append(g.submitted, outputs)
	return nil
}

func (g *mockGateway) GetLatestMessage(ctx context.Context, threadID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.latestMessageErr != nil {
		return "", g.latestMessageErr
	}
	if g.latestMessage == "" {
		return "assistant reply", nil
	}
	return g.latestMessage, nil
}

// mockDispatcher implements ToolDispatcher, echoing call ids as outputs.
type mockDispatcher struct {
	mu      sync.Mutex
	batches [][]assistant.ToolCall
}

func (d *mockDispatcher) DispatchAll(ctx context.Context, creds tools.Credentials, calls []assistant.ToolCall) []assistant.ToolOutput {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches = append(d.batches, calls)

	outputs := make([]assistant.ToolOutput, len(calls))
	for i, call := range calls {
		outputs[i] = assistant.ToolOutput{ToolCallID: call.ID, Output: `{"ok":true}`}
	}
	return outputs
}

type testHarness struct {
	svc        *Service
	store      *store.MockStore
	gateway    *mockGateway
	dispatcher *mockDispatcher
	locks      *lock.KeyedLock
	clock      *fakeClock
}

func newHarness(t *testing.T, opts Options) *testHarness {
	t.Helper()

	h := &testHarness{
		store:      store.NewMockStore(),
		gateway:    &mockGateway{},
		dispatcher: &mockDispatcher{},
		locks:      lock.New(),
		clock:      newFakeClock(),
	}
	h.svc = New(h.store, h.gateway, h.dispatcher, h.locks, opts, nil)
	h.svc.now = h.clock.Now
	h.svc.sleep = func(ctx context.Context, d time.Duration) error {
		h.clock.Advance(d)
		return nil
	}
	return h
}

// seedThread creates an active thread for user-1 with external id ext-1.
func (h *testHarness) seedThread(t *testing.T) *store.Thread {
	t.Helper()
	thread := &store.Thread{
		ID:         "thread-1",
		UserID:     "user-1",
		ExternalID: "ext-1",
		LastUsedAt: h.clock.Now(),
		Active:     true,
		CreatedAt:  h.clock.Now(),
	}
	require.NoError(t, h.store.CreateThread(context.Background(), thread))
	return thread
}

func TestProcessTurn_HappyPath(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedThread(t)
	ctx := context.Background()

	result, err := h.svc.ProcessTurn(ctx, "user-1", "ext-1", "find me a job", tools.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "thread-1", result.ThreadID)
	assert.Equal(t, "assistant reply", result.Response)

	// Both messages persisted in order
	messages, err := h.store.GetThreadMessages(ctx, "thread-1", 0)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, "find me a job", messages[0].Content)
	assert.Equal(t, store.RoleAssistant, messages[1].Role)

	// Final state is idle and the lock is free again
	st, err := h.store.GetConversationState(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateIdle, st.State)
	assert.True(t, h.locks.Acquire(ctx, "ext-1", 10*time.Millisecond))
}

func TestProcessTurn_InvalidThread_NoSideEffects(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedThread(t)

	_, err := h.svc.ProcessTurn(context.Background(), "user-1", "ext-other", "hello", tools.Credentials{})
	require.Error(t, err)
	assert.Equal(t, CodeInvalidThread, CodeOf(err))

	// Rejected before the lock and before any call to the assistant
	assert.Equal(t, 0, h.locks.Len())
	assert.Equal(t, 0, h.gateway.addMessageCalls)
	assert.Equal(t, 0, h.store.SaveMessageCalls)
}

func TestProcessTurn_NoActiveThread(t *testing.T) {
	h := newHarness(t, Options{})

	_, err := h.svc.ProcessTurn(context.Background(), "user-1", "ext-1", "hello", tools.Credentials{})
	assert.Equal(t, CodeInvalidThread, CodeOf(err))
}

func TestProcessTurn_ConversationBusy(t *testing.T) {
	h := newHarness(t, Options{LockTimeout: 30 * time.Millisecond})
	h.seedThread(t)
	ctx := context.Background()

	// Another turn holds the lock
	require.True(t, h.locks.Acquire(ctx, "ext-1", time.Second))
	defer h.locks.Release("ext-1")

	_, err := h.svc.ProcessTurn(ctx, "user-1", "ext-1", "hello", tools.Credentials{})
	require.Error(t, err)
	assert.Equal(t, CodeConversationBusy, CodeOf(err))

	// Zero mutations: no messages, no state row
	assert.Equal(t, 0, h.store.SaveMessageCalls)
	_, stErr := h.store.GetConversationState(ctx, "ext-1")
	assert.Equal(t, store.ErrNotFound, stErr)
}

func TestProcessTurn_MutualExclusion_OneWinner(t *testing.T) {
	h := newHarness(t, Options{LockTimeout: 50 * time.Millisecond})
	h.seedThread(t)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.ProcessTurn(context.Background(), "user-1", "ext-1", "hello", tools.Credentials{})
			results[i] = err
		}(i)
	}
	wg.Wait()

	var busy, succeeded int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case CodeOf(err) == CodeConversationBusy || CodeOf(err) == CodeProcessingInProgress:
			busy++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	// At least one turn must win; the loser, if it overlapped, was rejected.
	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Equal(t, 2, succeeded+busy)
}

func TestProcessTurn_ProcessingInProgress(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedThread(t)
	ctx := context.Background()

	// Fresh processing state from another process
	h.store.SetConversationStateAt("ext-1", store.StateProcessing, nil, h.clock.Now().Add(-time.Minute))

	_, err := h.svc.ProcessTurn(ctx, "user-1", "ext-1", "hello", tools.Credentials{})
	require.Error(t, err)
	assert.Equal(t, CodeProcessingInProgress, CodeOf(err))
	assert.Equal(t, 0, h.store.SaveMessageCalls)

	// The lock was released on the way out
	assert.True(t, h.locks.Acquire(ctx, "ext-1", 10*time.Millisecond))
}

func TestProcessTurn_StaleProcessingRecovered(t *testing.T) {
	h := newHarness(t, Options{ProcessingStaleness: 5 * time.Minute})
	h.seedThread(t)
	ctx := context.Background()

	// Processing entry older than the staleness timeout: presumed abandoned
	h.store.SetConversationStateAt("ext-1", store.StateProcessing, nil, h.clock.Now().Add(-10*time.Minute))

	result, err := h.svc.ProcessTurn(ctx, "user-1", "ext-1", "hello", tools.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "assistant reply", result.Response)

	st, err := h.store.GetConversationState(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateIdle, st.State)
}

func TestProcessTurn_RunCreateFailure_RollsBackUserMessage(t *testing.T) {
	h := newHarness(t, Options{RunCreateRetries: 3})
	h.seedThread(t)
	ctx := context.Background()

	h.gateway.createRunErr = errors.New("assistant is down")

	_, err := h.svc.ProcessTurn(ctx, "user-1", "ext-1", "hello", tools.Credentials{})
	require.Error(t, err)
	assert.Equal(t, CodeAssistantCreateFailed, CodeOf(err))

	// All attempts were consumed
	assert.Equal(t, 3, h.gateway.createRunCalls)

	// The persisted user message was rolled back exactly once
	assert.Equal(t, 1, h.store.DeleteMessageCalls)
	messages, err := h.store.GetThreadMessages(ctx, "thread-1", 0)
	require.NoError(t, err)
	assert.Empty(t, messages)

	// Cleanup left the state idle and the lock free
	st, err := h.store.GetConversationState(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateIdle, st.State)
	assert.True(t, h.locks.Acquire(ctx, "ext-1", 10*time.Millisecond))
}

func TestProcessTurn_RunCreateRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t, Options{RunCreateRetries: 3})
	h.seedThread(t)

	h.gateway.createRunFails = 2

	result, err := h.svc.ProcessTurn(context.Background(), "user-1", "ext-1", "hello", tools.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "assistant reply", result.Response)
	assert.Equal(t, 3, h.gateway.createRunCalls)
}

func TestProcessTurn_RateLimit(t *testing.T) {
	h := newHarness(t, Options{RunCreateRetries: 3})
	h.seedThread(t)

	h.gateway.createRunErr = assistant.ErrRateLimited

	_, err := h.svc.ProcessTurn(context.Background(), "user-1", "ext-1", "hello", tools.Credentials{})
	require.Error(t, err)
	assert.Equal(t, CodeRateLimit, CodeOf(err))

	// Rate limiting is not retried
	assert.Equal(t, 1, h.gateway.createRunCalls)
	assert.Equal(t, 1, h.store.DeleteMessageCalls)
}

func TestProcessTurn_RunFailedStatus(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedThread(t)
	ctx := context.Background()

	h.gateway.getRunQueue = []*assistant.Run{{ID: "run-1", Status: assistant.StatusFailed}}

	_, err := h.svc.ProcessTurn(ctx, "user-1", "ext-1", "hello", tools.Credentials{})
	require.Error(t, err)
	assert.Equal(t, CodeRunProcessingFailed, CodeOf(err))
	assert.Equal(t, 1, h.store.DeleteMessageCalls)

	st, err := h.store.GetConversationState(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateIdle, st.State)
}

func TestProcessTurn_PollTimeout(t *testing.T) {
	h := newHarness(t, Options{RunPollTimeout: 30 * time.Second, RunPollInterval: time.Second})
	h.seedThread(t)
	ctx := context.Background()

	// The run never leaves InProgress; the fake clock advances on each sleep
	h.gateway.getRunQueue = []*assistant.Run{{ID: "run-1", Status: assistant.StatusInProgress}}

	_, err := h.svc.ProcessTurn(ctx, "user-1", "ext-1", "hello", tools.Credentials{})
	require.Error(t, err)
	assert.Equal(t, CodeTimeout, CodeOf(err))

	// User message deleted, state idle
	assert.Equal(t, 1, h.store.DeleteMessageCalls)
	messages, err := h.store.GetThreadMessages(ctx, "thread-1", 0)
	require.NoError(t, err)
	assert.Empty(t, messages)

	st, err := h.store.GetConversationState(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateIdle, st.State)
}

func TestProcessTurn_TransientPollErrorsAreRetried(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedThread(t)

	// The first two polls fail, then the gateway recovers
	h.gateway.getRunErrs = 2
	h.gateway.getRunQueue = []*assistant.Run{
		{ID: "run-1", Status: assistant.StatusCompleted},
	}

	result, err := h.svc.ProcessTurn(context.Background(), "user-1", "ext-1", "hello", tools.Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "assistant reply", result.Response)
	assert.Equal(t, 3, h.gateway.getRunCalls)
}

func TestProcessTurn_ToolBatch(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedThread(t)

	toolCalls := []assistant.ToolCall{
		{ID: "call-1", Name: "get_job_listings", Arguments: `{"search":"go"}`},
		{ID: "call-2", Name: "get_course_recommendations", Arguments: `{"topic":"go"}`},
	}
	h.gateway.getRunQueue = []*assistant.Run{
		{ID: "run-1", Status: assistant.StatusRequiresAction, ToolCalls: toolCalls},
		{ID: "run-1", Status: assistant.StatusCompleted},
	}

	result, err := h.svc.ProcessTurn(context.Background(), "user-1", "ext-1", "hello", tools.Credentials{BearerToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "assistant reply", result.Response)

	// One dispatch batch with both calls, one batched submission
	require.Len(t, h.dispatcher.batches, 1)
	assert.Len(t, h.dispatcher.batches[0], 2)
	require.Len(t, h.gateway.submitted, 1)
	require.Len(t, h.gateway.submitted[0], 2)
	assert.Equal(t, "call-1", h.gateway.submitted[0][0].ToolCallID)
	assert.Equal(t, "call-2", h.gateway.submitted[0][1].ToolCallID)
}

func TestProcessTurn_RollbackFailureDoesNotMaskError(t *testing.T) {
	h := newHarness(t, Options{RunCreateRetries: 1})
	h.seedThread(t)

	h.gateway.createRunErr = errors.New("assistant is down")
	h.store.DeleteMessageErr = errors.New("delete failed too")

	_, err := h.svc.ProcessTurn(context.Background(), "user-1", "ext-1", "hello", tools.Credentials{})
	require.Error(t, err)

	// The original classification survives the failed rollback
	assert.Equal(t, CodeAssistantCreateFailed, CodeOf(err))
	assert.Equal(t, 1, h.store.DeleteMessageCalls)
}

func TestProcessTurn_GatewayAddMessageFailure_NothingToRollBack(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedThread(t)

	h.gateway.addMessageErr = errors.New("remote append failed")

	_, err := h.svc.ProcessTurn(context.Background(), "user-1", "ext-1", "hello", tools.Credentials{})
	require.Error(t, err)
	assert.Equal(t, CodeProcessingFailed, CodeOf(err))

	// The user message was never persisted, so nothing was deleted
	assert.Equal(t, 0, h.store.DeleteMessageCalls)
}

func TestProcessTurn_GetLatestMessageFailure_RollsBackUserMessage(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedThread(t)
	ctx := context.Background()

	h.gateway.latestMessageErr = errors.New("list messages failed")

	_, err := h.svc.ProcessTurn(ctx, "user-1", "ext-1", "hello", tools.Credentials{})
	require.Error(t, err)
	assert.Equal(t, CodeProcessingFailed, CodeOf(err))

	assert.Equal(t, 1, h.store.DeleteMessageCalls)
	messages, err := h.store.GetThreadMessages(ctx, "thread-1", 0)
	require.NoError(t, err)
	assert.Empty(t, messages)

	st, err := h.store.GetConversationState(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateIdle, st.State)
}

func TestProcessTurn_AssistantSaveFailure_RollsBackUserMessage(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedThread(t)
	ctx := context.Background()

	// The user message persists; saving the assistant reply fails
	h.store.SaveMessageErr = errors.New("disk full")
	h.store.SaveMessageErrAt = 2

	_, err := h.svc.ProcessTurn(ctx, "user-1", "ext-1", "hello", tools.Credentials{})
	require.Error(t, err)
	assert.Equal(t, CodeProcessingFailed, CodeOf(err))

	assert.Equal(t, 2, h.store.SaveMessageCalls)
	assert.Equal(t, 1, h.store.DeleteMessageCalls)
	messages, err := h.store.GetThreadMessages(ctx, "thread-1", 0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestProcessTurn_NetworkErrorClassified(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedThread(t)

	h.gateway.addMessageErr = &net.OpError{Op: "dial", Err: errors.New("connection refused")}

	_, err := h.svc.ProcessTurn(context.Background(), "user-1", "ext-1", "hello", tools.Credentials{})
	require.Error(t, err)
	assert.Equal(t, CodeNetworkError, CodeOf(err))

	// Failed before the user message persisted
	assert.Equal(t, 0, h.store.DeleteMessageCalls)
}

func TestCleanup_Idempotent(t *testing.T) {
	h := newHarness(t, Options{})
	h.seedThread(t)
	ctx := context.Background()

	require.NoError(t, h.store.SetConversationState(ctx, "ext-1", store.StateProcessing, nil))

	assert.NotPanics(t, func() {
		h.svc.resetStateToIdle("ext-1")
		h.svc.resetStateToIdle("ext-1")
		h.locks.Release("ext-1")
		h.locks.Release("ext-1")
	})

	st, err := h.store.GetConversationState(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, store.StateIdle, st.State)
}

func TestStartChat_CreatesThreadAndWelcome(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	session, err := h.svc.StartChat(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, session.Thread)
	assert.Equal(t, "user-1", session.Thread.UserID)
	assert.Equal(t, "ext-thread-new", session.Thread.ExternalID)
	assert.True(t, session.Thread.Active)

	// Exactly one assistant-role welcome message
	require.Len(t, session.Messages, 1)
	assert.Equal(t, store.RoleAssistant, session.Messages[0].Role)
	assert.NotEmpty(t, session.Messages[0].Content)

	// Never touches the lock
	assert.Equal(t, 0, h.locks.Len())
}

func TestStartChat_ReusesFreshThread(t *testing.T) {
	h := newHarness(t, Options{ThreadExpiration: 24 * time.Hour})
	thread := h.seedThread(t)
	ctx := context.Background()

	require.NoError(t, h.store.SaveMessage(ctx, &store.Message{
		ID: "msg-1", ThreadID: thread.ID, Content: "hi", Role: store.RoleUser, CreatedAt: h.clock.Now(),
	}))

	session, err := h.svc.StartChat(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, thread.ID, session.Thread.ID)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, "hi", session.Messages[0].Content)

	// No new external thread was created
	assert.Equal(t, 0, h.gateway.addMessageCalls)
}

func TestStartChat_ConcurrentStartsShareOneThread(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	// Hold both starters past the active-thread lookup so each believes it
	// must create the thread. The store's uniqueness constraint picks the
	// winner; the loser must adopt the winner's session instead of erroring.
	var gate sync.WaitGroup
	gate.Add(2)
	h.gateway.createThreadGate = func() {
		gate.Done()
		gate.Wait()
	}

	sessions := make([]*ChatSession, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i], errs[i] = h.svc.StartChat(ctx, "user-1")
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, sessions[0].Thread.ID, sessions[1].Thread.ID)

	// Exactly one active thread exists for the user
	thread, err := h.store.GetActiveThreadForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, sessions[0].Thread.ID, thread.ID)
}

func TestStartChat_ExpiredThreadIsReplaced(t *testing.T) {
	h := newHarness(t, Options{ThreadExpiration: 24 * time.Hour})
	old := h.seedThread(t)
	ctx := context.Background()

	// Age the thread past expiration
	require.NoError(t, h.store.UpdateThreadLastUsed(ctx, old.ID, h.clock.Now().Add(-48*time.Hour)))

	session, err := h.svc.StartChat(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, session.Thread.ID)
	assert.True(t, session.Thread.Active)

	// The old thread was deactivated, not deleted
	oldThread, err := h.store.GetThread(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, oldThread.Active)
}

func TestHistory(t *testing.T) {
	h := newHarness(t, Options{})
	thread := h.seedThread(t)
	ctx := context.Background()

	require.NoError(t, h.store.SaveMessage(ctx, &store.Message{
		ID: "msg-1", ThreadID: thread.ID, Content: "hi", Role: store.RoleUser, CreatedAt: h.clock.Now(),
	}))

	messages, err := h.svc.History(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	_, err = h.svc.History(ctx, "user-2", 10)
	assert.Equal(t, CodeInvalidThread, CodeOf(err))
}

func TestSetFavorite_OwnershipChecked(t *testing.T) {
	h := newHarness(t, Options{})
	thread := h.seedThread(t)
	ctx := context.Background()

	require.NoError(t, h.store.SaveMessage(ctx, &store.Message{
		ID: "msg-1", ThreadID: thread.ID, Content: "hi", Role: store.RoleUser, CreatedAt: h.clock.Now(),
	}))
	require.NoError(t, h.store.SaveMessage(ctx, &store.Message{
		ID: "msg-other", ThreadID: "someone-elses-thread", Content: "x", Role: store.RoleUser, CreatedAt: h.clock.Now(),
	}))

	require.NoError(t, h.svc.SetFavorite(ctx, "user-1", "msg-1", true, "useful"))
	msg, err := h.store.GetMessage(ctx, "msg-1")
	require.NoError(t, err)
	assert.True(t, msg.Favorite)
	assert.Equal(t, "useful", msg.FavoriteNote)

	err = h.svc.SetFavorite(ctx, "user-1", "msg-other", true, "")
	assert.Equal(t, CodeInvalidThread, CodeOf(err))
}
