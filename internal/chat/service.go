// ABOUTME: ChatOrchestrator driving one conversational turn end to end
// ABOUTME: Lock, state claim, run submission, poll/tool loop, rollback and cleanup

package chat

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/pathwise/chat-gateway/internal/assistant"
	"github.com/pathwise/chat-gateway/internal/lock"
	"github.com/pathwise/chat-gateway/internal/store"
	"github.com/pathwise/chat-gateway/internal/tools"
)

// cleanupTimeout bounds the detached context used for cleanup writes.
const cleanupTimeout = 5 * time.Second

// Store defines what the chat service needs from persistence.
type Store interface {
	CreateThread(ctx context.Context, thread *store.Thread) error
	GetActiveThreadForUser(ctx context.Context, userID string) (*store.Thread, error)
	UpdateThreadLastUsed(ctx context.Context, id string, lastUsed time.Time) error
	DeactivateThread(ctx context.Context, id string) error

	SaveMessage(ctx context.Context, msg *store.Message) error
	GetMessage(ctx context.Context, id string) (*store.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	GetThreadMessages(ctx context.Context, threadID string, limit int) ([]*store.Message, error)
	SetMessageFavorite(ctx context.Context, id string, favorite bool, note string) error

	GetConversationState(ctx context.Context, conversationID string) (*store.ConversationState, error)
	SetConversationState(ctx context.Context, conversationID, state string, runID *string) error
}

// ToolDispatcher defines what the chat service needs from tool execution.
type ToolDispatcher interface {
	DispatchAll(ctx context.Context, creds tools.Credentials, calls []assistant.ToolCall) []assistant.ToolOutput
}

// Options holds the chat service's timing and retry configuration.
type Options struct {
	ProcessingStaleness time.Duration // age after which Processing is presumed abandoned
	ThreadExpiration    time.Duration // active-thread reuse window
	RunCreateRetries    int           // attempts for run creation
	RunRetryDelay       time.Duration // delay between run-create attempts and transient poll retries
	RunPollTimeout      time.Duration // wall-clock budget for the poll loop
	RunPollInterval     time.Duration // delay between poll iterations
	LockTimeout         time.Duration // bounded wait for the conversation lock
	WelcomeMessage      string
}

// withDefaults fills in zero-valued options.
func (o Options) withDefaults() Options {
	if o.ProcessingStaleness <= 0 {
		o.ProcessingStaleness = 5 * time.Minute
	}
	if o.ThreadExpiration <= 0 {
		o.ThreadExpiration = 24 * time.Hour
	}
	if o.RunCreateRetries <= 0 {
		o.RunCreateRetries = 3
	}
	if o.RunRetryDelay <= 0 {
		o.RunRetryDelay = 2 * time.Second
	}
	if o.RunPollTimeout <= 0 {
		o.RunPollTimeout = 30 * time.Second
	}
	if o.RunPollInterval <= 0 {
		o.RunPollInterval = time.Second
	}
	if o.LockTimeout <= 0 {
		o.LockTimeout = 2 * time.Second
	}
	if o.WelcomeMessage == "" {
		o.WelcomeMessage = "Hi! I can help you explore job listings and course recommendations. What are you looking for?"
	}
	return o
}

// Service orchestrates chat turns against the assistant backend.
type Service struct {
	store      Store
	gateway    assistant.Gateway
	dispatcher ToolDispatcher
	locks      *lock.KeyedLock
	opts       Options
	logger     *slog.Logger

	// Injected for tests; real clock and sleeper by default.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a chat service.
func New(st Store, gateway assistant.Gateway, dispatcher ToolDispatcher, locks *lock.KeyedLock, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      st,
		gateway:    gateway,
		dispatcher: dispatcher,
		locks:      locks,
		opts:       opts.withDefaults(),
		logger:     logger.With("component", "chat"),
		now:        time.Now,
		sleep:      sleepContext,
	}
}

// sleepContext waits for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TurnResult is the outcome of one successful chat turn.
type TurnResult struct {
	ThreadID string // internal thread id
	Response string // assistant reply text
}

// ChatSession is an active thread with its message history.
type ChatSession struct {
	Thread   *store.Thread
	Messages []*store.Message
}

// ProcessTurn drives one conversational turn: it validates thread ownership,
// takes the per-conversation lock, claims the Processing state, forwards the
// user's text, runs the assistant with tool dispatch, and persists the reply.
//
// Rejections before any side effect surface as INVALID_THREAD,
// CONVERSATION_BUSY or PROCESSING_IN_PROGRESS. Failures after the user
// message was persisted roll the message back (best effort) before
// surfacing. Cleanup always returns the state to Idle and releases the lock;
// cleanup failures are logged, never propagated.
func (s *Service) ProcessTurn(ctx context.Context, userID, threadExternalID, userText string, creds tools.Credentials) (*TurnResult, error) {
	// Ownership check before any side effect, and before the lock.
	thread, err := s.store.GetActiveThreadForUser(ctx, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, NewError(CodeInvalidThread, "no active thread for user")
		}
		return nil, WrapError(CodeProcessingFailed, "looking up active thread", err)
	}
	if thread.ExternalID != threadExternalID {
		return nil, NewError(CodeInvalidThread, "thread does not match the user's active thread")
	}

	if !s.locks.Acquire(ctx, threadExternalID, s.opts.LockTimeout) {
		return nil, NewError(CodeConversationBusy, "conversation lock not acquired in time")
	}
	defer s.locks.Release(threadExternalID)

	if err := s.beginProcessing(ctx, threadExternalID); err != nil {
		return nil, err
	}
	// State was claimed; from here cleanup always returns it to Idle.
	defer s.resetStateToIdle(threadExternalID)

	result, err := s.runTurn(ctx, thread, userText, creds)
	if err != nil {
		s.logger.Error("chat turn failed",
			"thread_id", thread.ID,
			"conversation_id", threadExternalID,
			"code", CodeOf(err),
			"error", err)
		return nil, err
	}
	return result, nil
}

// runTurn executes the mutating sequence of one turn. On any failure after
// the user message is persisted it rolls that message back before returning.
func (s *Service) runTurn(ctx context.Context, thread *store.Thread, userText string, creds tools.Credentials) (*TurnResult, error) {
	conversationID := thread.ExternalID

	// Forward the user's text to the assistant thread first; nothing local
	// to undo yet if this fails.
	if err := s.gateway.AddMessage(ctx, conversationID, userText, store.RoleUser); err != nil {
		return nil, s.classify(err, "forwarding user message")
	}

	userMsg := &store.Message{
		ID:        uuid.New().String(),
		ThreadID:  thread.ID,
		Content:   userText,
		Role:      store.RoleUser,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveMessage(ctx, userMsg); err != nil {
		return nil, WrapError(CodeProcessingFailed, "persisting user message", err)
	}

	if err := s.store.UpdateThreadLastUsed(ctx, thread.ID, s.now()); err != nil {
		s.rollbackUserMessage(userMsg.ID)
		return nil, WrapError(CodeProcessingFailed, "updating thread last-used", err)
	}

	run, err := s.createRunWithRetry(ctx, conversationID)
	if err != nil {
		s.rollbackUserMessage(userMsg.ID)
		return nil, err
	}

	if err := s.recordRun(ctx, conversationID, run.ID); err != nil {
		s.rollbackUserMessage(userMsg.ID)
		return nil, err
	}

	if err := s.pollRun(ctx, conversationID, run.ID, creds); err != nil {
		s.rollbackUserMessage(userMsg.ID)
		return nil, err
	}

	response, err := s.gateway.GetLatestMessage(ctx, conversationID)
	if err != nil {
		s.rollbackUserMessage(userMsg.ID)
		return nil, s.classify(err, "fetching assistant reply")
	}

	assistantMsg := &store.Message{
		ID:        uuid.New().String(),
		ThreadID:  thread.ID,
		Content:   response,
		Role:      store.RoleAssistant,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveMessage(ctx, assistantMsg); err != nil {
		s.rollbackUserMessage(userMsg.ID)
		return nil, WrapError(CodeProcessingFailed, "persisting assistant message", err)
	}

	if err := s.store.SetConversationState(ctx, conversationID, store.StateIdle, nil); err != nil {
		// The reply is already persisted; cleanup will retry the Idle write.
		s.logger.Error("failed to mark conversation idle after completion",
			"conversation_id", conversationID, "error", err)
	}

	s.logger.Debug("chat turn completed",
		"thread_id", thread.ID,
		"conversation_id", conversationID,
		"run_id", run.ID)

	return &TurnResult{ThreadID: thread.ID, Response: response}, nil
}

// createRunWithRetry creates a run with a bounded, fixed-delay retry.
func (s *Service) createRunWithRetry(ctx context.Context, conversationID string) (*assistant.Run, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.RunCreateRetries; attempt++ {
		run, err := s.gateway.CreateRun(ctx, conversationID)
		if err == nil {
			return run, nil
		}
		lastErr = err

		if errors.Is(err, assistant.ErrRateLimited) {
			return nil, WrapError(CodeRateLimit, "assistant rate limited", err)
		}

		s.logger.Warn("run creation failed",
			"conversation_id", conversationID,
			"attempt", attempt,
			"error", err)

		if attempt < s.opts.RunCreateRetries {
			if err := s.sleep(ctx, s.opts.RunRetryDelay); err != nil {
				return nil, WrapError(CodeAssistantCreateFailed, "run creation interrupted", err)
			}
		}
	}
	return nil, WrapError(CodeAssistantCreateFailed, "run creation exhausted retries", lastErr)
}

// pollRun drives the run to a terminal status within a wall-clock budget.
// RequiresAction dispatches the pending tool calls concurrently and submits
// all outputs in one batch. Transient poll errors are logged and retried;
// only the wall clock bounds them.
func (s *Service) pollRun(ctx context.Context, conversationID, runID string, creds tools.Credentials) error {
	deadline := s.now().Add(s.opts.RunPollTimeout)

	for {
		if s.now().After(deadline) {
			return NewError(CodeTimeout, "run did not complete within the poll timeout")
		}

		run, err := s.gateway.GetRun(ctx, conversationID, runID)
		if err != nil {
			s.logger.Warn("run poll failed, retrying",
				"conversation_id", conversationID,
				"run_id", runID,
				"error", err)
			if err := s.sleep(ctx, s.opts.RunRetryDelay); err != nil {
				return s.classify(err, "polling interrupted")
			}
			continue
		}

		switch {
		case run.Status == assistant.StatusRequiresAction:
			outputs := s.dispatcher.DispatchAll(ctx, creds, run.ToolCalls)
			if err := s.gateway.SubmitToolOutputs(ctx, conversationID, runID, outputs); err != nil {
				s.logger.Warn("tool output submission failed, retrying",
					"conversation_id", conversationID,
					"run_id", runID,
					"error", err)
			}
			if err := s.sleep(ctx, s.opts.RunPollInterval); err != nil {
				return s.classify(err, "polling interrupted")
			}

		case run.Status == assistant.StatusCompleted:
			return nil

		case run.Status.Terminal():
			return NewError(CodeRunProcessingFailed, "run ended in status "+string(run.Status))

		default:
			if err := s.sleep(ctx, s.opts.RunPollInterval); err != nil {
				return s.classify(err, "polling interrupted")
			}
		}
	}
}

// rollbackUserMessage is the compensating action for a failed turn: it
// deletes the just-persisted user message so no unanswered message remains.
// Best effort; a rollback failure is logged and never masks the turn error.
func (s *Service) rollbackUserMessage(messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		s.logger.Error("failed to roll back user message",
			"message_id", messageID,
			"error", err)
		return
	}
	s.logger.Debug("rolled back user message", "message_id", messageID)
}

// resetStateToIdle is the turn's cleanup step: return the conversation state
// to Idle regardless of outcome. Runs on a detached context so a cancelled
// request cannot skip it. Failures are logged and swallowed.
func (s *Service) resetStateToIdle(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := s.store.SetConversationState(ctx, conversationID, store.StateIdle, nil); err != nil {
		s.logger.Error("cleanup failed to reset conversation state",
			"conversation_id", conversationID,
			"error", err)
	}
}

// classify maps an unexpected failure onto the caller-visible taxonomy.
func (s *Service) classify(err error, msg string) error {
	var chatErr *Error
	if errors.As(err, &chatErr) {
		return err
	}
	if errors.Is(err, assistant.ErrRateLimited) {
		return WrapError(CodeRateLimit, msg, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return WrapError(CodeNetworkError, msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(CodeTimeout, msg, err)
	}
	return WrapError(CodeProcessingFailed, msg, err)
}

// StartChat returns the user's active chat session, creating a fresh thread
// when none exists or the previous one expired. It only reads conversation
// data, so it never touches the lock or the state store.
func (s *Service) StartChat(ctx context.Context, userID string) (*ChatSession, error) {
	thread, err := s.store.GetActiveThreadForUser(ctx, userID)
	if err != nil && err != store.ErrNotFound {
		return nil, WrapError(CodeProcessingFailed, "looking up active thread", err)
	}

	if err == nil {
		if s.now().Sub(thread.LastUsedAt) <= s.opts.ThreadExpiration {
			messages, err := s.store.GetThreadMessages(ctx, thread.ID, 0)
			if err != nil {
				return nil, WrapError(CodeProcessingFailed, "loading thread history", err)
			}
			return &ChatSession{Thread: thread, Messages: messages}, nil
		}

		s.logger.Info("deactivating expired thread",
			"thread_id", thread.ID,
			"user_id", userID,
			"last_used", thread.LastUsedAt)
		if err := s.store.DeactivateThread(ctx, thread.ID); err != nil {
			return nil, WrapError(CodeProcessingFailed, "deactivating expired thread", err)
		}
	}

	return s.createSession(ctx, userID)
}

// createSession creates a new external thread, persists it, and posts the
// welcome message both remotely and locally.
func (s *Service) createSession(ctx context.Context, userID string) (*ChatSession, error) {
	externalID, err := s.gateway.CreateThread(ctx)
	if err != nil {
		return nil, WrapError(CodeAssistantCreateFailed, "creating assistant thread", err)
	}

	now := s.now()
	thread := &store.Thread{
		ID:         uuid.New().String(),
		UserID:     userID,
		ExternalID: externalID,
		LastUsedAt: now,
		Active:     true,
		CreatedAt:  now,
	}
	if err := s.store.CreateThread(ctx, thread); err != nil {
		if err == store.ErrDuplicateThread {
			// Lost a concurrent start race; adopt the winner's thread. The
			// external thread created above is abandoned.
			return s.adoptActiveSession(ctx, userID)
		}
		return nil, WrapError(CodeProcessingFailed, "persisting thread", err)
	}

	if err := s.gateway.AddMessage(ctx, externalID, s.opts.WelcomeMessage, store.RoleAssistant); err != nil {
		return nil, s.classify(err, "posting welcome message")
	}

	welcome := &store.Message{
		ID:        uuid.New().String(),
		ThreadID:  thread.ID,
		Content:   s.opts.WelcomeMessage,
		Role:      store.RoleAssistant,
		CreatedAt: s.now(),
	}
	if err := s.store.SaveMessage(ctx, welcome); err != nil {
		return nil, WrapError(CodeProcessingFailed, "persisting welcome message", err)
	}

	s.logger.Info("started new chat session",
		"thread_id", thread.ID,
		"user_id", userID,
		"conversation_id", externalID)

	return &ChatSession{Thread: thread, Messages: []*store.Message{welcome}}, nil
}

// adoptActiveSession reloads the user's active thread after a lost create
// race and returns it as the session.
func (s *Service) adoptActiveSession(ctx context.Context, userID string) (*ChatSession, error) {
	thread, err := s.store.GetActiveThreadForUser(ctx, userID)
	if err != nil {
		return nil, WrapError(CodeProcessingFailed, "reloading thread after create race", err)
	}
	messages, err := s.store.GetThreadMessages(ctx, thread.ID, 0)
	if err != nil {
		return nil, WrapError(CodeProcessingFailed, "loading thread history", err)
	}
	s.logger.Info("lost thread create race, adopting existing session",
		"thread_id", thread.ID,
		"user_id", userID)
	return &ChatSession{Thread: thread, Messages: messages}, nil
}

// History returns the caller's active thread messages, newest last.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*store.Message, error) {
	thread, err := s.store.GetActiveThreadForUser(ctx, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, NewError(CodeInvalidThread, "no active thread for user")
		}
		return nil, WrapError(CodeProcessingFailed, "looking up active thread", err)
	}
	return s.store.GetThreadMessages(ctx, thread.ID, limit)
}

// SetFavorite toggles a message's favorite flag after checking the message
// belongs to the caller's active thread.
func (s *Service) SetFavorite(ctx context.Context, userID, messageID string, favorite bool, note string) error {
	thread, err := s.store.GetActiveThreadForUser(ctx, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return NewError(CodeInvalidThread, "no active thread for user")
		}
		return WrapError(CodeProcessingFailed, "looking up active thread", err)
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if err == store.ErrNotFound {
			return NewError(CodeInvalidThread, "message not found")
		}
		return WrapError(CodeProcessingFailed, "looking up message", err)
	}
	if msg.ThreadID != thread.ID {
		return NewError(CodeInvalidThread, "message does not belong to the caller's thread")
	}

	return s.store.SetMessageFavorite(ctx, messageID, favorite, note)
}
