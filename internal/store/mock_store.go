// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	threads  map[string]*Thread            // keyed by thread ID
	messages map[string]*Message           // keyed by message ID
	states   map[string]*ConversationState // keyed by conversation (external) ID

	// Failure injection. SaveMessageErrAt limits SaveMessageErr to the
	// given 1-based call number; zero fails every call.
	SaveMessageErr   error
	SaveMessageErrAt int
	DeleteMessageErr error
	SetStateErr      error

	// Call counters for assertions
	DeleteMessageCalls int
	SaveMessageCalls   int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		threads:  make(map[string]*Thread),
		messages: make(map[string]*Message),
		states:   make(map[string]*ConversationState),
	}
}

// CreateThread stores a new thread.
func (m *MockStore) CreateThread(ctx context.Context, thread *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.threads {
		if t.ExternalID == thread.ExternalID {
			return ErrDuplicateThread
		}
		if thread.Active && t.Active && t.UserID == thread.UserID {
			return ErrDuplicateThread
		}
	}

	t := *thread
	m.threads[t.ID] = &t
	return nil
}

// GetThread retrieves a thread by ID.
func (m *MockStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	thread, ok := m.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	t := *thread
	return &t, nil
}

// GetActiveThreadForUser retrieves the user's active thread.
func (m *MockStore) GetActiveThreadForUser(ctx context.Context, userID string) (*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, thread := range m.threads {
		if thread.UserID == userID && thread.Active {
			t := *thread
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateThreadLastUsed stamps a thread's last-used timestamp.
func (m *MockStore) UpdateThreadLastUsed(ctx context.Context, id string, lastUsed time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	thread, ok := m.threads[id]
	if !ok {
		return ErrNotFound
	}
	thread.LastUsedAt = lastUsed
	return nil
}

// DeactivateThread clears a thread's active flag.
func (m *MockStore) DeactivateThread(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	thread, ok := m.threads[id]
	if !ok {
		return ErrNotFound
	}
	thread.Active = false
	return nil
}

// ListExpiredActiveThreads returns active threads last used before the cutoff.
func (m *MockStore) ListExpiredActiveThreads(ctx context.Context, olderThan time.Time) ([]*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var threads []*Thread
	for _, thread := range m.threads {
		if thread.Active && thread.LastUsedAt.Before(olderThan) {
			t := *thread
			threads = append(threads, &t)
		}
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].LastUsedAt.Before(threads[j].LastUsedAt) })
	return threads, nil
}

// SaveMessage stores a message.
func (m *MockStore) SaveMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveMessageCalls++
	if m.SaveMessageErr != nil && (m.SaveMessageErrAt == 0 || m.SaveMessageCalls == m.SaveMessageErrAt) {
		return m.SaveMessageErr
	}

	msgCopy := *msg
	m.messages[msgCopy.ID] = &msgCopy
	return nil
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	msgCopy := *msg
	return &msgCopy, nil
}

// DeleteMessage removes a message.
func (m *MockStore) DeleteMessage(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DeleteMessageCalls++
	if m.DeleteMessageErr != nil {
		return m.DeleteMessageErr
	}

	if _, ok := m.messages[id]; !ok {
		return ErrNotFound
	}
	delete(m.messages, id)
	return nil
}

// GetThreadMessages retrieves messages for a thread in chronological order.
func (m *MockStore) GetThreadMessages(ctx context.Context, threadID string, limit int) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var messages []*Message
	for _, msg := range m.messages {
		if msg.ThreadID == threadID {
			msgCopy := *msg
			messages = append(messages, &msgCopy)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

// SetMessageFavorite toggles a message's favorite flag and note.
func (m *MockStore) SetMessageFavorite(ctx context.Context, id string, favorite bool, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return ErrNotFound
	}
	msg.Favorite = favorite
	msg.FavoriteNote = note
	return nil
}

// GetConversationState retrieves the state row for a conversation.
func (m *MockStore) GetConversationState(ctx context.Context, conversationID string) (*ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	stCopy := *st
	if st.RunID != nil {
		runID := *st.RunID
		stCopy.RunID = &runID
	}
	return &stCopy, nil
}

// SetConversationState upserts the state row for a conversation.
func (m *MockStore) SetConversationState(ctx context.Context, conversationID, state string, runID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SetStateErr != nil {
		return m.SetStateErr
	}

	st, ok := m.states[conversationID]
	if !ok {
		st = &ConversationState{ConversationID: conversationID}
		m.states[conversationID] = st
	}
	st.State = state
	st.RunID = nil
	if runID != nil {
		r := *runID
		st.RunID = &r
	}
	st.LastOperation = time.Now()
	st.Version++
	return nil
}

// SetConversationStateAt seeds a state row with an explicit last-operation
// timestamp. Test helper for staleness scenarios.
func (m *MockStore) SetConversationStateAt(conversationID, state string, runID *string, lastOperation time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.states[conversationID]
	if !ok {
		st = &ConversationState{ConversationID: conversationID}
		m.states[conversationID] = st
	}
	st.State = state
	st.RunID = runID
	st.LastOperation = lastOperation
	st.Version++
}

// ListStaleProcessingStates returns processing states older than the cutoff.
func (m *MockStore) ListStaleProcessingStates(ctx context.Context, olderThan time.Time) ([]*ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var states []*ConversationState
	for _, st := range m.states {
		if st.State == StateProcessing && st.LastOperation.Before(olderThan) {
			stCopy := *st
			states = append(states, &stCopy)
		}
	}
	sort.Slice(states, func(i, j int) bool { return states[i].LastOperation.Before(states[j].LastOperation) })
	return states, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
