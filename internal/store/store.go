// ABOUTME: Store interface and data types for chat-gateway persistence
// ABOUTME: Defines Thread, Message, ConversationState and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateThread is returned when trying to create a thread that already exists
var ErrDuplicateThread = errors.New("thread already exists")

// ErrConflict is returned when a conversation state write loses an
// optimistic-concurrency race and should be retried after a reload
var ErrConflict = errors.New("conversation state version conflict")

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation states. An absent row behaves as StateIdle.
const (
	StateIdle       = "idle"
	StateProcessing = "processing"
	StateError      = "error"
)

// Thread represents one ongoing exchange between a user and the assistant.
// ExternalID is the identifier issued by the assistant backend; at most one
// thread per user may be active at a time.
type Thread struct {
	ID         string
	UserID     string
	ExternalID string
	LastUsedAt time.Time
	Active     bool
	CreatedAt  time.Time
}

// Message represents a single turn's utterance within a thread
type Message struct {
	ID           string
	ThreadID     string
	Content      string
	Role         string // "user" or "assistant"
	Favorite     bool
	FavoriteNote string
	CreatedAt    time.Time
}

// ConversationState is the run-control record for one conversation, keyed by
// the thread's external id. Version supports optimistic concurrency on writes.
type ConversationState struct {
	ConversationID string
	State          string // idle, processing, error
	RunID          *string
	LastOperation  time.Time
	Version        int64
}

// Store defines the interface for thread, message and conversation state persistence
type Store interface {
	// Threads
	CreateThread(ctx context.Context, thread *Thread) error
	GetThread(ctx context.Context, id string) (*Thread, error)
	GetActiveThreadForUser(ctx context.Context, userID string) (*Thread, error)
	UpdateThreadLastUsed(ctx context.Context, id string, lastUsed time.Time) error
	DeactivateThread(ctx context.Context, id string) error
	ListExpiredActiveThreads(ctx context.Context, olderThan time.Time) ([]*Thread, error)

	// Messages
	SaveMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	DeleteMessage(ctx context.Context, id string) error
	GetThreadMessages(ctx context.Context, threadID string, limit int) ([]*Message, error)
	SetMessageFavorite(ctx context.Context, id string, favorite bool, note string) error

	// Conversation state
	GetConversationState(ctx context.Context, conversationID string) (*ConversationState, error)
	SetConversationState(ctx context.Context, conversationID, state string, runID *string) error
	ListStaleProcessingStates(ctx context.Context, olderThan time.Time) ([]*ConversationState, error)

	// Close releases any resources held by the store
	Close() error
}
