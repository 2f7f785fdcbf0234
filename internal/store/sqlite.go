// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides thread/message/state persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeFormat is RFC3339 with a fixed-width nanosecond fraction. The fixed
// width keeps lexicographic comparison of stored strings consistent with
// chronological order, and sub-second precision keeps a turn's user and
// assistant messages ordered even when written within the same second.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			external_id TEXT NOT NULL UNIQUE,
			last_used_at DATETIME NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_threads_active_user
			ON threads(user_id) WHERE active = 1;

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			content TEXT NOT NULL,
			role TEXT NOT NULL,
			favorite INTEGER NOT NULL DEFAULT 0,
			favorite_note TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			FOREIGN KEY (thread_id) REFERENCES threads(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_thread_created
			ON messages(thread_id, created_at);

		CREATE TABLE IF NOT EXISTS conversation_states (
			conversation_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			run_id TEXT,
			last_operation DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// CreateThread creates a new thread in the database.
// Returns ErrDuplicateThread if the external id is already taken or the user
// already has an active thread.
func (s *SQLiteStore) CreateThread(ctx context.Context, thread *Thread) error {
	query := `
		INSERT INTO threads (id, user_id, external_id, last_used_at, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		thread.ID,
		thread.UserID,
		thread.ExternalID,
		thread.LastUsedAt.UTC().Format(timeFormat),
		boolToInt(thread.Active),
		thread.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateThread
		}
		return fmt.Errorf("inserting thread: %w", err)
	}

	s.logger.Debug("created thread", "id", thread.ID, "user_id", thread.UserID)
	return nil
}

// GetThread retrieves a thread by ID.
// Returns ErrNotFound if the thread doesn't exist.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	query := `
		SELECT id, user_id, external_id, last_used_at, active, created_at
		FROM threads
		WHERE id = ?
	`
	return s.scanThread(s.db.QueryRowContext(ctx, query, id))
}

// GetActiveThreadForUser retrieves the user's single active thread.
// Returns ErrNotFound if the user has no active thread.
func (s *SQLiteStore) GetActiveThreadForUser(ctx context.Context, userID string) (*Thread, error) {
	query := `
		SELECT id, user_id, external_id, last_used_at, active, created_at
		FROM threads
		WHERE user_id = ? AND active = 1
	`
	return s.scanThread(s.db.QueryRowContext(ctx, query, userID))
}

func (s *SQLiteStore) scanThread(row *sql.Row) (*Thread, error) {
	var thread Thread
	var lastUsedStr, createdAtStr string
	var active int

	err := row.Scan(
		&thread.ID,
		&thread.UserID,
		&thread.ExternalID,
		&lastUsedStr,
		&active,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}

	thread.Active = active != 0

	thread.LastUsedAt, err = time.Parse(time.RFC3339Nano, lastUsedStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_used_at: %w", err)
	}

	thread.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &thread, nil
}

// UpdateThreadLastUsed stamps a thread's last-used timestamp.
// Returns ErrNotFound if the thread doesn't exist.
func (s *SQLiteStore) UpdateThreadLastUsed(ctx context.Context, id string, lastUsed time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE threads SET last_used_at = ? WHERE id = ?`,
		lastUsed.UTC().Format(timeFormat), id,
	)
	if err != nil {
		return fmt.Errorf("updating thread last_used_at: %w", err)
	}
	return s.requireRows(result)
}

// DeactivateThread clears a thread's active flag. Threads are never hard-deleted.
// Returns ErrNotFound if the thread doesn't exist.
func (s *SQLiteStore) DeactivateThread(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE threads SET active = 0 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("deactivating thread: %w", err)
	}
	if err := s.requireRows(result); err != nil {
		return err
	}
	s.logger.Debug("deactivated thread", "id", id)
	return nil
}

// ListExpiredActiveThreads returns active threads whose last-used timestamp
// is older than the given cutoff.
func (s *SQLiteStore) ListExpiredActiveThreads(ctx context.Context, olderThan time.Time) ([]*Thread, error) {
	query := `
		SELECT id, user_id, external_id, last_used_at, active, created_at
		FROM threads
		WHERE active = 1 AND last_used_at < ?
		ORDER BY last_used_at
	`
	rows, err := s.db.QueryContext(ctx, query, olderThan.UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("querying expired threads: %w", err)
	}
	defer rows.Close()

	var threads []*Thread
	for rows.Next() {
		var thread Thread
		var lastUsedStr, createdAtStr string
		var active int
		if err := rows.Scan(&thread.ID, &thread.UserID, &thread.ExternalID, &lastUsedStr, &active, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning thread: %w", err)
		}
		thread.Active = active != 0
		if thread.LastUsedAt, err = time.Parse(time.RFC3339Nano, lastUsedStr); err != nil {
			return nil, fmt.Errorf("parsing last_used_at: %w", err)
		}
		if thread.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		threads = append(threads, &thread)
	}
	return threads, rows.Err()
}

// SaveMessage persists a message
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	query := `
		INSERT INTO messages (id, thread_id, content, role, favorite, favorite_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		msg.ID,
		msg.ThreadID,
		msg.Content,
		msg.Role,
		boolToInt(msg.Favorite),
		msg.FavoriteNote,
		msg.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	s.logger.Debug("saved message", "id", msg.ID, "thread_id", msg.ThreadID, "role", msg.Role)
	return nil
}

// GetMessage retrieves a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	query := `
		SELECT id, thread_id, content, role, favorite, favorite_note, created_at
		FROM messages
		WHERE id = ?
	`
	var msg Message
	var createdAtStr string
	var favorite int

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID, &msg.ThreadID, &msg.Content, &msg.Role, &favorite, &msg.FavoriteNote, &createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	msg.Favorite = favorite != 0
	if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &msg, nil
}

// DeleteMessage removes a message by ID.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	if err := s.requireRows(result); err != nil {
		return err
	}
	s.logger.Debug("deleted message", "id", id)
	return nil
}

// GetThreadMessages retrieves messages for a thread in chronological order.
// If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) GetThreadMessages(ctx context.Context, threadID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	query := `
		SELECT id, thread_id, content, role, favorite, favorite_note, created_at
		FROM messages
		WHERE thread_id = ?
		ORDER BY created_at, id
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var createdAtStr string
		var favorite int
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Content, &msg.Role, &favorite, &msg.FavoriteNote, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Favorite = favorite != 0
		if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// SetMessageFavorite toggles a message's favorite flag and note.
// Returns ErrNotFound if the message doesn't exist.
func (s *SQLiteStore) SetMessageFavorite(ctx context.Context, id string, favorite bool, note string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET favorite = ?, favorite_note = ? WHERE id = ?`,
		boolToInt(favorite), note, id,
	)
	if err != nil {
		return fmt.Errorf("updating message favorite: %w", err)
	}
	return s.requireRows(result)
}

// GetConversationState retrieves the run-control state for a conversation.
// Returns ErrNotFound if no state row exists yet.
func (s *SQLiteStore) GetConversationState(ctx context.Context, conversationID string) (*ConversationState, error) {
	query := `
		SELECT conversation_id, state, run_id, last_operation, version
		FROM conversation_states
		WHERE conversation_id = ?
	`
	var st ConversationState
	var runID sql.NullString
	var lastOpStr string

	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(
		&st.ConversationID, &st.State, &runID, &lastOpStr, &st.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation state: %w", err)
	}
	if runID.Valid {
		st.RunID = &runID.String
	}
	if st.LastOperation, err = time.Parse(time.RFC3339Nano, lastOpStr); err != nil {
		return nil, fmt.Errorf("parsing last_operation: %w", err)
	}
	return &st, nil
}

// SetConversationState upserts the run-control state for a conversation and
// re-stamps its last-operation timestamp. Concurrent writers are serialized
// by an optimistic version check; a lost race is retried once by reloading
// the current version and reapplying.
func (s *SQLiteStore) SetConversationState(ctx context.Context, conversationID, state string, runID *string) error {
	if err := s.setStateOnce(ctx, conversationID, state, runID); err != nil {
		if err != ErrConflict {
			return err
		}
		s.logger.Debug("conversation state write conflict, retrying",
			"conversation_id", conversationID, "state", state)
		return s.setStateOnce(ctx, conversationID, state, runID)
	}
	return nil
}

func (s *SQLiteStore) setStateOnce(ctx context.Context, conversationID, state string, runID *string) error {
	now := time.Now().UTC().Format(timeFormat)

	current, err := s.GetConversationState(ctx, conversationID)
	if err == ErrNotFound {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO conversation_states (conversation_id, state, run_id, last_operation, version)
			 VALUES (?, ?, ?, ?, 1)`,
			conversationID, state, nullable(runID), now,
		)
		if err != nil {
			if isConstraintViolation(err) {
				// Lost the insert race; report conflict so the caller retries
				// with an update against the row that now exists.
				return ErrConflict
			}
			return fmt.Errorf("inserting conversation state: %w", err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE conversation_states
		 SET state = ?, run_id = ?, last_operation = ?, version = version + 1
		 WHERE conversation_id = ? AND version = ?`,
		state, nullable(runID), now, conversationID, current.Version,
	)
	if err != nil {
		return fmt.Errorf("updating conversation state: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// ListStaleProcessingStates returns processing states whose last operation
// is older than the given cutoff.
func (s *SQLiteStore) ListStaleProcessingStates(ctx context.Context, olderThan time.Time) ([]*ConversationState, error) {
	query := `
		SELECT conversation_id, state, run_id, last_operation, version
		FROM conversation_states
		WHERE state = ? AND last_operation < ?
		ORDER BY last_operation
	`
	rows, err := s.db.QueryContext(ctx, query, StateProcessing, olderThan.UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("querying stale states: %w", err)
	}
	defer rows.Close()

	var states []*ConversationState
	for rows.Next() {
		var st ConversationState
		var runID sql.NullString
		var lastOpStr string
		if err := rows.Scan(&st.ConversationID, &st.State, &runID, &lastOpStr, &st.Version); err != nil {
			return nil, fmt.Errorf("scanning state: %w", err)
		}
		if runID.Valid {
			st.RunID = &runID.String
		}
		if st.LastOperation, err = time.Parse(time.RFC3339Nano, lastOpStr); err != nil {
			return nil, fmt.Errorf("parsing last_operation: %w", err)
		}
		states = append(states, &st)
	}
	return states, rows.Err()
}

// requireRows converts a zero-row result into ErrNotFound
func (s *SQLiteStore) requireRows(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
