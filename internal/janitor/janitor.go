// ABOUTME: Scheduled retention cleanup for threads and conversation state
// ABOUTME: Deactivates expired threads and reclassifies abandoned Processing rows

package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pathwise/chat-gateway/internal/store"
)

// retentionStore defines what the janitor needs from persistence.
type retentionStore interface {
	ListExpiredActiveThreads(ctx context.Context, olderThan time.Time) ([]*store.Thread, error)
	DeactivateThread(ctx context.Context, id string) error
	ListStaleProcessingStates(ctx context.Context, olderThan time.Time) ([]*store.ConversationState, error)
	SetConversationState(ctx context.Context, conversationID, state string, runID *string) error
}

// Janitor periodically sweeps expired threads and stale processing states.
type Janitor struct {
	store            retentionStore
	threadExpiration time.Duration
	staleness        time.Duration
	cron             *cron.Cron
	logger           *slog.Logger

	now func() time.Time
}

// New creates a janitor. threadExpiration and staleness mirror the chat
// service's settings so both sides agree on what counts as abandoned.
func New(st retentionStore, threadExpiration, staleness time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:            st,
		threadExpiration: threadExpiration,
		staleness:        staleness,
		cron:             cron.New(),
		logger:           logger.With("component", "janitor"),
		now:              time.Now,
	}
}

// Start schedules the sweep on the given cron expression and begins running.
func (j *Janitor) Start(schedule string) error {
	if _, err := j.cron.AddFunc(schedule, j.Sweep); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("janitor started", "schedule", schedule)
	return nil
}

// Stop halts the schedule. A sweep already in flight finishes.
func (j *Janitor) Stop() {
	j.cron.Stop()
	j.logger.Info("janitor stopped")
}

// Sweep runs one cleanup pass. Individual item failures are logged and do
// not stop the rest of the pass.
func (j *Janitor) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := j.now()

	threads, err := j.store.ListExpiredActiveThreads(ctx, now.Add(-j.threadExpiration))
	if err != nil {
		j.logger.Error("listing expired threads failed", "error", err)
	}
	deactivated := 0
	for _, thread := range threads {
		if err := j.store.DeactivateThread(ctx, thread.ID); err != nil {
			j.logger.Error("deactivating expired thread failed",
				"thread_id", thread.ID, "error", err)
			continue
		}
		deactivated++
	}

	states, err := j.store.ListStaleProcessingStates(ctx, now.Add(-j.staleness))
	if err != nil {
		j.logger.Error("listing stale processing states failed", "error", err)
	}
	reclassified := 0
	for _, st := range states {
		if err := j.store.SetConversationState(ctx, st.ConversationID, store.StateError, nil); err != nil {
			j.logger.Error("reclassifying stale state failed",
				"conversation_id", st.ConversationID, "error", err)
			continue
		}
		reclassified++
	}

	if deactivated > 0 || reclassified > 0 {
		j.logger.Info("sweep completed",
			"threads_deactivated", deactivated,
			"states_reclassified", reclassified)
	}
}
