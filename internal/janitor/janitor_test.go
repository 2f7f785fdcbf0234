// ABOUTME: Tests for the retention janitor
// ABOUTME: Verifies expired threads are deactivated and stale states reclassified

package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathwise/chat-gateway/internal/store"
)

func TestSweep_DeactivatesExpiredThreads(t *testing.T) {
	mock := store.NewMockStore()
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, mock.CreateThread(ctx, &store.Thread{
		ID: "stale", UserID: "user-1", ExternalID: "ext-stale",
		LastUsedAt: now.Add(-48 * time.Hour), Active: true,
	}))
	require.NoError(t, mock.CreateThread(ctx, &store.Thread{
		ID: "fresh", UserID: "user-2", ExternalID: "ext-fresh",
		LastUsedAt: now, Active: true,
	}))

	j := New(mock, 24*time.Hour, 5*time.Minute, nil)
	j.Sweep()

	staleThread, err := mock.GetThread(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, staleThread.Active)

	freshThread, err := mock.GetThread(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, freshThread.Active)
}

func TestSweep_ReclassifiesStaleProcessingStates(t *testing.T) {
	mock := store.NewMockStore()
	ctx := context.Background()

	now := time.Now()
	mock.SetConversationStateAt("ext-stale", store.StateProcessing, nil, now.Add(-time.Hour))
	mock.SetConversationStateAt("ext-fresh", store.StateProcessing, nil, now)
	mock.SetConversationStateAt("ext-idle", store.StateIdle, nil, now.Add(-time.Hour))

	j := New(mock, 24*time.Hour, 5*time.Minute, nil)
	j.Sweep()

	staleState, err := mock.GetConversationState(ctx, "ext-stale")
	require.NoError(t, err)
	assert.Equal(t, store.StateError, staleState.State)

	freshState, err := mock.GetConversationState(ctx, "ext-fresh")
	require.NoError(t, err)
	assert.Equal(t, store.StateProcessing, freshState.State)

	idleState, err := mock.GetConversationState(ctx, "ext-idle")
	require.NoError(t, err)
	assert.Equal(t, store.StateIdle, idleState.State)
}

func TestStartStop(t *testing.T) {
	j := New(store.NewMockStore(), 24*time.Hour, 5*time.Minute, nil)

	require.NoError(t, j.Start("@hourly"))
	j.Stop()
}

func TestStart_InvalidSchedule(t *testing.T) {
	j := New(store.NewMockStore(), 24*time.Hour, 5*time.Minute, nil)

	assert.Error(t, j.Start("not a schedule"))
}
