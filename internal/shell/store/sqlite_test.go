package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/super-employee/gemini-cache-bot/internal/core/domain"
)

// newTestStore creates a store backed by a temp-file database.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "usage.db")
	s, err := NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func testChatEvent(id string, status domain.ChatStatus, createdAt time.Time) *domain.ChatEvent {
	return &domain.ChatEvent{
		ID:            id,
		RequestID:     "req-" + id,
		CacheRef:      "cachedContents/abc",
		Status:        status,
		PromptChars:   42,
		ResponseChars: 120,
		ToolCalls:     1,
		Duration:      1500 * time.Millisecond,
		CreatedAt:     createdAt,
	}
}

// =============================================================================
// Chat Event Tests
// =============================================================================

func TestSQLiteStore_RecordAndListChatEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordChatEvent(ctx, testChatEvent("e1", domain.ChatStatusSuccess, base)))
	require.NoError(t, s.RecordChatEvent(ctx, testChatEvent("e2", domain.ChatStatusError, base.Add(time.Minute))))
	require.NoError(t, s.RecordChatEvent(ctx, testChatEvent("e3", domain.ChatStatusSuccess, base.Add(2*time.Minute))))

	events, err := s.ListChatEvents(ctx, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Newest first.
	assert.Equal(t, "e3", events[0].ID)
	assert.Equal(t, "e1", events[2].ID)

	// Fields survive the round trip.
	assert.Equal(t, domain.ChatStatusSuccess, events[0].Status)
	assert.Equal(t, "req-e3", events[0].RequestID)
	assert.Equal(t, "cachedContents/abc", events[0].CacheRef)
	assert.Equal(t, 42, events[0].PromptChars)
	assert.Equal(t, 120, events[0].ResponseChars)
	assert.Equal(t, 1, events[0].ToolCalls)
	assert.Equal(t, 1500*time.Millisecond, events[0].Duration)
}

func TestSQLiteStore_ListChatEvents_Pagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		event := testChatEvent(string(rune('a'+i)), domain.ChatStatusSuccess, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, s.RecordChatEvent(ctx, event))
	}

	page, err := s.ListChatEvents(ctx, ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].ID)
	assert.Equal(t, "c", page[1].ID)
}

func TestSQLiteStore_RecordChatEvent_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	event := testChatEvent("dup", domain.ChatStatusSuccess, time.Now())

	require.NoError(t, s.RecordChatEvent(ctx, event))
	err := s.RecordChatEvent(ctx, event)
	assert.ErrorIs(t, err, ErrInsertFailed)
}

func TestSQLiteStore_CountChatEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordChatEvent(ctx, testChatEvent("e1", domain.ChatStatusSuccess, base)))
	require.NoError(t, s.RecordChatEvent(ctx, testChatEvent("e2", domain.ChatStatusSuccess, base)))
	require.NoError(t, s.RecordChatEvent(ctx, testChatEvent("e3", domain.ChatStatusRateLimited, base)))

	total, err := s.CountChatEvents(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	success, err := s.CountChatEvents(ctx, domain.ChatStatusSuccess)
	require.NoError(t, err)
	assert.Equal(t, 2, success)

	limited, err := s.CountChatEvents(ctx, domain.ChatStatusRateLimited)
	require.NoError(t, err)
	assert.Equal(t, 1, limited)
}

// =============================================================================
// Refresh Event Tests
// =============================================================================

func TestSQLiteStore_RecordAndListRefreshEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordRefreshEvent(ctx, &domain.RefreshEvent{
		ID:        "r1",
		CacheRef:  "cachedContents/old",
		Trigger:   domain.TriggerManual,
		Duration:  3 * time.Second,
		CreatedAt: base,
	}))
	require.NoError(t, s.RecordRefreshEvent(ctx, &domain.RefreshEvent{
		ID:        "r2",
		CacheRef:  "cachedContents/new",
		Trigger:   domain.TriggerScheduled,
		Duration:  2 * time.Second,
		CreatedAt: base.Add(time.Hour),
	}))

	events, err := s.ListRefreshEvents(ctx, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "r2", events[0].ID)
	assert.Equal(t, domain.TriggerScheduled, events[0].Trigger)
	assert.Equal(t, 2*time.Second, events[0].Duration)
	assert.Equal(t, domain.TriggerManual, events[1].Trigger)
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestSQLiteStore_Ping(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestNewSQLiteStore_BadPath(t *testing.T) {
	_, err := NewSQLiteStore("/nonexistent-dir/usage.db")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}
