package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/funnel-research/internal/funnel"
)

func sampleInput() funnel.Request {
	return funnel.Request{
		Description:     "We help small businesses grow online",
		CoreService:     "SEO",
		CorePhrase:      "local seo services",
		IncludeLocal:    true,
		IncludeNational: true,
		MaxCompetitors:  5,
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()

	record, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)
	assert.Len(t, record.ID, 36)
	assert.Equal(t, StatusInProgress, record.Status)
	assert.Nil(t, record.Result)
	assert.Nil(t, record.Error)

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record, got)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRegeneratesCollidingID(t *testing.T) {
	store := NewMemoryStore(0)
	ids := []string{"dup", "dup", "fresh"}
	store.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	first, err := store.Create(context.Background(), sampleInput())
	require.NoError(t, err)
	second, err := store.Create(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, "dup", first.ID)
	assert.Equal(t, "fresh", second.ID)
}

func TestMemoryStoreSnapshotsAreIsolated(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	record, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)

	record.Status = StatusFailed
	record.Input.CoreService = "changed"

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, "SEO", got.Input.CoreService)
}

func TestMemoryStoreUpdateTerminal(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	record, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)

	result := json.RawMessage(`{"insights":{}}`)
	require.NoError(t, store.UpdateTerminal(ctx, record.ID, StatusCompleted, result, nil))

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.JSONEq(t, `{"insights":{}}`, string(got.Result))
	assert.Nil(t, got.Error)
	assert.Equal(t, record.Input, got.Input)

	err = store.UpdateTerminal(ctx, record.ID, StatusFailed, nil, &ErrorInfo{Code: "X", Message: "late"})
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestMemoryStoreRejectsInvalidTransitions(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	record, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)

	tests := []struct {
		name    string
		status  Status
		result  json.RawMessage
		errInfo *ErrorInfo
	}{
		{"non-terminal status", StatusPending, nil, nil},
		{"back to in_progress", StatusInProgress, nil, nil},
		{"completed without result", StatusCompleted, nil, nil},
		{"completed with error", StatusCompleted, json.RawMessage(`{}`), &ErrorInfo{Code: "X"}},
		{"failed without error", StatusFailed, nil, nil},
		{"failed with result", StatusFailed, json.RawMessage(`{}`), &ErrorInfo{Code: "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.UpdateTerminal(ctx, record.ID, tt.status, tt.result, tt.errInfo)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)

	err = store.UpdateTerminal(ctx, "missing", StatusCompleted, json.RawMessage(`{}`), nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreConcurrentReadersSeeWholeRecords(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	record, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				got, err := store.Get(ctx, record.ID)
				if !assert.NoError(t, err) {
					return
				}
				switch got.Status {
				case StatusInProgress:
					assert.Nil(t, got.Result)
				case StatusCompleted:
					assert.NotNil(t, got.Result)
				default:
					t.Errorf("unexpected status %s", got.Status)
				}
			}
		}()
	}
	require.NoError(t, store.UpdateTerminal(ctx, record.ID, StatusCompleted, json.RawMessage(`{"ok":true}`), nil))
	wg.Wait()
}

func TestMemoryStoreEvict(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	done, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)
	running, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)
	require.NoError(t, store.UpdateTerminal(ctx, done.ID, StatusFailed, nil, &ErrorInfo{Code: "X", Message: "x"}))

	assert.Equal(t, 0, store.Evict())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, store.Evict())

	_, err = store.Get(ctx, done.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, running.ID)
	assert.NoError(t, err)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryStoreWithoutTTLNeverEvicts(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	record, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)
	require.NoError(t, store.UpdateTerminal(ctx, record.ID, StatusCompleted, json.RawMessage(`{}`), nil))

	store.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	assert.Equal(t, 0, store.Evict())
}
