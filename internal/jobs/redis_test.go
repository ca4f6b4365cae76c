package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, ttl), mr
}

func TestRedisStoreLifecycle(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))

	record, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, record.Status)

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.Input, got.Input)
	assert.Equal(t, StatusInProgress, got.Status)

	require.NoError(t, store.UpdateTerminal(ctx, record.ID, StatusCompleted, json.RawMessage(`{"insights":{"a":1}}`), nil))

	got, err = store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.JSONEq(t, `{"insights":{"a":1}}`, string(got.Result))

	err = store.UpdateTerminal(ctx, record.ID, StatusFailed, nil, &ErrorInfo{Code: "X", Message: "x"})
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestRedisStoreErrors(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.UpdateTerminal(ctx, "missing", StatusFailed, nil, &ErrorInfo{Code: "X"})
	assert.ErrorIs(t, err, ErrNotFound)

	record, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)
	err = store.UpdateTerminal(ctx, record.ID, StatusPending, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRedisStoreCount(t *testing.T) {
	store, _ := newTestRedisStore(t, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Create(ctx, sampleInput())
		require.NoError(t, err)
	}
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRedisStoreTTLAppliesToFinishedJobs(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	record, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)
	require.NoError(t, store.UpdateTerminal(ctx, record.ID, StatusCompleted, json.RawMessage(`{}`), nil))
	assert.Equal(t, time.Minute, mr.TTL(jobKey(record.ID)))

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, record.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreKeepsRunningJobsPastTTL(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	record, err := store.Create(ctx, sampleInput())
	require.NoError(t, err)
	assert.Zero(t, mr.TTL(jobKey(record.ID)))

	mr.FastForward(2 * time.Minute)
	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)

	require.NoError(t, store.UpdateTerminal(ctx, record.ID, StatusFailed, nil, &ErrorInfo{Code: "X", Message: "slow"}))
	got, err = store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, time.Minute, mr.TTL(jobKey(record.ID)))
}
