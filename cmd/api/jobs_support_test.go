package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/funnel-research/internal/config"
	"github.com/yourusername/funnel-research/internal/jobs"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSetupJobsClosesRedisWhenDispatcherFails(t *testing.T) {
	mr := miniredis.RunT(t)
	errDispatcher := errors.New("asynq unavailable")
	orig := newAsynqDispatcher
	newAsynqDispatcher = func(string, int, *slog.Logger) (*jobs.AsynqDispatcher, error) {
		return nil, errDispatcher
	}
	t.Cleanup(func() { newAsynqDispatcher = orig })

	cfg := &config.Config{
		JobStore:      config.StoreRedis,
		JobDispatch:   config.DispatchAsynq,
		QueueRedisURL: "redis://" + mr.Addr() + "/0",
	}
	rt, err := setupJobs(context.Background(), cfg, testLogger())
	require.ErrorIs(t, err, errDispatcher)
	assert.Nil(t, rt)

	assert.Eventually(t, func() bool {
		return mr.CurrentConnectionCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSetupJobsInlineMemory(t *testing.T) {
	cfg := &config.Config{
		JobStore:         config.StoreMemory,
		JobDispatch:      config.DispatchInline,
		JobExpireMinutes: 5,
	}
	rt, err := setupJobs(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, rt.manager)
	require.Len(t, rt.closers, 1)

	require.NoError(t, rt.manager.StartWorkers())
	assert.NoError(t, rt.Close(context.Background()))
	assert.Empty(t, rt.closers)
}

func TestJobRuntimeCloseRunsEveryCloser(t *testing.T) {
	var calls int
	errClose := errors.New("close failed")
	rt := &jobRuntime{closers: []func() error{
		func() error { calls++; return errClose },
		func() error { calls++; return nil },
	}}

	err := rt.Close(context.Background())
	assert.ErrorIs(t, err, errClose)
	assert.Equal(t, 2, calls)
}
