package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskHandlerRunsJob(t *testing.T) {
	var got string
	handler := taskHandler(func(ctx context.Context, jobID string) error {
		got = jobID
		return nil
	})

	task, err := newAnalyzeTask("job-123")
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	assert.Equal(t, "job-123", got)
}

func TestTaskHandlerSkipsRetry(t *testing.T) {
	handler := taskHandler(func(ctx context.Context, jobID string) error {
		return errors.New("store unavailable")
	})

	task, err := newAnalyzeTask("job-123")
	require.NoError(t, err)
	err = handler(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = handler(context.Background(), asynq.NewTask(taskTypeAnalyze, []byte("not-json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = handler(context.Background(), asynq.NewTask(taskTypeAnalyze, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewAnalyzeTaskRequiresID(t *testing.T) {
	_, err := newAnalyzeTask("")
	assert.Error(t, err)
}

func TestNewAsynqDispatcherRejectsBadURL(t *testing.T) {
	_, err := NewAsynqDispatcher("ftp://nowhere", 1, discardLogger())
	assert.Error(t, err)
}
