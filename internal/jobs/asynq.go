package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	taskTypeAnalyze = "funnel:analyze"
	queueName       = "funnel"
)

// TaskPayload は分析ジョブのタスクペイロードです。
type TaskPayload struct {
	JobID string `json:"analysisId"`
}

// AsynqDispatcher は Redis 上の Asynq キューを経由してジョブを実行します。
// ワーカーから状態が見えるよう、ストアには RedisStore を組み合わせて使います。
type AsynqDispatcher struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

// NewAsynqDispatcher は AsynqDispatcher を初期化します。
func NewAsynqDispatcher(redisURL string, concurrency int, logger *slog.Logger) (*AsynqDispatcher, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queueName: 1,
			},
			Logger: &asynqLogger{logger: logger},
		},
	)

	return &AsynqDispatcher{
		client: client,
		server: server,
		mux:    asynq.NewServeMux(),
		logger: logger,
	}, nil
}

// Start はタスクハンドラーを登録し、Asynq サーバーをバックグラウンドで起動します。
func (d *AsynqDispatcher) Start(run ExecuteFunc) error {
	if run == nil {
		return errors.New("run is nil")
	}
	d.mux.HandleFunc(taskTypeAnalyze, taskHandler(run))
	if err := d.server.Start(d.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	return nil
}

// Dispatch はタスクをキューに投入します。リトライは行いません。
func (d *AsynqDispatcher) Dispatch(ctx context.Context, jobID string) error {
	task, err := newAnalyzeTask(jobID)
	if err != nil {
		return err
	}
	info, err := d.client.EnqueueContext(ctx, task, asynq.Queue(queueName), asynq.MaxRetry(0))
	if err != nil {
		return err
	}
	d.logger.Debug("analysis task enqueued",
		slog.String("analysis_id", jobID),
		slog.String("task_id", info.ID),
	)
	return nil
}

// Shutdown はサーバーとクライアントを閉じます。
// asynq の Shutdown は実行中タスクを設定上の猶予まで待ちます。
func (d *AsynqDispatcher) Shutdown(ctx context.Context) error {
	d.server.Shutdown()
	return d.client.Close()
}

func newAnalyzeTask(jobID string) (*asynq.Task, error) {
	if jobID == "" {
		return nil, errors.New("jobID is required")
	}
	body, err := json.Marshal(TaskPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskTypeAnalyze, body), nil
}

func taskHandler(run ExecuteFunc) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload TaskPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		if payload.JobID == "" {
			return fmt.Errorf("missing analysisId in payload: %w", asynq.SkipRetry)
		}
		if err := run(ctx, payload.JobID); err != nil {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return nil
	}
}

// asynqLogger は asynq.Logger を slog に中継します。
type asynqLogger struct {
	logger *slog.Logger
}

func (l *asynqLogger) Debug(args ...any) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...any)  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...any)  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...any) { l.logger.Error(fmt.Sprint(args...)) }

// Fatal は asynq 内部の致命的エラーです。プロセスは止めずにエラーとして記録します。
func (l *asynqLogger) Fatal(args ...any) {
	l.logger.Error(fmt.Sprint(args...), slog.Bool("fatal", true))
}
