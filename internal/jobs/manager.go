// Package jobs は分析ジョブの状態管理と非同期実行を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/yourusername/funnel-research/internal/funnel"
)

// 終端状態の書き込みはジョブの ctx が切れていても行う
const terminalWriteTimeout = 5 * time.Second

// ジョブ失敗時のエラーコード（エンジン由来以外）
const (
	CodeDispatchFailed = "DISPATCH_FAILED"
	CodeEncodeFailed   = "RESULT_ENCODE_FAILED"
	CodeStoreFailure   = "STORE_FAILURE"
)

// ExecuteFunc はバックグラウンドで1件のジョブを実行する関数です。
type ExecuteFunc func(ctx context.Context, jobID string) error

// Dispatcher はジョブをリクエスト処理から切り離して実行させます。
type Dispatcher interface {
	// Start は実行関数を登録し、ワーカーを起動します。
	Start(run ExecuteFunc) error
	// Dispatch はジョブの実行を予約します。実行完了は待ちません。
	Dispatch(ctx context.Context, jobID string) error
	// Shutdown は新規受付を止め、実行中のジョブを待ちます。
	Shutdown(ctx context.Context) error
}

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	store      Store
	engine     funnel.Engine
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewManager は Manager を初期化します。
func NewManager(store Store, engine funnel.Engine, dispatcher Dispatcher, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// StartWorkers はディスパッチャーのワーカーを起動します。
func (m *Manager) StartWorkers() error {
	return m.dispatcher.Start(func(ctx context.Context, jobID string) error {
		err := m.Execute(ctx, jobID)
		if err != nil {
			m.logger.Error("analysis execution error",
				slog.String("analysis_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		return err
	})
}

// Shutdown は実行中のジョブの終了を待ちます。
func (m *Manager) Shutdown(ctx context.Context) error {
	return m.dispatcher.Shutdown(ctx)
}

// Submit はジョブを作成して実行を予約し、エンジンの完了を待たずに返ります。
func (m *Manager) Submit(ctx context.Context, input funnel.Request) (*Record, error) {
	record, err := m.store.Create(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if err := m.dispatcher.Dispatch(ctx, record.ID); err != nil {
		m.logger.Error("failed to dispatch analysis",
			slog.String("analysis_id", record.ID),
			slog.String("error", err.Error()),
		)
		if failErr := m.failJob(ctx, record.ID, CodeDispatchFailed, "analysis could not be scheduled"); failErr != nil {
			err = fmt.Errorf("%w (mark failed: %v)", err, failErr)
		}
		return nil, fmt.Errorf("dispatch job %s: %w", record.ID, err)
	}

	m.logger.Info("analysis started",
		slog.String("analysis_id", record.ID),
		slog.String("core_service", input.CoreService),
	)
	return record, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

// Execute はジョブ1件を実行し、結果を終端状態として保存します。
// エンジンの失敗やパニックはすべて failed として記録され、呼び出し元には伝播しません。
func (m *Manager) Execute(ctx context.Context, jobID string) (err error) {
	defer m.supervise(ctx, jobID, &err)

	record, err := m.store.Get(ctx, jobID)
	if err != nil {
		err = fmt.Errorf("load job %s: %w", jobID, err)
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return m.failAfterStoreError(ctx, jobID, err, "analysis state could not be loaded")
	}
	if record.Status.Terminal() {
		m.logger.Warn("skipping finished analysis",
			slog.String("analysis_id", jobID),
			slog.String("status", string(record.Status)),
		)
		return nil
	}

	start := time.Now()
	report, err := m.runEngine(ctx, record)
	if err != nil {
		m.logger.Error("analysis failed",
			slog.String("analysis_id", jobID),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return m.failJobWithError(ctx, jobID, err)
	}

	if err := m.finishJob(ctx, jobID, report); err != nil {
		return err
	}
	m.logger.Info("analysis completed",
		slog.String("analysis_id", jobID),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// supervise は Execute 自体のパニックを回収し、ジョブが in_progress のまま残らないようにします。
func (m *Manager) supervise(ctx context.Context, jobID string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	m.logger.Error("analysis execution panicked",
		slog.String("analysis_id", jobID),
		slog.Any("panic", r),
		slog.String("stack", string(debug.Stack())),
	)
	*errp = fmt.Errorf("execute job %s: panic: %v", jobID, r)
	if failErr := m.failJob(ctx, jobID, funnel.CodeEnginePanic, fmt.Sprintf("execution panicked: %v", r)); failErr != nil && !errors.Is(failErr, ErrAlreadyTerminal) {
		*errp = fmt.Errorf("%w (mark failed: %v)", *errp, failErr)
	}
}

func (m *Manager) runEngine(ctx context.Context, record *Record) (report *funnel.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("analysis engine panicked",
				slog.String("analysis_id", record.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			report = nil
			err = &funnel.EngineError{
				Code:    funnel.CodeEnginePanic,
				Message: fmt.Sprintf("engine panicked: %v", r),
			}
		}
	}()

	report, err = m.engine.Analyze(ctx, record.ID, record.Input)
	if err == nil && report == nil {
		err = &funnel.EngineError{Code: funnel.CodeEmptyResult, Message: "engine returned no result"}
	}
	return report, err
}

func (m *Manager) finishJob(ctx context.Context, jobID string, report *funnel.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return m.failJob(ctx, jobID, CodeEncodeFailed, err.Error())
	}
	writeCtx, cancel := terminalContext(ctx)
	defer cancel()
	if err := m.store.UpdateTerminal(writeCtx, jobID, StatusCompleted, payload, nil); err != nil {
		err = fmt.Errorf("complete job %s: %w", jobID, err)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyTerminal) || errors.Is(err, ErrInvalidTransition) {
			return err
		}
		return m.failAfterStoreError(ctx, jobID, err, "analysis result could not be saved")
	}
	return nil
}

// failAfterStoreError はストアの一時的な失敗後に failed の記録を試みます。
// 記録できなかった場合も元のエラーを返します。
func (m *Manager) failAfterStoreError(ctx context.Context, jobID string, err error, message string) error {
	if failErr := m.failJob(ctx, jobID, CodeStoreFailure, message); failErr != nil {
		return fmt.Errorf("%w (mark failed: %v)", err, failErr)
	}
	return err
}

func (m *Manager) failJob(ctx context.Context, jobID, code, message string) error {
	writeCtx, cancel := terminalContext(ctx)
	defer cancel()
	if err := m.store.UpdateTerminal(writeCtx, jobID, StatusFailed, nil, &ErrorInfo{
		Code:    code,
		Message: message,
	}); err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return nil
}

func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	var engErr *funnel.EngineError
	switch {
	case errors.As(err, &engErr):
		return m.failJob(ctx, jobID, engErr.Code, engErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return m.failJob(ctx, jobID, funnel.CodeEngineTimeout, "analysis timed out")
	case errors.Is(err, context.Canceled):
		return m.failJob(ctx, jobID, funnel.CodeEngineCanceled, "analysis was canceled")
	default:
		return m.failJob(ctx, jobID, funnel.CodeEngineFailure, err.Error())
	}
}

func terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), terminalWriteTimeout)
}
