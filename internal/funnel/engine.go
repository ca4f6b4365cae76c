package funnel

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Engine は検証済みリクエストから結果ドキュメントを生成する分析エンジンです。
// 実装は ctx のキャンセルを尊重する必要があります。
type Engine interface {
	Analyze(ctx context.Context, analysisID string, req Request) (*Report, error)
}

// EngineFunc は関数を Engine として扱うためのアダプタです。
type EngineFunc func(ctx context.Context, analysisID string, req Request) (*Report, error)

// Analyze は f を呼び出します。
func (f EngineFunc) Analyze(ctx context.Context, analysisID string, req Request) (*Report, error) {
	return f(ctx, analysisID, req)
}

// エンジン失敗時のエラーコード
const (
	CodeEngineTimeout  = "ENGINE_TIMEOUT"
	CodeEngineCanceled = "ENGINE_CANCELED"
	CodeEngineFailure  = "ENGINE_FAILURE"
	CodeEnginePanic    = "ENGINE_PANIC"
	CodeEmptyResult    = "EMPTY_RESULT"
)

// EngineError は分析エンジンの失敗を表します。Code と Message はジョブに記録されます。
type EngineError struct {
	Code    string
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// TimeoutEngine は内側のエンジンに実行時間の上限を課します。
type TimeoutEngine struct {
	Engine  Engine
	Timeout time.Duration
}

// WithTimeout は timeout が正の場合に engine を TimeoutEngine で包みます。
func WithTimeout(engine Engine, timeout time.Duration) Engine {
	if timeout <= 0 {
		return engine
	}
	return &TimeoutEngine{Engine: engine, Timeout: timeout}
}

// Analyze は期限付きのコンテキストで内側のエンジンを実行します。
func (t *TimeoutEngine) Analyze(ctx context.Context, analysisID string, req Request) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	type outcome struct {
		report *Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &EngineError{
					Code:    CodeEnginePanic,
					Message: fmt.Sprintf("engine panicked: %v", r),
				}}
			}
		}()
		report, err := t.Engine.Analyze(ctx, analysisID, req)
		done <- outcome{report: report, err: err}
	}()

	// ctx を無視するエンジンでも期限で打ち切る
	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			return nil, timeoutError(t.Timeout, out.err)
		}
		return out.report, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(t.Timeout, ctx.Err())
		}
		return nil, &EngineError{Code: CodeEngineCanceled, Message: "analysis was canceled", Err: ctx.Err()}
	}
}

func timeoutError(timeout time.Duration, err error) error {
	return &EngineError{
		Code:    CodeEngineTimeout,
		Message: fmt.Sprintf("analysis did not finish within %s", timeout),
		Err:     err,
	}
}
