package jobs

import (
	"context"
	"errors"
	"sync"
)

// ErrDispatcherClosed はシャットダウン後に Dispatch が呼ばれたことを表します。
var ErrDispatcherClosed = errors.New("dispatcher is closed")

// ErrDispatcherNotStarted は Start 前に Dispatch が呼ばれたことを表します。
var ErrDispatcherNotStarted = errors.New("dispatcher is not started")

// InlineDispatcher はジョブごとにゴルーチンを起動して実行します。
// ゴルーチンは WaitGroup で追跡され、Shutdown で終了を待てます。
type InlineDispatcher struct {
	mu      sync.Mutex
	run     ExecuteFunc
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewInlineDispatcher は InlineDispatcher を作成します。
func NewInlineDispatcher() *InlineDispatcher {
	return &InlineDispatcher{}
}

// Start は実行関数を登録します。
func (d *InlineDispatcher) Start(run ExecuteFunc) error {
	if run == nil {
		return errors.New("run is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.run = run
	// リクエストの ctx から切り離した実行用コンテキスト
	d.baseCtx, d.cancel = context.WithCancel(context.Background())
	return nil
}

// Dispatch はジョブをバックグラウンドで実行します。
func (d *InlineDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if d.run == nil {
		d.mu.Unlock()
		return ErrDispatcherNotStarted
	}
	run, ctx := d.run, d.baseCtx
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()
		_ = run(ctx, jobID)
	}()
	return nil
}

// Shutdown は新規受付を止めて実行中のジョブを待ちます。
// ctx が先に終了した場合は実行中のジョブをキャンセルして ctx のエラーを返します。
func (d *InlineDispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	cancel := d.cancel
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if cancel != nil {
			cancel()
		}
		return nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		return ctx.Err()
	}
}
