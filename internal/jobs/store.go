package jobs

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/yourusername/funnel-research/internal/funnel"
)

var (
	// ErrNotFound は指定IDのジョブが存在しないことを表します。
	ErrNotFound = errors.New("job not found")
	// ErrAlreadyTerminal は終端状態のジョブを更新しようとしたことを表します。
	ErrAlreadyTerminal = errors.New("job is already in a terminal state")
	// ErrInvalidTransition は終端でない状態への遷移、または結果とエラーの組み合わせが不正なことを表します。
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Store はジョブIDからジョブ状態への対応を保持します。
// 実装は並行呼び出しに対して安全で、Get は更新前後どちらかの完全なレコードを返す必要があります。
type Store interface {
	// Create は新しいIDを払い出し、in_progress のジョブを登録します。
	Create(ctx context.Context, input funnel.Request) (*Record, error)
	// Get は現在のスナップショットを返します。存在しない場合は ErrNotFound を返します。
	Get(ctx context.Context, id string) (*Record, error)
	// UpdateTerminal はジョブを completed か failed に遷移させます。
	UpdateTerminal(ctx context.Context, id string, status Status, result json.RawMessage, errInfo *ErrorInfo) error
	// Count は保持しているジョブ数を返します。
	Count(ctx context.Context) (int, error)
}

func newJobID() string {
	return uuid.NewString()
}
