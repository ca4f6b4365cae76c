package jobs

import (
	"encoding/json"
	"time"

	"github.com/yourusername/funnel-research/internal/funnel"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal は終端状態かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record はジョブの現在状態を表します。
// ストアが返す Record はスナップショットであり、書き換えてもストアには反映されません。
type Record struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	Input     funnel.Request  `json:"input"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func (r *Record) clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Result != nil {
		out.Result = append(json.RawMessage(nil), r.Result...)
	}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	return &out
}

// applyTerminal は終端遷移の妥当性を検証し、遷移後の新しいレコードを返します。
// current は変更しません。
func applyTerminal(current *Record, status Status, result json.RawMessage, errInfo *ErrorInfo, now time.Time) (*Record, error) {
	if current.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	switch status {
	case StatusCompleted:
		if result == nil || errInfo != nil {
			return nil, ErrInvalidTransition
		}
	case StatusFailed:
		if result != nil || errInfo == nil {
			return nil, ErrInvalidTransition
		}
	default:
		return nil, ErrInvalidTransition
	}

	next := current.clone()
	next.Status = status
	next.Result = nil
	next.Error = nil
	if result != nil {
		next.Result = append(json.RawMessage(nil), result...)
	}
	if errInfo != nil {
		e := *errInfo
		next.Error = &e
	}
	next.UpdatedAt = now
	return next, nil
}
