package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/yourusername/funnel-research/internal/funnel"
)

// MemoryStore はプロセス内のマップでジョブを保持します。
// レコードは不変として扱い、更新時はポインタごと差し替えます。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	ttl     time.Duration
	now     func() time.Time
	newID   func() string
}

// NewMemoryStore は MemoryStore を作成します。ttl が 0 以下の場合は削除を行いません。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   newJobID,
	}
}

// Create はジョブを登録します。
func (s *MemoryStore) Create(ctx context.Context, input funnel.Request) (*Record, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	for {
		if _, exists := s.records[id]; !exists {
			break
		}
		id = s.newID()
	}
	record := &Record{
		ID:        id,
		Status:    StatusInProgress,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.records[id] = record
	return record.clone(), nil
}

// Get はジョブ情報を取得します。
func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	record, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return record.clone(), nil
}

// UpdateTerminal はジョブを終端状態に遷移させます。
func (s *MemoryStore) UpdateTerminal(ctx context.Context, id string, status Status, result json.RawMessage, errInfo *ErrorInfo) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	next, err := applyTerminal(current, status, result, errInfo, now)
	if err != nil {
		return err
	}
	s.records[id] = next
	return nil
}

// Count は保持しているジョブ数を返します。
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Evict は ttl を過ぎた終端状態のジョブを削除し、削除件数を返します。
// 実行中のジョブは対象外です。
func (s *MemoryStore) Evict() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, record := range s.records {
		if record.Status.Terminal() && record.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			removed++
		}
	}
	return removed
}

// RunJanitor は ctx が終了するまで interval ごとに Evict を呼び出します。
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration, onEvict func(int)) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Evict(); n > 0 && onEvict != nil {
				onEvict(n)
			}
		}
	}
}
