package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yourusername/funnel-research/internal/funnel"
)

const (
	jobKeyPrefix = "analysis:"
	maxTxRetries = 16
)

// RedisStore はジョブ状態を Redis に JSON で保存します。
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore は RedisStore を作成します。
// ttl は終端状態になったジョブにだけ設定され、0 の場合キーは失効しません。
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		ttl: ttl,
	}
}

// Create はジョブを登録します。ID の衝突時は払い出し直します。
func (s *RedisStore) Create(ctx context.Context, input funnel.Request) (*Record, error) {
	now := time.Now().UTC()
	for {
		record := &Record{
			ID:        newJobID(),
			Status:    StatusInProgress,
			Input:     input,
			CreatedAt: now,
			UpdatedAt: now,
		}
		payload, err := json.Marshal(record)
		if err != nil {
			return nil, err
		}
		// 実行中のジョブは失効させない
		ok, err := s.rdb.SetNX(ctx, jobKey(record.ID), payload, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("store job: %w", err)
		}
		if ok {
			return record, nil
		}
	}
}

// Get はジョブ情報を取得します。
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &record, nil
}

// UpdateTerminal は WATCH/MULTI でジョブを終端状態に遷移させます。
func (s *RedisStore) UpdateTerminal(ctx context.Context, id string, status Status, result json.RawMessage, errInfo *ErrorInfo) error {
	key := jobKey(id)
	update := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		var current Record
		if err := json.Unmarshal(data, &current); err != nil {
			return fmt.Errorf("decode job %s: %w", id, err)
		}
		next, err := applyTerminal(&current, status, result, errInfo, time.Now().UTC())
		if err != nil {
			return err
		}
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, update, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update job %s: %w", id, redis.TxFailedErr)
}

// Count は保持しているジョブ数を返します。
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, jobKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, err
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

// Ping は Redis への疎通を確認します。
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
