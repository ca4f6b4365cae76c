package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/funnel-research/internal/config"
	"github.com/yourusername/funnel-research/internal/funnel"
	"github.com/yourusername/funnel-research/internal/jobs"
)

const janitorInterval = time.Minute

var newAsynqDispatcher = jobs.NewAsynqDispatcher

// jobRuntime はジョブ基盤と後始末をまとめます。
type jobRuntime struct {
	manager *jobs.Manager
	closers []func() error
}

// Close は実行中のジョブを待ってから接続を閉じます。
func (r *jobRuntime) Close(ctx context.Context) error {
	var err error
	if r.manager != nil {
		err = r.manager.Shutdown(ctx)
	}
	return errors.Join(err, r.closeResources())
}

func (r *jobRuntime) closeResources() error {
	var err error
	for _, closeFn := range r.closers {
		err = errors.Join(err, closeFn())
	}
	r.closers = nil
	return err
}

func setupJobs(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *jobRuntime, err error) {
	rt := &jobRuntime{}
	// 途中で失敗した場合は開いた接続とジャニターを閉じる
	defer func() {
		if err != nil {
			err = errors.Join(err, rt.closeResources())
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	rt.closers = append(rt.closers, func() error {
		cancel()
		return nil
	})

	store, err := setupStore(ctx, cfg, logger, rt)
	if err != nil {
		return nil, err
	}

	var dispatcher jobs.Dispatcher
	switch cfg.JobDispatch {
	case config.DispatchAsynq:
		dispatcher, err = newAsynqDispatcher(cfg.QueueRedisURL, cfg.WorkerConcurrency, logger)
		if err != nil {
			return nil, err
		}
	default:
		dispatcher = jobs.NewInlineDispatcher()
	}

	engine := funnel.WithTimeout(funnel.NewMockEngine(cfg.EngineDelay), cfg.EngineTimeout)

	manager, err := jobs.NewManager(store, engine, dispatcher, logger)
	if err != nil {
		return nil, err
	}
	rt.manager = manager
	return rt, nil
}

func setupStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, rt *jobRuntime) (jobs.Store, error) {
	if cfg.JobStore == config.StoreRedis {
		opt, err := redis.ParseURL(cfg.QueueRedisURL)
		if err != nil {
			return nil, err
		}
		redisClient := redis.NewClient(opt)
		store := jobs.NewRedisStore(redisClient, cfg.JobTTL())
		if err := store.Ping(ctx); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		rt.closers = append(rt.closers, redisClient.Close)
		return store, nil
	}

	store := jobs.NewMemoryStore(cfg.JobTTL())
	if cfg.JobTTL() > 0 {
		go store.RunJanitor(ctx, janitorInterval, func(n int) {
			logger.Info("evicted expired analyses", slog.Int("count", n))
		})
	}
	return store, nil
}
