// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/funnel-research/internal/config"
	"github.com/yourusername/funnel-research/internal/httpapi"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ジョブ基盤の組み立て
	rt, err := setupJobs(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up jobs", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := rt.manager.StartWorkers(); err != nil {
		logger.Error("failed to start workers", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := httpapi.NewServer(cfg, rt.manager, logger)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.Router(),
	}

	go func() {
		logger.Info("Starting Funnel Research API",
			slog.String("addr", srv.Addr),
			slog.String("version", cfg.Version),
			slog.String("store", cfg.JobStore),
			slog.String("dispatch", cfg.JobDispatch),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped with error", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down Funnel Research API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", slog.String("error", err.Error()))
	}
	if err := rt.Close(shutdownCtx); err != nil {
		logger.Error("job shutdown failed", slog.String("error", err.Error()))
	}
}

// newLogger は JSON 形式の構造化ロガーを作成します。
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With(slog.String("service", cfg.Title))
}
