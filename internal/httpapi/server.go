// Package httpapi はファネル分析 API の HTTP ハンドラーを提供します。
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/funnel-research/internal/config"
	"github.com/yourusername/funnel-research/internal/funnel"
	"github.com/yourusername/funnel-research/internal/jobs"
)

const docsPath = "/docs"

// AnalysisService はジョブの投入と参照を提供します。
type AnalysisService interface {
	Submit(ctx context.Context, input funnel.Request) (*jobs.Record, error)
	GetRecord(ctx context.Context, jobID string) (*jobs.Record, error)
}

// Server は API のルーティングと依存関係をまとめます。
type Server struct {
	cfg     *config.Config
	service AnalysisService
	logger  *slog.Logger
	now     func() time.Time
}

// NewServer は Server を作成します。
func NewServer(cfg *config.Config, service AnalysisService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		service: service,
		logger:  logger,
		now:     time.Now,
	}
}

// Router はミドルウェアとルートを設定した gin.Engine を返します。
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(s.logger))
	router.Use(gin.CustomRecovery(s.recoverPanic))
	router.Use(cors.New(s.corsConfig()))

	router.GET("/", s.handleRoot)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health/", s.handleHealth)

		analysis := v1.Group("/funnel-analysis")
		{
			analysis.POST("", s.handleCreateAnalysis)
			analysis.GET("/:analysis_id", s.handleGetAnalysis)
			analysis.GET("/:analysis_id/status", s.handleGetAnalysisStatus)
		}
	}

	if s.cfg.Debug {
		router.GET(docsPath, s.handleDocs(router))
	}

	return router
}

func (s *Server) corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	if s.cfg.AllowsAllOrigins() || len(s.cfg.CORSAllowedOrigins) == 0 {
		// 全許可の場合は資格情報付きリクエストを許可できない
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.CORSAllowedOrigins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	return corsConfig
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// handleRoot はサービスのメタデータを返します。
func (s *Server) handleRoot(c *gin.Context) {
	var docsURL any
	if s.cfg.Debug {
		docsURL = docsPath
	}
	c.JSON(http.StatusOK, gin.H{
		"name":      s.cfg.Title,
		"version":   s.cfg.Version,
		"status":    "healthy",
		"docs_url":  docsURL,
		"timestamp": s.timestamp(),
	})
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。ジョブストアには依存しません。
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":             "healthy",
		"timestamp":          s.timestamp(),
		"version":            s.cfg.Version,
		"database_connected": true,
	})
}

// handleDocs は登録済みルートの一覧を返します（DEBUG 時のみ）。
func (s *Server) handleDocs(router *gin.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		routes := router.Routes()
		list := make([]gin.H, 0, len(routes))
		for _, r := range routes {
			list = append(list, gin.H{"method": r.Method, "path": r.Path})
		}
		c.JSON(http.StatusOK, gin.H{
			"title":   s.cfg.Title,
			"version": s.cfg.Version,
			"routes":  list,
		})
	}
}

// handleCreateAnalysis は POST /api/v1/funnel-analysis のハンドラーです。
func (s *Server) handleCreateAnalysis(c *gin.Context) {
	var req analysisRequest
	if err := bindAnalysisRequest(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"code":    "INVALID_INPUT",
			"message": validationMessage(err),
		})
		return
	}

	record, err := s.service.Submit(c.Request.Context(), req.toInput())
	if err != nil {
		s.respondInternal(c, "create_analysis", "", err, "Failed to start analysis")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"message":     "Analysis started successfully",
		"analysis_id": record.ID,
		"status":      record.Status,
	})
}

// handleGetAnalysis は GET /api/v1/funnel-analysis/:analysis_id のハンドラーです。
func (s *Server) handleGetAnalysis(c *gin.Context) {
	record, ok := s.lookup(c, "get_analysis")
	if !ok {
		return
	}

	payload := gin.H{
		"success":     true,
		"message":     "Analysis retrieved successfully",
		"analysis_id": record.ID,
		"status":      record.Status,
	}
	switch record.Status {
	case jobs.StatusCompleted:
		payload["data"] = record.Result
	case jobs.StatusFailed:
		if record.Error != nil {
			payload["error"] = record.Error
		}
	}
	c.JSON(http.StatusOK, payload)
}

// handleGetAnalysisStatus は GET /api/v1/funnel-analysis/:analysis_id/status のハンドラーです。
func (s *Server) handleGetAnalysisStatus(c *gin.Context) {
	record, ok := s.lookup(c, "get_analysis_status")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"analysis_id": record.ID,
		"status":      record.Status,
		"timestamp":   s.timestamp(),
	})
}

func (s *Server) lookup(c *gin.Context, op string) (*jobs.Record, bool) {
	analysisID := strings.TrimSpace(c.Param("analysis_id"))
	if analysisID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"code":    "INVALID_INPUT",
			"message": "analysis_id is required",
		})
		return nil, false
	}

	record, err := s.service.GetRecord(c.Request.Context(), analysisID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"code":    "ANALYSIS_NOT_FOUND",
				"message": "Analysis not found",
			})
			return nil, false
		}
		s.respondInternal(c, op, analysisID, err, "Failed to retrieve analysis")
		return nil, false
	}
	return record, true
}

// respondInternal は詳細をログに残し、クライアントには汎用メッセージだけを返します。
func (s *Server) respondInternal(c *gin.Context, op, analysisID string, err error, message string) {
	s.logger.Error(message,
		slog.String("operation", op),
		slog.String("analysis_id", analysisID),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"code":    "INTERNAL_ERROR",
		"message": message,
	})
}

func (s *Server) recoverPanic(c *gin.Context, recovered any) {
	s.logger.Error("panic while handling request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Any("panic", recovered),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"code":    "INTERNAL_ERROR",
		"message": "Internal server error",
	})
}

// requestLogger はリクエストごとにアクセスログを出力します。
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}
