// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ジョブストアの種別
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// ディスパッチ方式
const (
	DispatchInline = "inline"
	DispatchAsynq  = "asynq"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サービス情報
	Title   string // API_TITLE
	Version string // API_VERSION
	Debug   bool   // DEBUG（API ドキュメントの公開可否も兼ねる）

	// サーバー設定
	Port            string
	ShutdownTimeout time.Duration

	// CORS許可オリジン
	CORSAllowedOrigins []string

	// ジョブ/キュー設定
	JobStore          string        // memory | redis
	JobDispatch       string        // inline | asynq
	QueueRedisURL     string        // Redis 接続URL（redis ストア / asynq 用）
	JobExpireMinutes  int           // 終端ジョブの保持期間（0 は無期限）
	WorkerConcurrency int           // asynq ワーカーの並列数
	EngineTimeout     time.Duration // 分析エンジンの実行上限
	EngineDelay       time.Duration // モックエンジンの擬似処理時間
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	origins, err := parseOrigins(getEnv("BACKEND_CORS_ORIGINS", `["*"]`))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Title:   getEnv("API_TITLE", "Funnel Research MVP"),
		Version: getEnv("API_VERSION", "1.0.0"),
		Debug:   getEnvAsBool("DEBUG", false),

		Port:            getEnv("PORT", "8000"),
		ShutdownTimeout: time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,

		CORSAllowedOrigins: origins,

		JobStore:          strings.ToLower(getEnv("JOB_STORE", StoreMemory)),
		JobDispatch:       strings.ToLower(getEnv("JOB_DISPATCH", DispatchInline)),
		QueueRedisURL:     getEnv("QUEUE_REDIS_URL", "redis://127.0.0.1:6379/0"),
		JobExpireMinutes:  getEnvAsInt("JOB_EXPIRE_MINUTES", 0),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
		EngineTimeout:     time.Duration(getEnvAsInt("ENGINE_TIMEOUT_SECONDS", 60)) * time.Second,
		EngineDelay:       time.Duration(getEnvAsInt("ENGINE_DELAY_SECONDS", 10)) * time.Second,
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	switch c.JobStore {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("JOB_STORE must be %q or %q, got %q", StoreMemory, StoreRedis, c.JobStore)
	}
	switch c.JobDispatch {
	case DispatchInline, DispatchAsynq:
	default:
		return fmt.Errorf("JOB_DISPATCH must be %q or %q, got %q", DispatchInline, DispatchAsynq, c.JobDispatch)
	}
	// asynq のワーカーは別ゴルーチン/別プロセスからレコードを読むため Redis ストアが必須
	if c.JobDispatch == DispatchAsynq && c.JobStore != StoreRedis {
		return fmt.Errorf("JOB_DISPATCH=asynq requires JOB_STORE=redis")
	}
	if (c.JobStore == StoreRedis || c.JobDispatch == DispatchAsynq) && c.QueueRedisURL == "" {
		return fmt.Errorf("QUEUE_REDIS_URL is required for redis store or asynq dispatch")
	}
	if c.JobExpireMinutes < 0 {
		return fmt.Errorf("JOB_EXPIRE_MINUTES must not be negative")
	}
	return nil
}

// JobTTL は終端ジョブの保持期間を返します。0 は無期限です。
func (c *Config) JobTTL() time.Duration {
	return time.Duration(c.JobExpireMinutes) * time.Minute
}

// AllowsAllOrigins は CORS で全オリジンを許可するかどうかを返します。
func (c *Config) AllowsAllOrigins() bool {
	for _, o := range c.CORSAllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// parseOrigins は JSON 配列またはカンマ区切りのオリジン指定を解釈します。
func parseOrigins(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	var list []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("BACKEND_CORS_ORIGINS must be a JSON array or comma separated list: %w", err)
		}
	} else {
		list = strings.Split(raw, ",")
	}

	origins := make([]string, 0, len(list))
	for _, o := range list {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}
