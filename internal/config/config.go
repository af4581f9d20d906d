// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 開発用のデフォルト秘密鍵。release モードでは使用を禁止します。
const (
	DefaultSessionSecret = "fingerprint_customer"
	DefaultTokenSecret   = "access"
)

// セッションストアの種別
const (
	SessionBackendMemory = "memory"
	SessionBackendRedis  = "redis"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// ログ設定
	LogLevel  string // zerolog のレベル (debug, info, warn, error)
	LogFormat string // console または json

	// 認証設定
	SessionSecret       string // セッションクッキー署名用の秘密鍵
	TokenSecret         string // アクセストークン署名用の秘密鍵
	TokenTTLMinutes     int    // アクセストークンの有効期限（分）
	SessionGraceMinutes int    // トークン失効後もセッション記録とクッキーを保持する期間（分）

	// セッションストア設定
	SessionBackend  string // memory または redis
	SessionRedisURL string // SessionBackend=redis の場合の接続URL

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ループバック取得（/async/*）設定
	UpstreamBaseURL        string // 取得先のベースURL
	UpstreamTimeoutSeconds int    // 取得のタイムアウト（秒）

	// トレーシング設定
	TracingEnabled    bool    // OpenTelemetry によるトレース送信の有無
	TracingEndpoint   string  // OTLP/HTTP の送信先 (host:port)
	TracingSampleRate float64 // サンプリング率 (0.0〜1.0)

	ShutdownTimeoutSeconds int
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	port := getEnv("PORT", "5000")
	config := &Config{
		Port:    port,
		GinMode: getEnv("GIN_MODE", "debug"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		SessionSecret:   getEnv("SESSION_SECRET", DefaultSessionSecret),
		TokenSecret:     getEnv("TOKEN_SECRET", DefaultTokenSecret),
		TokenTTLMinutes: getEnvAsInt("TOKEN_TTL_MINUTES", 60),

		SessionGraceMinutes: getEnvAsInt("SESSION_GRACE_MINUTES", 1440),

		SessionBackend:  strings.ToLower(getEnv("SESSION_BACKEND", SessionBackendMemory)),
		SessionRedisURL: getEnv("SESSION_REDIS_URL", ""),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		UpstreamBaseURL:        getEnv("UPSTREAM_BASE_URL", "http://localhost:"+port),
		UpstreamTimeoutSeconds: getEnvAsInt("UPSTREAM_TIMEOUT_SECONDS", 5),

		TracingEnabled:    getEnvAsBool("TRACING_ENABLED", false),
		TracingEndpoint:   getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingSampleRate: getEnvAsFloat("TRACING_SAMPLE_RATE", 1.0),

		ShutdownTimeoutSeconds: getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 10),
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
	if c.TokenTTLMinutes <= 0 {
		return fmt.Errorf("TOKEN_TTL_MINUTES must be positive, got %d", c.TokenTTLMinutes)
	}

	if c.SessionGraceMinutes <= 0 {
		return fmt.Errorf("SESSION_GRACE_MINUTES must be positive, got %d", c.SessionGraceMinutes)
	}

	switch c.SessionBackend {
	case SessionBackendMemory:
	case SessionBackendRedis:
		if c.SessionRedisURL == "" {
			return fmt.Errorf("SESSION_REDIS_URL is required when SESSION_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown SESSION_BACKEND %q", c.SessionBackend)
	}

	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be within [0, 1], got %v", c.TracingSampleRate)
	}

	// ローカル開発ではデフォルトの秘密鍵を許容する
	if c.GinMode == "release" {
		if c.SessionSecret == "" || c.SessionSecret == DefaultSessionSecret {
			return fmt.Errorf("SESSION_SECRET must be set in release mode")
		}
		if c.TokenSecret == "" || c.TokenSecret == DefaultTokenSecret {
			return fmt.Errorf("TOKEN_SECRET must be set in release mode")
		}
	}

	return nil
}

// TokenTTL はアクセストークンの有効期間を返します。
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMinutes) * time.Minute
}

// SessionGrace はトークン失効後もセッションを保持する期間を返します。
func (c *Config) SessionGrace() time.Duration {
	return time.Duration(c.SessionGraceMinutes) * time.Minute
}

// UpstreamTimeout はループバック取得のタイムアウトを返します。
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

// ShutdownTimeout はグレースフルシャットダウンの待ち時間を返します。
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
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
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat は環境変数を浮動小数点数として取得します。
func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}
