// Package config は環境変数（および.envファイル）からアプリケーション設定を読み込みます
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// 上流マーケットデータAPI設定
	API APIConfig

	// ジョブ実行制御
	Jobs JobsConfig

	// HTTPトリガーサーバー設定
	Server ServerConfig

	// 失敗通知設定
	Notify NotifyConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN はpgx用の接続文字列を返します
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// APIConfig は上流マーケットデータAPIの設定
type APIConfig struct {
	BaseURL string
	// APIKey は全リクエストに付与する静的キー。未設定はクライアント構築時に即エラー
	APIKey string
	// RateLimit はRateWindowあたりの最大リクエスト数
	RateLimit  int
	RateWindow time.Duration
	// MaxRetries はリトライ可能エラー時の最大リトライ回数
	MaxRetries int
	Timeout    time.Duration
}

// JobsConfig はジョブ実行の制御パラメータ
type JobsConfig struct {
	// CatchUpWindow はキャッチアップで遡る営業日数の上限
	CatchUpWindow int
	// LockTTL はジョブロックのリース期間
	LockTTL time.Duration
	// HeartbeatStaleAfter はハートビートを陳腐化とみなすまでの時間
	HeartbeatStaleAfter time.Duration
	// CalendarLookBack / LookAhead はカレンダー更新の取得範囲（日数）
	CalendarLookBack  int
	CalendarLookAhead int
	// Schedules はジョブ名→cron式（schedulerコマンド用）
	Schedules map[string]string
}

// ServerConfig はHTTPトリガーサーバーの設定
type ServerConfig struct {
	Addr string
	// AuthToken はPOSTトリガーの認可トークン
	AuthToken string
	// Debug が真の場合、内部エラーの詳細をレスポンスに含める
	Debug bool
}

// NotifyConfig は失敗通知の設定
type NotifyConfig struct {
	// WebhookURL が空の場合はログ通知のみ
	WebhookURL string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "jpxsync"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "jpxsync"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		API: APIConfig{
			BaseURL:    getEnv("MARKET_API_BASE_URL", "https://api.jpx-market.example.com/v1"),
			APIKey:     getEnv("MARKET_API_KEY", ""),
			RateLimit:  getEnvAsInt("MARKET_API_RATE_LIMIT", 60),
			RateWindow: getEnvAsDuration("MARKET_API_RATE_WINDOW", time.Minute),
			MaxRetries: getEnvAsInt("MARKET_API_MAX_RETRIES", 3),
			Timeout:    getEnvAsDuration("MARKET_API_TIMEOUT", 60*time.Second),
		},
		Jobs: JobsConfig{
			CatchUpWindow:       getEnvAsInt("JOB_CATCHUP_WINDOW", 5),
			LockTTL:             getEnvAsDuration("JOB_LOCK_TTL", 10*time.Minute),
			HeartbeatStaleAfter: getEnvAsDuration("JOB_HEARTBEAT_STALE_AFTER", 25*time.Hour),
			CalendarLookBack:    getEnvAsInt("CALENDAR_LOOK_BACK_DAYS", 30),
			CalendarLookAhead:   getEnvAsInt("CALENDAR_LOOK_AHEAD_DAYS", 90),
			Schedules: map[string]string{
				"daily_quotes":      getEnv("SCHEDULE_DAILY_QUOTES", "0 19 * * 1-5"),
				"earnings_calendar": getEnv("SCHEDULE_EARNINGS_CALENDAR", "30 19 * * 1-5"),
				"trade_flows":       getEnv("SCHEDULE_TRADE_FLOWS", "0 20 * * 4"),
				"calendar_refresh":  getEnv("SCHEDULE_CALENDAR_REFRESH", "0 6 1 * *"),
			},
		},
		Server: ServerConfig{
			Addr:      getEnv("SERVER_ADDR", ":8080"),
			AuthToken: getEnv("SERVER_AUTH_TOKEN", ""),
			Debug:     getEnvAsBool("SERVER_DEBUG", false),
		},
		Notify: NotifyConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
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

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数をtime.Durationとして取得します（例: "60s", "10m"）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
