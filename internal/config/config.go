package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort  string
	SiteBaseURL string

	// Admin
	AdminToken string

	// Fetch
	FetchInterval     time.Duration
	FetchStartupDelay time.Duration
	FetchTimeout      time.Duration
	FetchMaxSize      int64
	FeedItemLimit     int

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// Telegram
	TelegramBotToken string
	TelegramChatID   string

	// Web Push
	VAPIDPublicKey  string
	VAPIDPrivateKey string

	// Rate Limit
	RateLimitGeneral int

	// Push購読のクリーンアップ
	PushCleanupRetention time.Duration

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// GEMINI_API_KEYとTELEGRAM_BOT_TOKENは任意であり、未設定の場合は
// 該当機能（AI書き換え、Telegram通知）が無効化される。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SiteBaseURL = os.Getenv("SITE_BASE_URL")
	if cfg.SiteBaseURL == "" {
		missing = append(missing, "SITE_BASE_URL")
	}

	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	if cfg.AdminToken == "" {
		missing = append(missing, "ADMIN_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.SiteBaseURL = strings.TrimRight(cfg.SiteBaseURL, "/")

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.FetchInterval = getEnvDuration("FETCH_INTERVAL", 10*time.Minute)
	cfg.FetchStartupDelay = getEnvDuration("FETCH_STARTUP_DELAY", 5*time.Second)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FeedItemLimit = getEnvInt("FEED_ITEM_LIMIT", 5)
	cfg.GeminiAPIKey = getEnvString("GEMINI_API_KEY", "")
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.0-flash")
	cfg.TelegramBotToken = getEnvString("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramChatID = getEnvString("TELEGRAM_CHAT_ID", "")
	cfg.VAPIDPublicKey = getEnvString("VAPID_PUBLIC_KEY", "")
	cfg.VAPIDPrivateKey = getEnvString("VAPID_PRIVATE_KEY", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.PushCleanupRetention = getEnvDuration("PUSH_CLEANUP_RETENTION", 30*24*time.Hour)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// EnrichmentEnabled はAIによる記事書き換えが有効かを返す。
func (c *Config) EnrichmentEnabled() bool {
	return c.GeminiAPIKey != ""
}

// TelegramEnabled はTelegram通知が有効かを返す。
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
