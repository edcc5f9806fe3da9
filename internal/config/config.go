// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
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
// プロセス全体で共有するシークレットはここに集約し、
// アンビエントなグローバル状態は持たない。
type Config struct {
	// Database
	DatabaseURL string

	// Redis（レート制限カウンタの共有ストア）
	RedisURL string

	// Secrets
	ServiceKey       string // 管理スコープのサービス資格情報
	CapabilitySecret string // ケーパビリティトークンの署名シークレット
	ClaimTokenSecret string // クレームトークンの署名シークレット

	// Claim Token TTL
	VisitTokenTTL    time.Duration // visit-redirectフローのトークン有効期間
	ExchangeTokenTTL time.Duration // プログラマティック交換フローのトークン有効期間

	// Capability Token
	CapabilityTokenTTL time.Duration

	// Rate Limit
	RateLimitGeneral     int // 一般トラフィック（req/min/IP）
	RateLimitSensitive   int // クレジット獲得系操作（req/min/IP）
	RateLimitPerIdentity int // identity単位（req/hour）

	// CORS
	DefaultAllowedOrigins []string // 全アプリケーション共通の許可オリジン

	// Webhook
	WebhookTimeout time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ServiceKey = os.Getenv("SERVICE_KEY")
	if cfg.ServiceKey == "" {
		missing = append(missing, "SERVICE_KEY")
	}

	cfg.CapabilitySecret = os.Getenv("CAPABILITY_SECRET")
	if cfg.CapabilitySecret == "" {
		missing = append(missing, "CAPABILITY_SECRET")
	}

	cfg.ClaimTokenSecret = os.Getenv("CLAIM_TOKEN_SECRET")
	if cfg.ClaimTokenSecret == "" {
		missing = append(missing, "CLAIM_TOKEN_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.VisitTokenTTL = getEnvDuration("VISIT_TOKEN_TTL", 30*time.Minute)
	cfg.ExchangeTokenTTL = getEnvDuration("EXCHANGE_TOKEN_TTL", 5*time.Minute)
	cfg.CapabilityTokenTTL = getEnvDuration("CAPABILITY_TOKEN_TTL", 90*24*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSensitive = getEnvInt("RATE_LIMIT_SENSITIVE", 20)
	cfg.RateLimitPerIdentity = getEnvInt("RATE_LIMIT_PER_IDENTITY", 300)
	cfg.DefaultAllowedOrigins = getEnvStringList("DEFAULT_ALLOWED_ORIGINS", []string{"*.vusercontent.net"})
	cfg.WebhookTimeout = getEnvDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvStringList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
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
