package config

import (
	"testing"
	"time"
)

// requiredEnv はテスト用の必須環境変数一式を設定する。
func requiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/growthgate?sslmode=disable")
	t.Setenv("SERVICE_KEY", "svc-key-test")
	t.Setenv("CAPABILITY_SECRET", "cap-secret-test")
	t.Setenv("CLAIM_TOKEN_SECRET", "claim-secret-test")
	t.Setenv("BASE_URL", "http://localhost:8080")
}

// 必須環境変数がすべて設定されていれば読み込みに成功することを検証
func TestLoad_Success(t *testing.T) {
	requiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServiceKey != "svc-key-test" {
		t.Errorf("ServiceKey = %q, want %q", cfg.ServiceKey, "svc-key-test")
	}
	if cfg.ClaimTokenSecret != "claim-secret-test" {
		t.Errorf("ClaimTokenSecret = %q, want %q", cfg.ClaimTokenSecret, "claim-secret-test")
	}
}

// 必須環境変数が欠けている場合にエラーになることを検証
func TestLoad_MissingRequired(t *testing.T) {
	requiredEnv(t)
	t.Setenv("CLAIM_TOKEN_SECRET", "")

	if _, err := Load(); err == nil {
		t.Error("Load() error = nil, want error for missing CLAIM_TOKEN_SECRET")
	}
}

// デフォルト値が適用されることを検証
func TestLoad_Defaults(t *testing.T) {
	requiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.VisitTokenTTL != 30*time.Minute {
		t.Errorf("VisitTokenTTL = %v, want %v", cfg.VisitTokenTTL, 30*time.Minute)
	}
	if cfg.ExchangeTokenTTL != 5*time.Minute {
		t.Errorf("ExchangeTokenTTL = %v, want %v", cfg.ExchangeTokenTTL, 5*time.Minute)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want 120", cfg.RateLimitGeneral)
	}
	if cfg.RateLimitSensitive != 20 {
		t.Errorf("RateLimitSensitive = %d, want 20", cfg.RateLimitSensitive)
	}
	if len(cfg.DefaultAllowedOrigins) != 1 || cfg.DefaultAllowedOrigins[0] != "*.vusercontent.net" {
		t.Errorf("DefaultAllowedOrigins = %v, want [*.vusercontent.net]", cfg.DefaultAllowedOrigins)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
}

// BASE_URLがhttpsの場合のみCookieSecureが有効になることを検証
func TestLoad_CookieSecure(t *testing.T) {
	requiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure = true for http BASE_URL, want false")
	}

	t.Setenv("BASE_URL", "https://growthgate.example.com")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure = false for https BASE_URL, want true")
	}
}

// オリジンリストがカンマ区切りで読み込まれることを検証
func TestLoad_OriginList(t *testing.T) {
	requiredEnv(t)
	t.Setenv("DEFAULT_ALLOWED_ORIGINS", "*.vusercontent.net, widgets.example.com ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"*.vusercontent.net", "widgets.example.com"}
	if len(cfg.DefaultAllowedOrigins) != len(want) {
		t.Fatalf("DefaultAllowedOrigins = %v, want %v", cfg.DefaultAllowedOrigins, want)
	}
	for i, w := range want {
		if cfg.DefaultAllowedOrigins[i] != w {
			t.Errorf("DefaultAllowedOrigins[%d] = %q, want %q", i, cfg.DefaultAllowedOrigins[i], w)
		}
	}
}

// 不正な形式のオプション値がデフォルトにフォールバックすることを検証
func TestLoad_InvalidOptionalFallsBack(t *testing.T) {
	requiredEnv(t)
	t.Setenv("RATE_LIMIT_GENERAL", "not-a-number")
	t.Setenv("VISIT_TOKEN_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want default 120", cfg.RateLimitGeneral)
	}
	if cfg.VisitTokenTTL != 30*time.Minute {
		t.Errorf("VisitTokenTTL = %v, want default 30m", cfg.VisitTokenTTL)
	}
}
