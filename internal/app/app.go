// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/growthgate/internal/captoken"
	"github.com/hitoshi/growthgate/internal/claimtoken"
	"github.com/hitoshi/growthgate/internal/config"
	"github.com/hitoshi/growthgate/internal/database"
	"github.com/hitoshi/growthgate/internal/handler"
	"github.com/hitoshi/growthgate/internal/identity"
	"github.com/hitoshi/growthgate/internal/ledger"
	"github.com/hitoshi/growthgate/internal/logger"
	"github.com/hitoshi/growthgate/internal/metrics"
	"github.com/hitoshi/growthgate/internal/notify"
	"github.com/hitoshi/growthgate/internal/profile"
	"github.com/hitoshi/growthgate/internal/ratelimit"
	"github.com/hitoshi/growthgate/internal/referral"
	"github.com/hitoshi/growthgate/internal/repository"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	appRepo := repository.NewPostgresAppRepo(db)
	identityRepo := repository.NewPostgresIdentityRepo(db)
	referralRepo := repository.NewPostgresReferralRepo(db)
	ledgerRepo := repository.NewPostgresLedgerRepo(db)

	// 3. レート制限カウンタストアの選択
	// Redisが設定されていればインスタンス間で共有されるカウンタを使い、
	// 未設定ならプロセスローカルのカウンタにフォールバックする。
	limiter, err := newLimiter(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	// 4. トークンサービスの初期化
	claimTokens := claimtoken.New(cfg.ClaimTokenSecret)
	capIssuer := captoken.New(cfg.CapabilitySecret)

	// 5. ドメインサービスの初期化
	resolver := identity.NewResolver(identityRepo)
	notifier := notify.NewWebhookNotifier(cfg.WebhookTimeout)
	ledgerService := ledger.NewService(ledgerRepo)
	referralService := referral.NewService(
		identityRepo, referralRepo, claimTokens, ledgerService, notifier,
		cfg.VisitTokenTTL, cfg.ExchangeTokenTTL,
	)
	profileService := profile.NewService(ledgerService, notifier)

	// 6. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		Logger: slog.Default(),

		ServiceKey:       cfg.ServiceKey,
		CapabilityIssuer: capIssuer,
		Apps:             appRepo,

		IdentityResolver: resolver,
		CodeAssigner:     resolver,
		IdentityFinder:   identityRepo,

		ReferralService: referralService,
		ProfileService:  profileService,
		CreditService:   ledgerService,

		CapabilityTokenTTL: cfg.CapabilityTokenTTL,

		ReferralConfig: handler.ReferralHandlerConfig{
			BaseURL:        cfg.BaseURL,
			CookieSecure:   cfg.CookieSecure,
			CookieDomain:   cfg.CookieDomain,
			DefaultOrigins: cfg.DefaultAllowedOrigins,
		},

		Limiter: limiter,
		RateLimit: handler.RateLimitSettings{
			General:        cfg.RateLimitGeneral,
			Sensitive:      cfg.RateLimitSensitive,
			PerIdentity:    cfg.RateLimitPerIdentity,
			Window:         time.Minute,
			IdentityWindow: time.Hour,
		},

		DefaultOrigins: cfg.DefaultAllowedOrigins,

		DB:       db,
		Gatherer: registry,
		Metrics:  collector,
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newLimiter はレート制限のカウンタストアを生成する。
// redisURLが空の場合はプロセスローカルのLocalLimiterを返す。
func newLimiter(redisURL string) (ratelimit.Limiter, error) {
	if redisURL == "" {
		slog.Info("rate limiter using in-process counters (REDIS_URL not set)")
		return ratelimit.NewLocal(), nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	slog.Info("rate limiter using shared Redis counters",
		slog.String("addr", opts.Addr),
	)
	return ratelimit.NewRedis(client), nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
