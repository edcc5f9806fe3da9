package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/growthgate/internal/captoken"
	"github.com/hitoshi/growthgate/internal/metrics"
	"github.com/hitoshi/growthgate/internal/middleware"
	"github.com/hitoshi/growthgate/internal/ratelimit"
	"github.com/hitoshi/growthgate/internal/repository"
)

// RateLimitSettings はルーター全体のレート制限設定。
type RateLimitSettings struct {
	General        int           // 一般トラフィック（window あたり/IP）
	Sensitive      int           // クレジット獲得系操作（window あたり/IP）
	PerIdentity    int           // identity単位（IdentityWindow あたり）
	Window         time.Duration // IP制限のウィンドウ
	IdentityWindow time.Duration // identity制限のウィンドウ
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// 認証
	ServiceKey       string
	CapabilityIssuer *captoken.Issuer
	Apps             repository.AppRepository

	// identity解決
	IdentityResolver middleware.IdentityResolver
	CodeAssigner     CodeAssigner
	IdentityFinder   IdentityFinder

	// サービス
	ReferralService ReferralServiceInterface
	ProfileService  ProfileServiceInterface
	CreditService   CreditServiceInterface

	// 管理
	CapabilityTokenTTL time.Duration

	// ハンドラー設定
	ReferralConfig ReferralHandlerConfig

	// レート制限
	Limiter   ratelimit.Limiter
	RateLimit RateLimitSettings

	// CORS
	DefaultOrigins []string

	// インフラ
	DB       Pinger
	Gatherer prometheus.Gatherer
	Metrics  metrics.MetricsCollector
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → Metrics → BotFilter
//	/api/*:   Capability → CORS → IPRateLimit(general) → Identity → IdentityRateLimit
//	獲得系:   + RequireHuman + IPRateLimit(sensitive)
//	/admin/*: ServiceKey のみ（CORS対象外）
//	/r/*:     IPRateLimit(general) のみ（未認証のリンク踏みを通す）
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	r.Use(middleware.NewBotFilterMiddleware())

	referralService := deps.ReferralService
	profileService := deps.ProfileService
	if deps.Metrics != nil {
		referralService = &instrumentedReferralService{inner: referralService, collector: deps.Metrics}
		profileService = &instrumentedProfileService{inner: profileService, collector: deps.Metrics}
	}

	referralHandler := NewReferralHandler(referralService, deps.CodeAssigner, deps.Apps, deps.ReferralConfig)
	profileHandler := NewProfileHandler(profileService)
	creditHandler := NewCreditHandler(deps.CreditService, deps.IdentityFinder)
	adminHandler := NewAdminHandler(deps.Apps, deps.CapabilityIssuer, deps.CapabilityTokenTTL)
	healthHandler := NewHealthHandler(deps.DB)

	generalLimit := middleware.NewIPRateLimitMiddleware(deps.Limiter, "general", deps.RateLimit.General, deps.RateLimit.Window)
	sensitiveLimit := middleware.NewIPRateLimitMiddleware(deps.Limiter, "sensitive", deps.RateLimit.Sensitive, deps.RateLimit.Window)
	identityLimit := middleware.NewIdentityRateLimitMiddleware(deps.Limiter, deps.RateLimit.PerIdentity, deps.RateLimit.IdentityWindow)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler.Health)
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	// 紹介リンクの踏み手は未認証
	r.With(generalLimit).Get("/r/{code}", referralHandler.Visit)

	// --- ウィジェットAPI（ケーパビリティトークン必須） ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCapabilityMiddleware(deps.CapabilityIssuer, deps.Apps))
		r.Use(middleware.NewCORSMiddleware(deps.DefaultOrigins))
		r.Use(generalLimit)
		r.Use(middleware.NewIdentityMiddleware(deps.IdentityResolver))
		r.Use(identityLimit)

		// 読み取り系: 自動化クライアントにも応答する
		r.Get("/api/credits/balance", creditHandler.Balance)
		r.Get("/api/referral/code", referralHandler.GetCode)

		// クレジット獲得系: 自動化クライアント拒否 + 獲得系レート制限
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireHuman)
			r.Use(sensitiveLimit)

			r.Post("/api/referral/exchange", referralHandler.Exchange)
			r.Post("/api/referral/claim", referralHandler.Claim)
			r.Post("/api/profile/name", profileHandler.SetName)
			r.Post("/api/profile/email-verified", profileHandler.EmailVerified)
		})
	})

	// --- 管理スコープ（サービス資格情報必須、CORS対象外） ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewServiceKeyMiddleware(deps.ServiceKey))

		r.Post("/admin/apps", adminHandler.CreateApp)
		r.Post("/admin/apps/{id}/tokens", adminHandler.IssueToken)
		r.Post("/admin/credits/adjust", creditHandler.Adjust)
	})

	return r
}
