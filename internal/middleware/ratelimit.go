package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/growthgate/internal/model"
	"github.com/hitoshi/growthgate/internal/ratelimit"
)

// ClientIP はリクエスト元のIPアドレスを返す。
// 信頼できるプロキシ背後で動く前提で、X-Forwarded-Forの先頭値を優先する。
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewIPRateLimitMiddleware はIP単位のレート制限ミドルウェアを返す。
// keyPrefixで一般用・獲得系用のカウンタを分離する。
// 判定結果はX-RateLimit-*ヘッダーで常に応答に含める。
func NewIPRateLimitMiddleware(limiter ratelimit.Limiter, keyPrefix string, limit int, window time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyPrefix + ":" + ClientIP(r)
			decision := limiter.Allow(r.Context(), key, limit, window)
			writeRateLimitHeaders(w, decision)

			if !decision.Allowed {
				slog.Warn("rate limit exceeded",
					slog.String("key_prefix", keyPrefix),
					slog.String("client_ip", ClientIP(r)),
					slog.String("path", r.URL.Path),
				)
				writeRateLimitedResponse(w, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewIdentityRateLimitMiddleware はidentity単位のレート制限ミドルウェアを返す。
// コンテキストにidentityが未解決の場合は何もしない（IP制限が先に効く）。
func NewIdentityRateLimitMiddleware(limiter ratelimit.Limiter, limit int, window time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := IdentityFromContext(r.Context())
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			decision := limiter.Allow(r.Context(), "identity:"+identity.ID, limit, window)
			writeRateLimitHeaders(w, decision)

			if !decision.Allowed {
				slog.Warn("rate limit exceeded",
					slog.String("key_prefix", "identity"),
					slog.String("identity_id", identity.ID),
					slog.String("path", r.URL.Path),
				)
				writeRateLimitedResponse(w, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeRateLimitHeaders はクォータ・残量・リセット時刻のヘッダーを設定する。
func writeRateLimitHeaders(w http.ResponseWriter, decision ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
}

// writeRateLimitedResponse は429レスポンスを統一エラーフォーマットで書き込む。
func writeRateLimitedResponse(w http.ResponseWriter, decision ratelimit.Decision) {
	retryAfter := int(time.Until(decision.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError(decision.Limit, decision.ResetAt))
}
