package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/growthgate/internal/model"
)

// NewCORSMiddleware はオリジン検証つきCORSミドルウェアを返す。
//
// 許可判定はアプリケーション固有の許可リストと全アプリケーション共通の
// デフォルトリストに基づく（判定規則はOriginAllowedを参照）。
// 許可されたオリジンは検証済みの値をそのまま反射する。credentialsと
// 共存させるため、ワイルドカード(*)をヘッダーに書くことはない。
// 許可されないクロスオリジンのリクエストはCORSヘッダーなしの403で拒否する。
// Originヘッダーなしのリクエスト（same-origin・curl等）は素通しする。
func NewCORSMiddleware(defaultOrigins []string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			var appOrigins []string
			if app, err := AppFromContext(r.Context()); err == nil {
				appOrigins = app.AllowedOrigins
			}

			if !OriginAllowed(origin, appOrigins, defaultOrigins) {
				slog.Warn("origin rejected",
					slog.String("origin", origin),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewOriginForbiddenError())
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Growth-Token, X-Client-Hint")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "86400")

			// OPTIONSプリフライトリクエストには204で応答
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
