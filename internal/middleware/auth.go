package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/growthgate/internal/captoken"
	"github.com/hitoshi/growthgate/internal/model"
)

// AppFinder はケーパビリティトークンの検証後にアプリケーションを引くインターフェース。
type AppFinder interface {
	FindByID(ctx context.Context, id string) (*model.App, error)
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimPrefix(auth, prefix)
}

// NewServiceKeyMiddleware は管理スコープのサービス資格情報を検証するミドルウェアを返す。
// 比較は定数時間で行う。失敗時は資格情報の有無・形式によらず同一のエラーを返す。
func NewServiceKeyMiddleware(serviceKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := bearerToken(r)
			if subtle.ConstantTimeCompare([]byte(given), []byte(serviceKey)) != 1 {
				slog.Warn("service key rejected",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewCapabilityMiddleware はアプリケーションのケーパビリティトークンを検証し、
// 対応するアプリケーションをコンテキストに格納するミドルウェアを返す。
// 署名不正・期限切れ・アプリケーション消滅のいずれも同一の401を返す。
func NewCapabilityMiddleware(issuer *captoken.Issuer, apps AppFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.Header.Get("X-Growth-Token")
			}

			claims, err := issuer.Verify(token)
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			app, err := apps.FindByID(r.Context(), claims.AppID)
			if err != nil {
				slog.Error("failed to load app for capability token",
					slog.String("app_id", claims.AppID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if app == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithApp(r.Context(), app)))
		})
	}
}
