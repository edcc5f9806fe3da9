package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/growthgate/internal/identity"
	"github.com/hitoshi/growthgate/internal/model"
)

// IdentityResolver はリクエスト文脈を匿名identityに解決するインターフェース。
type IdentityResolver interface {
	Resolve(ctx context.Context, app *model.App, clientHint string, reqCtx identity.RequestContext) (*model.Identity, error)
}

// NewIdentityMiddleware はリクエスト元を匿名identityに解決してコンテキストに
// 格納するミドルウェアを返す。認証済みアプリケーションがコンテキストに
// 存在する必要がある（NewCapabilityMiddlewareの後に配置）。
func NewIdentityMiddleware(resolver IdentityResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			app, err := AppFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			reqCtx := identity.RequestContext{
				ClientIP:       ClientIP(r),
				UserAgent:      r.UserAgent(),
				AcceptLanguage: r.Header.Get("Accept-Language"),
			}

			resolved, err := resolver.Resolve(r.Context(), app, r.Header.Get("X-Client-Hint"), reqCtx)
			if err != nil {
				slog.Error("failed to resolve identity",
					slog.String("app_id", app.ID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), resolved)))
		})
	}
}
