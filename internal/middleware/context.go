// Package middleware はHTTPミドルウェア群を提供する。
package middleware

import (
	"context"
	"errors"

	"github.com/hitoshi/growthgate/internal/model"
)

type contextKey string

const (
	appContextKey       contextKey = "app"
	identityContextKey  contextKey = "identity"
	automatedContextKey contextKey = "automated"
)

// ErrNoAppInContext はコンテキストにアプリケーションが存在しないことを表す。
var ErrNoAppInContext = errors.New("no app in context")

// ErrNoIdentityInContext はコンテキストにidentityが存在しないことを表す。
var ErrNoIdentityInContext = errors.New("no identity in context")

// WithApp は認証済みアプリケーションをコンテキストに格納する。
func WithApp(ctx context.Context, app *model.App) context.Context {
	return context.WithValue(ctx, appContextKey, app)
}

// AppFromContext はコンテキストから認証済みアプリケーションを取得する。
func AppFromContext(ctx context.Context) (*model.App, error) {
	app, ok := ctx.Value(appContextKey).(*model.App)
	if !ok || app == nil {
		return nil, ErrNoAppInContext
	}
	return app, nil
}

// WithIdentity は解決済みidentityをコンテキストに格納する。
func WithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext はコンテキストから解決済みidentityを取得する。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, ErrNoIdentityInContext
	}
	return identity, nil
}

// markAutomated はリクエストを自動化クライアント由来としてマークする。
func markAutomated(ctx context.Context) context.Context {
	return context.WithValue(ctx, automatedContextKey, true)
}

// IsAutomated はリクエストが自動化クライアント由来とマークされているかを返す。
func IsAutomated(ctx context.Context) bool {
	automated, ok := ctx.Value(automatedContextKey).(bool)
	return ok && automated
}
