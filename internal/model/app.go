// Package model はドメインモデルを定義する。
package model

import "time"

// IsolationMode はアプリケーションの訪問者識別スコープを表す。
type IsolationMode string

const (
	// IsolationModeIsolated はアプリケーション単位で訪問者を識別する。
	IsolationModeIsolated IsolationMode = "isolated"
	// IsolationModeOrganization は同一組織内の全アプリケーションで訪問者を共有する。
	IsolationModeOrganization IsolationMode = "organization"
)

// App はウィジェットを埋め込むアプリケーション（テナント）を表す。
type App struct {
	ID             string
	Name           string
	OrganizationID string
	IsolationMode  IsolationMode
	AllowedOrigins []string // CORS許可オリジン（ワイルドカード "*.example.net" 形式を含む）
	WebhookURL     string   // イベント通知先。空の場合は通知しない
	CreatedAt      time.Time
}

// IdentityScope は訪問者識別のスコープを表すタグ付きバリアント。
// 解決はApp取得時に1回だけ行い、以降はScopeKeyを通して参照する。
type IdentityScope struct {
	mode  IsolationMode
	appID string
	orgID string
}

// ResolveScope はAppの分離モードからIdentityScopeを解決する。
func ResolveScope(app *App) IdentityScope {
	return IdentityScope{
		mode:  app.IsolationMode,
		appID: app.ID,
		orgID: app.OrganizationID,
	}
}

// Key は識別スコープの複合キー文字列を返す。
// isolated: "app:<appID>"、organization: "org:<orgID>"
func (s IdentityScope) Key() string {
	if s.mode == IsolationModeOrganization && s.orgID != "" {
		return "org:" + s.orgID
	}
	return "app:" + s.appID
}

// SharedWithinOrganization は組織内共有スコープかどうかを返す。
func (s IdentityScope) SharedWithinOrganization() bool {
	return s.mode == IsolationModeOrganization && s.orgID != ""
}
