// Package notify はアプリケーションへのイベント通知を提供する。
//
// 通知はベストエフォートのfire-and-forgetであり、台帳やトークンの正しさを
// 一切左右しない。配信保証（exactly-once）は提供しない。
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/hitoshi/growthgate/internal/model"
)

// イベント種別。
const (
	EventReferralClaimed = "referral.claimed"
	EventProfileName     = "profile.name_set"
	EventProfileEmail    = "profile.email_verified"
)

// Event はアプリケーションに通知するイベントを表す。
type Event struct {
	Type       string            `json:"type"`
	AppID      string            `json:"appId"`
	IdentityID string            `json:"identityId"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Notifier はイベント通知のインターフェース。
type Notifier interface {
	// Notify はイベントをアプリケーションのWebhookへ送信する。
	// 失敗してもエラーは返さずログに記録するのみ（ベストエフォート）。
	Notify(ctx context.Context, app *model.App, event Event)
}

// WebhookNotifier はアプリケーションのWebhook URLへHTTP POSTで通知する実装。
// 宛先はアプリケーション管理者が設定した外部URLのため、SSRF防止機能付きの
// クライアントで送信する（プライベートIP・ループバック・メタデータIPをブロック）。
type WebhookNotifier struct {
	client  *http.Client
	timeout time.Duration
}

// NewWebhookNotifier はWebhookNotifierを生成する。
func NewWebhookNotifier(timeout time.Duration) *WebhookNotifier {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return &WebhookNotifier{
		client:  safeurl.Client(config).Client,
		timeout: timeout,
	}
}

// Notify はイベントをアプリケーションのWebhookへ送信する。
// Webhook URL未設定のアプリケーションには何もしない。
func (n *WebhookNotifier) Notify(ctx context.Context, app *model.App, event Event) {
	if app == nil || app.WebhookURL == "" {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal webhook event",
			slog.String("app_id", app.ID),
			slog.String("event_type", event.Type),
			slog.String("error", err.Error()),
		)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, app.WebhookURL, bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build webhook request",
			slog.String("app_id", app.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Warn("webhook delivery failed",
			slog.String("app_id", app.ID),
			slog.String("event_type", event.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		slog.Warn("webhook delivery rejected",
			slog.String("app_id", app.ID),
			slog.String("event_type", event.Type),
			slog.Int("status", resp.StatusCode),
		)
	}
}

// NopNotifier は何もしないNotifier。テストおよびWebhook無効構成用。
type NopNotifier struct{}

// Notify は何もしない。
func (NopNotifier) Notify(ctx context.Context, app *model.App, event Event) {}

// compile-time interface check
var (
	_ Notifier = (*WebhookNotifier)(nil)
	_ Notifier = NopNotifier{}
)
