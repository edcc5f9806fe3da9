// Package profile はプロフィール完成ボーナスの付与を提供する。
package profile

import (
	"context"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hitoshi/growthgate/internal/ledger"
	"github.com/hitoshi/growthgate/internal/model"
	"github.com/hitoshi/growthgate/internal/notify"
)

// nameMaxLength は表示名の最大長（rune数）。
const nameMaxLength = 100

// Result はプロフィール操作の結果を表す。
type Result struct {
	// Granted は今回の呼び出しでボーナスが付与されたかどうか。
	// 設定済みだった場合はfalse（冪等な成功）。
	Granted bool
	// Balance は操作後の残高。
	Balance int64
}

// Service はプロフィール完成イベントの処理を提供する。
// 各ボーナスはidentityにつき生涯1回のみ付与される。
type Service struct {
	ledger    *ledger.Service
	notifier  notify.Notifier
	sanitizer *bluemonday.Policy
}

// NewService はServiceを生成する。
func NewService(ledgerSvc *ledger.Service, notifier notify.Notifier) *Service {
	return &Service{
		ledger:   ledgerSvc,
		notifier: notifier,
		// 表示名はHTMLを一切許容しない
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// SetName は表示名の設定を処理し、初回のみボーナスを付与する。
// 名前自体はアプリケーション側が保持する。ここではタグ除去後の
// 内容が空でないことの検証とボーナス付与だけを行う。
func (s *Service) SetName(ctx context.Context, app *model.App, identity *model.Identity, name string) (*Result, error) {
	cleaned := strings.TrimSpace(s.sanitizer.Sanitize(name))
	if cleaned == "" {
		return nil, model.NewMissingFieldError("name")
	}
	if len([]rune(cleaned)) > nameMaxLength {
		cleaned = string([]rune(cleaned)[:nameMaxLength])
	}

	grant, err := s.ledger.GrantOnce(ctx, identity.ID, model.ProfileBonusAmount, model.ReasonProfileName, map[string]string{
		"app_id": app.ID,
	})
	if err != nil {
		return nil, err
	}

	if grant.Granted {
		s.notifier.Notify(ctx, app, notify.Event{
			Type:       notify.EventProfileName,
			AppID:      app.ID,
			IdentityID: identity.ID,
			Data:       map[string]string{"name": cleaned},
			OccurredAt: time.Now(),
		})
	}
	return &Result{Granted: grant.Granted, Balance: grant.Balance}, nil
}

// VerifyEmail はメール確認済みイベントを処理し、初回のみボーナスを付与する。
// メールアドレス自体は受け取らない（確認の事実だけをアプリケーションが伝える）。
func (s *Service) VerifyEmail(ctx context.Context, app *model.App, identity *model.Identity) (*Result, error) {
	grant, err := s.ledger.GrantOnce(ctx, identity.ID, model.ProfileBonusAmount, model.ReasonProfileEmail, map[string]string{
		"app_id": app.ID,
	})
	if err != nil {
		return nil, err
	}

	if grant.Granted {
		s.notifier.Notify(ctx, app, notify.Event{
			Type:       notify.EventProfileEmail,
			AppID:      app.ID,
			IdentityID: identity.ID,
			OccurredAt: time.Now(),
		})
	}
	return &Result{Granted: grant.Granted, Balance: grant.Balance}, nil
}
