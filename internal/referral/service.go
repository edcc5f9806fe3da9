// Package referral は紹介リンクの訪問・トークン交換・クレームのフローを提供する。
package referral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/growthgate/internal/claimtoken"
	"github.com/hitoshi/growthgate/internal/ledger"
	"github.com/hitoshi/growthgate/internal/model"
	"github.com/hitoshi/growthgate/internal/notify"
	"github.com/hitoshi/growthgate/internal/repository"
)

// VisitResult は紹介リンク訪問の結果を表す。
type VisitResult struct {
	// Token はリダイレクト先へ引き渡す訪問トークン。
	Token string
	// ExpiresIn はトークンの有効秒数。
	ExpiresIn int64
	// VisitCount はこのコードの累計訪問回数。
	VisitCount int
}

// ExchangeResult はトークン交換の結果を表す。
type ExchangeResult struct {
	// Token はidentityに束縛された短命のクレームトークン。
	Token string
	// ExpiresIn はトークンの有効秒数。
	ExpiresIn int64
}

// ClaimResult はクレーム操作の結果を表す。
type ClaimResult struct {
	// Claimed は今回の呼び出しで紹介が成立したかどうか。
	// 既にクレーム済みだった場合はfalse（冪等な成功）。
	Claimed bool
	// ReferrerID は紹介元identityのID。
	ReferrerID string
	// Balance はクレーム操作後の被紹介者の残高。
	Balance int64
}

// Service は紹介フローの業務ロジックを提供する。
type Service struct {
	identities repository.IdentityRepository
	referrals  repository.ReferralRepository
	tokens     *claimtoken.Service
	ledger     *ledger.Service
	notifier   notify.Notifier

	visitTokenTTL    time.Duration
	exchangeTokenTTL time.Duration
}

// NewService はServiceを生成する。
func NewService(
	identities repository.IdentityRepository,
	referrals repository.ReferralRepository,
	tokens *claimtoken.Service,
	ledgerSvc *ledger.Service,
	notifier notify.Notifier,
	visitTokenTTL, exchangeTokenTTL time.Duration,
) *Service {
	return &Service{
		identities:       identities,
		referrals:        referrals,
		tokens:           tokens,
		ledger:           ledgerSvc,
		notifier:         notifier,
		visitTokenTTL:    visitTokenTTL,
		exchangeTokenTTL: exchangeTokenTTL,
	}
}

// Visit は紹介リンクの訪問を処理する。
// コードの形式を検証し、紹介元の存在を確認し、訪問カウンタを増やして
// 認証なしのリダイレクトをまたいで生き残る訪問トークンを発行する。
func (s *Service) Visit(ctx context.Context, app *model.App, code string) (*VisitResult, error) {
	if !model.ValidateReferralCode(code) {
		return nil, model.NewInvalidReferralCodeError(code)
	}

	referrer, err := s.identities.FindByReferralCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up referrer: %w", err)
	}
	if referrer == nil {
		return nil, model.NewReferralCodeNotFoundError(code)
	}

	rel, err := s.referrals.RecordVisit(ctx, &model.ReferralRelationship{
		ID:           uuid.New().String(),
		AppID:        app.ID,
		ReferralCode: code,
		ReferrerID:   referrer.ID,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record visit: %w", err)
	}

	token, err := s.tokens.Mint(code, "", s.visitTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to mint visit token: %w", err)
	}

	slog.Info("referral link visited",
		slog.String("app_id", app.ID),
		slog.String("referral_code", code),
		slog.Int("visit_count", rel.VisitCount),
	)
	return &VisitResult{
		Token:      token,
		ExpiresIn:  int64(s.visitTokenTTL.Seconds()),
		VisitCount: rel.VisitCount,
	}, nil
}

// Exchange は紹介コードから、解決済みidentityに束縛された短命のクレームトークンを発行する。
// 束縛後のトークンは他のidentityからはクレームに使えない。
// トークンは有効期間内であれば何度でも検証に成功するため、リトライは冪等。
func (s *Service) Exchange(ctx context.Context, identity *model.Identity, code string) (*ExchangeResult, error) {
	if !model.ValidateReferralCode(code) {
		return nil, model.NewInvalidReferralCodeError(code)
	}

	referrer, err := s.identities.FindByReferralCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up referrer: %w", err)
	}
	if referrer == nil {
		return nil, model.NewReferralCodeNotFoundError(code)
	}

	bound, err := s.tokens.Mint(code, identity.ID, s.exchangeTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to mint bound token: %w", err)
	}

	return &ExchangeResult{
		Token:     bound,
		ExpiresIn: int64(s.exchangeTokenTTL.Seconds()),
	}, nil
}

// Claim はクレームトークンを検証し、紹介関係を確定してボーナスを付与する。
//
// 確定はVISITED→CLAIMEDの単一の条件付き遷移で行い、並行クレームでも
// ちょうど1組の紹介関係だけが成立する（first-claim-wins）。
// 既にクレーム済みの関係への再クレームはエラーにせず既存の状態を返す。
func (s *Service) Claim(ctx context.Context, app *model.App, identity *model.Identity, token string) (*ClaimResult, error) {
	payload, err := s.tokens.Verify(token)
	if err != nil {
		return nil, model.NewInvalidTokenError()
	}

	// identityに束縛されたトークンは束縛先からのみ使用できる。
	// 不一致は署名不正と区別しない
	if payload.BoundIdentityID != "" && payload.BoundIdentityID != identity.ID {
		return nil, model.NewInvalidTokenError()
	}

	referrer, err := s.identities.FindByReferralCode(ctx, payload.ReferralCode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up referrer: %w", err)
	}
	if referrer == nil {
		return nil, model.NewInvalidTokenError()
	}

	// 自己紹介の遮断。自分のコードの保持者であることは偽造の手掛かりにしない
	if referrer.ID == identity.ID {
		return nil, model.NewInvalidTokenError()
	}

	rel, err := s.referrals.FindByAppAndCode(ctx, app.ID, payload.ReferralCode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up referral relationship: %w", err)
	}
	if rel == nil {
		// 訪問記録なしで直接クレームされた場合は関係行をここで作る
		rel, err = s.referrals.RecordVisit(ctx, &model.ReferralRelationship{
			ID:           uuid.New().String(),
			AppID:        app.ID,
			ReferralCode: payload.ReferralCode,
			ReferrerID:   referrer.ID,
			CreatedAt:    time.Now(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to materialize referral relationship: %w", err)
		}
	}

	// クレーム済みの関係に対する再クレームは冪等な成功
	if rel.State() == model.ReferralStateClaimed {
		balance, err := s.ledger.Balance(ctx, identity.ID)
		if err != nil {
			return nil, err
		}
		return &ClaimResult{Claimed: false, ReferrerID: rel.ReferrerID, Balance: balance}, nil
	}

	rel, won, err := s.referrals.Claim(ctx, rel.ID, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim referral: %w", err)
	}
	if !won {
		// 並行クレームに敗れた場合も冪等な成功として確定済みの状態を返す
		balance, err := s.ledger.Balance(ctx, identity.ID)
		if err != nil {
			return nil, err
		}
		return &ClaimResult{Claimed: false, ReferrerID: rel.ReferrerID, Balance: balance}, nil
	}

	// 被紹介者側のリンクも確定する。失敗しても関係行が正であり続ける
	if _, err := s.identities.SetReferredBy(ctx, identity.ID, referrer.ID); err != nil {
		slog.Warn("failed to set referred_by after claim",
			slog.String("identity_id", identity.ID),
			slog.String("error", err.Error()),
		)
	}

	// 紹介者ボーナス: 被紹介者ごとに繰り返し付与される。
	// 重複防止は関係行のfirst-claim-winsが担うためAppendでよい
	if err := s.ledger.Append(ctx, referrer.ID, model.ReferralReferrerAmount, model.ReasonReferralReferrer, map[string]string{
		"referred_identity_id": identity.ID,
		"referral_code":        payload.ReferralCode,
	}); err != nil {
		return nil, err
	}

	// 被紹介者ボーナス: identityにつき生涯1回
	grant, err := s.ledger.GrantOnce(ctx, identity.ID, model.ReferralReferredAmount, model.ReasonReferralReferred, map[string]string{
		"referrer_identity_id": referrer.ID,
		"referral_code":        payload.ReferralCode,
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, app, notify.Event{
		Type:       notify.EventReferralClaimed,
		AppID:      app.ID,
		IdentityID: identity.ID,
		Data: map[string]string{
			"referrerId":   referrer.ID,
			"referralCode": payload.ReferralCode,
		},
		OccurredAt: time.Now(),
	})

	slog.Info("referral claimed",
		slog.String("app_id", app.ID),
		slog.String("referral_code", payload.ReferralCode),
		slog.String("referrer_id", referrer.ID),
		slog.String("referred_id", identity.ID),
	)
	return &ClaimResult{Claimed: true, ReferrerID: referrer.ID, Balance: grant.Balance}, nil
}

// Stats は紹介コードの関係行（訪問回数・クレーム状態）を返す。
func (s *Service) Stats(ctx context.Context, app *model.App, code string) (*model.ReferralRelationship, error) {
	if !model.ValidateReferralCode(code) {
		return nil, model.NewInvalidReferralCodeError(code)
	}
	rel, err := s.referrals.FindByAppAndCode(ctx, app.ID, code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up referral relationship: %w", err)
	}
	if rel == nil {
		return nil, model.NewReferralCodeNotFoundError(code)
	}
	return rel, nil
}

// IsInvalidToken はエラーがトークン検証失敗かどうかを返す。
func IsInvalidToken(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidToken
}
