package handler

import (
	"context"

	"github.com/hitoshi/growthgate/internal/metrics"
	"github.com/hitoshi/growthgate/internal/model"
	"github.com/hitoshi/growthgate/internal/profile"
	"github.com/hitoshi/growthgate/internal/referral"
)

// instrumentedReferralService は紹介サービスをラップし、トークン発行・
// 検証失敗・クレーム成立の件数をメトリクスに記録する。
type instrumentedReferralService struct {
	inner     ReferralServiceInterface
	collector metrics.MetricsCollector
}

var _ ReferralServiceInterface = (*instrumentedReferralService)(nil)

func (s *instrumentedReferralService) Visit(ctx context.Context, app *model.App, code string) (*referral.VisitResult, error) {
	result, err := s.inner.Visit(ctx, app, code)
	if err == nil {
		s.collector.RecordTokenMinted("visit")
	}
	return result, err
}

func (s *instrumentedReferralService) Exchange(ctx context.Context, identity *model.Identity, code string) (*referral.ExchangeResult, error) {
	result, err := s.inner.Exchange(ctx, identity, code)
	if err == nil {
		s.collector.RecordTokenMinted("exchange")
	}
	return result, err
}

func (s *instrumentedReferralService) Claim(ctx context.Context, app *model.App, identity *model.Identity, token string) (*referral.ClaimResult, error) {
	result, err := s.inner.Claim(ctx, app, identity, token)
	switch {
	case referral.IsInvalidToken(err):
		s.collector.RecordTokenRejected("claim")
	case err == nil && result.Claimed:
		s.collector.RecordClaim(true)
		s.collector.RecordCreditAppended(string(model.ReasonReferralReferrer))
		s.collector.RecordCreditAppended(string(model.ReasonReferralReferred))
	case err == nil:
		s.collector.RecordClaim(false)
	}
	return result, err
}

// instrumentedProfileService はプロフィールサービスをラップし、ボーナス付与と
// 重複付与の件数をメトリクスに記録する。
type instrumentedProfileService struct {
	inner     ProfileServiceInterface
	collector metrics.MetricsCollector
}

var _ ProfileServiceInterface = (*instrumentedProfileService)(nil)

func (s *instrumentedProfileService) SetName(ctx context.Context, app *model.App, identity *model.Identity, name string) (*profile.Result, error) {
	result, err := s.inner.SetName(ctx, app, identity, name)
	s.recordGrant(result, err, model.ReasonProfileName)
	return result, err
}

func (s *instrumentedProfileService) VerifyEmail(ctx context.Context, app *model.App, identity *model.Identity) (*profile.Result, error) {
	result, err := s.inner.VerifyEmail(ctx, app, identity)
	s.recordGrant(result, err, model.ReasonProfileEmail)
	return result, err
}

func (s *instrumentedProfileService) recordGrant(result *profile.Result, err error, reason model.CreditReason) {
	if err != nil {
		return
	}
	if result.Granted {
		s.collector.RecordCreditAppended(string(reason))
	} else {
		s.collector.RecordDuplicateGrant(string(reason))
	}
}
