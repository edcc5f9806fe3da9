// Package identity は匿名訪問者の安定したidentityへの解決を提供する。
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/growthgate/internal/model"
	"github.com/hitoshi/growthgate/internal/repository"
)

// codeAssignMaxAttempts は紹介コード生成の衝突時リトライ上限。
const codeAssignMaxAttempts = 5

// RequestContext はフィンガープリント導出に使うリクエスト文脈を表す。
type RequestContext struct {
	ClientIP       string
	UserAgent      string
	AcceptLanguage string
}

// Resolver はリクエスト文脈を安定した匿名identityに解決する。
//
// フィンガープリントはベストエフォートの相関キーであり、同一ネットワーク・
// 同一ブラウザ構成の別訪問者が衝突することは設計上許容する。
// クライアントが生成したランダムなヒントを渡した場合はそれが支配的になり、
// 衝突確率は実用上無視できる水準になる。
type Resolver struct {
	identities repository.IdentityRepository
}

// NewResolver はResolverを生成する。
func NewResolver(identities repository.IdentityRepository) *Resolver {
	return &Resolver{identities: identities}
}

// Fingerprint はクライアント提供ヒントとリクエスト文脈からフィンガープリントハッシュを導出する。
func Fingerprint(clientHint string, reqCtx RequestContext) string {
	h := sha256.New()
	h.Write([]byte(strings.Join([]string{
		clientHint,
		reqCtx.ClientIP,
		reqCtx.UserAgent,
		reqCtx.AcceptLanguage,
	}, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// Resolve はリクエスト文脈を既存のidentityに解決し、初見の場合は新規作成する。
// 分離スコープはアプリケーション取得時に1回だけ解決する:
// isolatedならアプリケーション単位、organizationなら組織内の全アプリケーションで共有。
func (r *Resolver) Resolve(ctx context.Context, app *model.App, clientHint string, reqCtx RequestContext) (*model.Identity, error) {
	scope := model.ResolveScope(app)
	fingerprint := Fingerprint(clientHint, reqCtx)

	existing, err := r.identities.FindByScopeAndFingerprint(ctx, scope.Key(), fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identity: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	candidate := &model.Identity{
		ID:              uuid.New().String(),
		AppID:           app.ID,
		ScopeKey:        scope.Key(),
		FingerprintHash: fingerprint,
		CreatedAt:       time.Now(),
	}

	created, err := r.identities.Create(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	if created {
		slog.Info("new identity resolved",
			slog.String("identity_id", candidate.ID),
			slog.String("app_id", app.ID),
			slog.Bool("org_shared", scope.SharedWithinOrganization()),
		)
		return candidate, nil
	}

	// 別レプリカが同時に作成した場合: 作成済みの行を読み直す
	existing, err = r.identities.FindByScopeAndFingerprint(ctx, scope.Key(), fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to reload identity after create race: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("identity disappeared after create race")
	}
	return existing, nil
}

// EnsureReferralCode はidentityの紹介コードを返し、未割当の場合は生成して割り当てる。
// 一度割り当てたコードは変更しない。生成コードの衝突時はリトライする。
func (r *Resolver) EnsureReferralCode(ctx context.Context, identity *model.Identity) (string, error) {
	if identity.ReferralCode != "" {
		return identity.ReferralCode, nil
	}

	for attempt := 0; attempt < codeAssignMaxAttempts; attempt++ {
		code, err := model.GenerateReferralCode()
		if err != nil {
			return "", err
		}

		assigned, err := r.identities.AssignReferralCode(ctx, identity.ID, code)
		if err == repository.ErrCodeTaken {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to assign referral code: %w", err)
		}

		identity.ReferralCode = assigned
		return assigned, nil
	}

	return "", fmt.Errorf("failed to assign referral code after %d attempts", codeAssignMaxAttempts)
}
