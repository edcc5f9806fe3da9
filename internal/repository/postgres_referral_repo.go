package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/growthgate/internal/model"
)

// PostgresReferralRepo はPostgreSQLを使用した紹介関係リポジトリ。
type PostgresReferralRepo struct {
	db *sql.DB
}

// NewPostgresReferralRepo はPostgresReferralRepoを生成する。
func NewPostgresReferralRepo(db *sql.DB) *PostgresReferralRepo {
	return &PostgresReferralRepo{db: db}
}

const referralColumns = `id, app_id, referral_code, referrer_id,
	COALESCE(referred_id::text, ''), visit_count, last_visited_at, claimed_at, created_at`

// scanReferral は1行をmodel.ReferralRelationshipに読み込む。
func scanReferral(row interface{ Scan(...any) error }) (*model.ReferralRelationship, error) {
	rel := &model.ReferralRelationship{}
	err := row.Scan(
		&rel.ID, &rel.AppID, &rel.ReferralCode, &rel.ReferrerID,
		&rel.ReferredID, &rel.VisitCount, &rel.LastVisitedAt, &rel.ClaimedAt, &rel.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// FindByAppAndCode はアプリケーションIDと紹介コードで紹介関係を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresReferralRepo) FindByAppAndCode(ctx context.Context, appID, code string) (*model.ReferralRelationship, error) {
	rel, err := scanReferral(r.db.QueryRowContext(ctx,
		`SELECT `+referralColumns+` FROM referral_relationships
		 WHERE app_id = $1 AND referral_code = $2`,
		appID, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find referral relationship: %w", err)
	}
	return rel, nil
}

// RecordVisit は紹介関係を取得または作成し、訪問カウンタを原子的にインクリメントする。
// 初回訪問で行を作成し、以降はvisit_countを+1する。UPSERT 1文で行うため
// 並行訪問でもカウンタ更新が失われない（visit_countは単調非減少）。
func (r *PostgresReferralRepo) RecordVisit(ctx context.Context, rel *model.ReferralRelationship) (*model.ReferralRelationship, error) {
	updated, err := scanReferral(r.db.QueryRowContext(ctx,
		`INSERT INTO referral_relationships
		   (id, app_id, referral_code, referrer_id, visit_count, last_visited_at, created_at)
		 VALUES ($1, $2, $3, $4, 1, now(), now())
		 ON CONFLICT (app_id, referral_code) DO UPDATE
		   SET visit_count = referral_relationships.visit_count + 1,
		       last_visited_at = now()
		 RETURNING `+referralColumns,
		rel.ID, rel.AppID, rel.ReferralCode, rel.ReferrerID))
	if err != nil {
		return nil, fmt.Errorf("failed to record referral visit: %w", err)
	}
	return updated, nil
}

// Claim はreferred_idがnullの場合のみ被紹介identityを設定しclaimed_atを記録する。
// 遷移できた場合はtrueを返す。既にCLAIMEDの場合は既存の行をそのまま返す。
// 条件付きUPDATE 1文で遷移するため、並行クレームでもちょうど1回だけ成立する。
func (r *PostgresReferralRepo) Claim(ctx context.Context, relID, referredID string) (*model.ReferralRelationship, bool, error) {
	rel, err := scanReferral(r.db.QueryRowContext(ctx,
		`UPDATE referral_relationships
		 SET referred_id = $2, claimed_at = now()
		 WHERE id = $1 AND referred_id IS NULL
		 RETURNING `+referralColumns,
		relID, referredID))
	if err == nil {
		return rel, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to claim referral: %w", err)
	}

	// 遷移済み（または行が存在しない）: 現在の状態を読み直す
	rel, err = scanReferral(r.db.QueryRowContext(ctx,
		`SELECT `+referralColumns+` FROM referral_relationships WHERE id = $1`, relID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("referral relationship not found: %s", relID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to reload referral relationship: %w", err)
	}
	return rel, false, nil
}

// compile-time interface check
var _ ReferralRepository = (*PostgresReferralRepo)(nil)
