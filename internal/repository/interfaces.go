// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/growthgate/internal/model"
)

// ErrAlreadyGranted は一度限りのボーナスが既に付与済みであることを表す。
// ストア側のユニーク制約違反から変換され、呼び出し側は冪等な「付与済み」として扱う。
var ErrAlreadyGranted = errors.New("credit already granted for this reason")

// ErrCodeTaken は紹介コードが別identityに割当済みであることを表す。
var ErrCodeTaken = errors.New("referral code already taken")

// AppRepository はアプリケーションデータの永続化インターフェース。
type AppRepository interface {
	// FindByID は指定IDのアプリケーションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.App, error)

	// Create はアプリケーションを作成する。
	Create(ctx context.Context, app *model.App) error
}

// IdentityRepository は匿名訪問者identityの永続化インターフェース。
type IdentityRepository interface {
	// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// FindByScopeAndFingerprint はスコープキーとフィンガープリントでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByScopeAndFingerprint(ctx context.Context, scopeKey, fingerprintHash string) (*model.Identity, error)

	// Create はidentityを作成する。同一(scope_key, fingerprint_hash)の行が既に存在する場合は
	// 何もせずfalseを返す（レプリカ間の作成競合を吸収する）。
	Create(ctx context.Context, identity *model.Identity) (created bool, err error)

	// FindByReferralCode は紹介コードでidentityを検索する。見つからない場合はnilを返す。
	FindByReferralCode(ctx context.Context, code string) (*model.Identity, error)

	// AssignReferralCode は未割当のidentityに紹介コードを割り当てる。
	// 既に割当済みの場合は何もせず既存コードを返す（コードは一度割り当てたら変更しない）。
	// 生成コードが他identityと衝突した場合はErrCodeTakenを返す。
	AssignReferralCode(ctx context.Context, identityID, code string) (string, error)

	// SetReferredBy はreferred_byがnullの場合のみ紹介元を設定する（first-claim-wins）。
	// 設定できた場合はtrueを返す。
	SetReferredBy(ctx context.Context, identityID, referrerID string) (bool, error)
}

// ReferralRepository は紹介関係の永続化インターフェース。
type ReferralRepository interface {
	// FindByAppAndCode はアプリケーションIDと紹介コードで紹介関係を検索する。
	// 見つからない場合はnilを返す。
	FindByAppAndCode(ctx context.Context, appID, code string) (*model.ReferralRelationship, error)

	// RecordVisit は紹介関係を取得または作成し、訪問カウンタを原子的にインクリメントする。
	// 初回訪問時に行を作成する（referred_idはnull）。
	RecordVisit(ctx context.Context, rel *model.ReferralRelationship) (*model.ReferralRelationship, error)

	// Claim はreferred_idがnullの場合のみ被紹介identityを設定しclaimed_atを記録する。
	// 遷移できた場合はtrueを返す。いずれの場合も最新の行を返す。
	// VISITED→CLAIMEDの遷移は単一の条件付きUPDATEで行い、並行クレームでも
	// ちょうど1回だけ成立する（first-claim-wins）。
	Claim(ctx context.Context, relID, referredID string) (*model.ReferralRelationship, bool, error)
}

// LedgerRepository は追記専用クレジット台帳の永続化インターフェース。
type LedgerRepository interface {
	// Append は取引行を1件追記する。行は以後変更されない。
	// 同一identityへの並行追記は可換であり安全。
	Append(ctx context.Context, tx *model.CreditTransaction) error

	// AppendOnce は一度限りの理由コードの取引行を追記する。
	// 同一(identity_id, reason)の行が既に存在する場合はErrAlreadyGrantedを返す。
	// 判定と追記はストアのユニーク制約による単一の原子的操作で行う。
	AppendOnce(ctx context.Context, tx *model.CreditTransaction) error

	// SumByIdentity は指定identityの全取引の合計（残高）を返す。
	// 残高は常に行の合計から算出し、キャッシュを正とはしない。
	SumByIdentity(ctx context.Context, identityID string) (int64, error)
}
