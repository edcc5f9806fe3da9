package model

import "time"

// Identity は匿名訪問者1人に対応するレコードを表す。
// フィンガープリントによる確率的な識別であり、同一ネットワーク・同一ブラウザ構成の
// 別訪問者が衝突することは許容する。
type Identity struct {
	ID              string
	AppID           string
	ScopeKey        string // 識別スコープの複合キー（IdentityScope.Key()の値）
	FingerprintHash string
	ReferralCode    string // 未割当の場合は空。一度割り当てたら変更しない
	ReferredBy      string // 紹介元identityのID。一度設定したら変更しない（first-claim-wins）
	CreatedAt       time.Time
}

// ReferralState は紹介関係の状態を表す。
type ReferralState string

const (
	// ReferralStateVisited は紹介リンクが訪問済みで、まだクレームされていない状態。
	ReferralStateVisited ReferralState = "VISITED"
	// ReferralStateClaimed は被紹介者が確定した終端状態。
	ReferralStateClaimed ReferralState = "CLAIMED"
)

// ReferralRelationship は紹介コードの使用状況を追跡する。
// ReferredIDはnull→値の遷移を一度だけ行い、VisitCountは単調非減少。
type ReferralRelationship struct {
	ID            string
	AppID         string
	ReferralCode  string
	ReferrerID    string
	ReferredID    string // 未クレームの場合は空
	VisitCount    int
	LastVisitedAt time.Time
	ClaimedAt     *time.Time
	CreatedAt     time.Time
}

// State は紹介関係の現在の状態を返す。
func (r *ReferralRelationship) State() ReferralState {
	if r.ReferredID != "" {
		return ReferralStateClaimed
	}
	return ReferralStateVisited
}
