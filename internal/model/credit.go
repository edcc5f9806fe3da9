package model

import "time"

// CreditReason はクレジット取引の理由コードを表す。
type CreditReason string

const (
	// ReasonReferralReferrer は紹介成立時に紹介者へ付与されるボーナス。
	ReasonReferralReferrer CreditReason = "referral_referrer"
	// ReasonReferralReferred は紹介成立時に被紹介者へ付与されるボーナス。
	ReasonReferralReferred CreditReason = "referral_referred"
	// ReasonProfileName は初回の名前設定ボーナス。
	ReasonProfileName CreditReason = "profile_name"
	// ReasonProfileEmail は初回のメール確認ボーナス。
	ReasonProfileEmail CreditReason = "profile_email"
	// ReasonAdminAdjustment は管理者による任意の増減。
	ReasonAdminAdjustment CreditReason = "admin_adjustment"
)

// デフォルトの付与額。
const (
	ReferralReferrerAmount = 10
	ReferralReferredAmount = 5
	ProfileBonusAmount     = 5
)

// oneTimeReasons は同一identityに対して一度しか付与できない理由コードの集合。
// DB側のユニーク制約と一致させること（credit_transactionsの部分ユニークインデックス）。
// referral_referrerは含めない: 紹介者は複数の被紹介者から繰り返しボーナスを得る。
// その重複防止は紹介関係側のfirst-claim-winsが担う。
var oneTimeReasons = map[CreditReason]struct{}{
	ReasonReferralReferred: {},
	ReasonProfileName:      {},
	ReasonProfileEmail:     {},
}

// IsOneTime は理由コードが一度限りの付与かどうかを返す。
func (r CreditReason) IsOneTime() bool {
	_, ok := oneTimeReasons[r]
	return ok
}

// IsValid は理由コードが定義済みかどうかを返す。
func (r CreditReason) IsValid() bool {
	switch r {
	case ReasonReferralReferrer, ReasonReferralReferred,
		ReasonProfileName, ReasonProfileEmail, ReasonAdminAdjustment:
		return true
	}
	return false
}

// CreditTransaction は追記専用のクレジット取引1件を表す。
// 行は作成後に変更・削除されない。管理上の訂正は相殺行の追加で行う。
// 残高は常に行の合計であり、別カウンタとして保持しない。
type CreditTransaction struct {
	ID         string
	IdentityID string
	Amount     int64 // 符号付き。付与は正、控除は負
	Reason     CreditReason
	Metadata   map[string]string
	CreatedAt  time.Time
}
