package model

import (
	"fmt"
	"time"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, referral, credit, system
	Action   string // 呼び出し側向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeOriginForbidden    = "ORIGIN_FORBIDDEN"
	ErrCodeAutomatedClient    = "AUTOMATED_CLIENT"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeInvalidCode        = "INVALID_REFERRAL_CODE"
	ErrCodeMissingField       = "MISSING_FIELD"
	ErrCodeAppNotFound        = "APP_NOT_FOUND"
	ErrCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	ErrCodeCodeNotFound       = "REFERRAL_CODE_NOT_FOUND"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInvalidAmount      = "INVALID_AMOUNT"
	ErrCodeInvalidReason      = "INVALID_REASON"
)

// NewUnauthorizedError は認証失敗エラーを生成する。
// サービス資格情報・ケーパビリティトークンのどちらの失敗でも同一メッセージを返す。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "有効な資格情報を指定してください。",
	}
}

// NewOriginForbiddenError はオリジン拒否エラーを生成する。
func NewOriginForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeOriginForbidden,
		Message:  "このオリジンからのアクセスは許可されていません。",
		Category: "auth",
		Action:   "アプリケーションの許可オリジン設定を確認してください。",
	}
}

// NewAutomatedClientError は自動化クライアント拒否エラーを生成する。
func NewAutomatedClientError() *APIError {
	return &APIError{
		Code:     ErrCodeAutomatedClient,
		Message:  "この操作は自動化クライアントからは実行できません。",
		Category: "validation",
		Action:   "通常のブラウザからアクセスしてください。",
	}
}

// NewInvalidTokenError はトークン検証失敗エラーを生成する。
// 構造不正・署名不一致・期限切れのいずれの原因でも同一のエラーを返す
// （偽造の手掛かりとなるオラクルを作らない）。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "トークンが無効です。",
		Category: "validation",
		Action:   "トークンを再取得してください。",
	}
}

// NewInvalidReferralCodeError は紹介コード形式エラーを生成する。
func NewInvalidReferralCodeError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCode,
		Message:  fmt.Sprintf("紹介コードの形式が不正です: %s", code),
		Category: "validation",
		Action:   "GROWTH-XXXXXX 形式の紹介コードを指定してください。",
	}
}

// NewMissingFieldError は必須フィールド欠落エラーを生成する。
func NewMissingFieldError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingField,
		Message:  fmt.Sprintf("必須フィールドが指定されていません: %s", field),
		Category: "validation",
		Action:   "リクエストボディを確認してください。",
	}
}

// NewAppNotFoundError はアプリケーション未検出エラーを生成する。
func NewAppNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeAppNotFound,
		Message:  "アプリケーションが見つかりません。",
		Category: "auth",
		Action:   "アプリケーションIDを確認してください。",
	}
}

// NewIdentityNotFoundError はidentity未検出エラーを生成する。
func NewIdentityNotFoundError(identityID string) *APIError {
	return &APIError{
		Code:     ErrCodeIdentityNotFound,
		Message:  fmt.Sprintf("指定されたidentityが見つかりません: %s", identityID),
		Category: "credit",
		Action:   "identity IDを確認してください。",
	}
}

// NewReferralCodeNotFoundError は紹介コード未検出エラーを生成する。
func NewReferralCodeNotFoundError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeCodeNotFound,
		Message:  fmt.Sprintf("指定された紹介コードが見つかりません: %s", code),
		Category: "referral",
		Action:   "紹介コードを確認してください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
// クォータ・残量・リセット時刻をメッセージに含める（ヘッダーにも同じ値を設定する）。
func NewRateLimitedError(limit int, resetAt time.Time) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  fmt.Sprintf("リクエストが多すぎます（上限 %d 件）。", limit),
		Category: "system",
		Action:   fmt.Sprintf("%s 以降に再試行してください。", resetAt.UTC().Format(time.RFC3339)),
	}
}

// NewInvalidAmountError は不正な金額エラーを生成する。
func NewInvalidAmountError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  "金額が不正です。",
		Category: "validation",
		Action:   "0以外の整数を指定してください。",
	}
}

// NewInvalidReasonError は不正な理由コードエラーを生成する。
func NewInvalidReasonError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidReason,
		Message:  fmt.Sprintf("理由コードが不正です: %s", reason),
		Category: "validation",
		Action:   "定義済みの理由コードを指定してください。",
	}
}
