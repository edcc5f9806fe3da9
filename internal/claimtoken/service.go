// Package claimtoken は紹介のクレーム権を運ぶ短命な署名付きトークンを提供する。
//
// トークンは自己完結型で永続化されない。
// ワイヤ形式: base64url(JSON(payload)) + "." + hex(HMAC-SHA256(payloadセグメント, secret))
// 有効性は署名の正しさと期限のみで決まり、有効期間内であれば何度でも検証に成功する
// （single-useのセマンティクスは紹介関係の状態側が持つ）。
package claimtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrInvalidToken はトークン検証失敗を表す。
// 構造不正・署名不一致・期限切れのいずれの原因でも同一のエラーを返し、
// 偽造の手掛かりとなるオラクルを作らない。
var ErrInvalidToken = errors.New("invalid claim token")

// Payload はクレームトークンの論理ペイロード。
type Payload struct {
	ReferralCode    string `json:"referralCode"`
	BoundIdentityID string `json:"boundIdentityId,omitempty"`
	ExpiresAt       int64  `json:"expiresAt"` // unix秒
}

// Service はクレームトークンの発行と検証を行う。
// 純粋な計算のみでI/Oを伴わず、並行呼び出しに対して安全。
type Service struct {
	secret []byte
	now    func() time.Time
}

// New はServiceを生成する。
func New(secret string) *Service {
	return &Service{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// NewWithClock は時刻取得関数を差し替えたServiceを生成する。テスト用。
func NewWithClock(secret string, now func() time.Time) *Service {
	return &Service{
		secret: []byte(secret),
		now:    now,
	}
}

// Mint は紹介コードと（任意の）束縛identity IDを運ぶトークンを発行する。
// 期限は now + ttl の絶対時刻としてペイロードに埋め込む。
func (s *Service) Mint(referralCode, boundIdentityID string, ttl time.Duration) (string, error) {
	payload := Payload{
		ReferralCode:    referralCode,
		BoundIdentityID: boundIdentityID,
		ExpiresAt:       s.now().Add(ttl).Unix(),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	segment := base64.RawURLEncoding.EncodeToString(raw)
	return segment + "." + s.sign(segment), nil
}

// Verify はトークンを構造解析し、署名を定数時間比較で検証し、期限を確認する。
// いずれかに失敗した場合はErrInvalidTokenを返す。
func (s *Service) Verify(token string) (*Payload, error) {
	segment, sig, ok := strings.Cut(token, ".")
	if !ok || segment == "" || sig == "" {
		return nil, ErrInvalidToken
	}

	given, err := hex.DecodeString(sig)
	if err != nil {
		return nil, ErrInvalidToken
	}

	expected, err := hex.DecodeString(s.sign(segment))
	if err != nil {
		return nil, ErrInvalidToken
	}

	if !hmac.Equal(given, expected) {
		return nil, ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, ErrInvalidToken
	}

	if payload.ReferralCode == "" {
		return nil, ErrInvalidToken
	}

	if s.now().Unix() >= payload.ExpiresAt {
		return nil, ErrInvalidToken
	}

	return &payload, nil
}

// sign はペイロードセグメントのHMAC-SHA256署名をhex文字列で返す。
func (s *Service) sign(segment string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(segment))
	return hex.EncodeToString(mac.Sum(nil))
}
