// Package captoken は1アプリケーションに束縛されたケーパビリティトークンを提供する。
//
// トークンは公開API呼び出し元をそのアプリケーションのデータに限定するbearer資格情報で、
// クレームトークンと同じく自己完結型・期限のみで失効する（明示的な失効機構は持たない）。
package captoken

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

// ErrInvalidToken はケーパビリティトークンの検証失敗を表す。
// 原因によらず同一のエラーを返す。
var ErrInvalidToken = errors.New("invalid capability token")

// Claims はケーパビリティトークンのペイロード。
type Claims struct {
	AppID     string `json:"appId"`
	ExpiresAt int64  `json:"expiresAt"` // unix秒
}

// Issuer はケーパビリティトークンの発行と検証を行う。
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// New はIssuerを生成する。
func New(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

// NewWithClock は時刻取得関数を差し替えたIssuerを生成する。テスト用。
func NewWithClock(secret string, now func() time.Time) *Issuer {
	return &Issuer{secret: []byte(secret), now: now}
}

// Issue は指定アプリケーションに束縛されたトークンを発行する。
// 返り値は (トークン, 失効時刻)。
func (i *Issuer) Issue(appID string, ttl time.Duration) (string, time.Time, error) {
	expiresAt := i.now().Add(ttl)
	claims := Claims{AppID: appID, ExpiresAt: expiresAt.Unix()}

	raw, err := json.Marshal(claims)
	if err != nil {
		return "", time.Time{}, err
	}

	segment := base64.RawURLEncoding.EncodeToString(raw)
	return segment + "." + i.sign(segment), expiresAt, nil
}

// Verify はトークンを検証し、束縛されたアプリケーションIDを返す。
// 構造不正・署名不一致・期限切れのいずれもErrInvalidTokenを返す。
func (i *Issuer) Verify(token string) (*Claims, error) {
	segment, sig, ok := strings.Cut(token, ".")
	if !ok || segment == "" || sig == "" {
		return nil, ErrInvalidToken
	}

	given, err := hex.DecodeString(sig)
	if err != nil {
		return nil, ErrInvalidToken
	}
	expected, err := hex.DecodeString(i.sign(segment))
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

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.AppID == "" {
		return nil, ErrInvalidToken
	}
	if i.now().Unix() >= claims.ExpiresAt {
		return nil, ErrInvalidToken
	}

	return &claims, nil
}

// sign はペイロードセグメントのHMAC-SHA256署名をhex文字列で返す。
func (i *Issuer) sign(segment string) string {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write([]byte(segment))
	return hex.EncodeToString(mac.Sum(nil))
}
