package model

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// ReferralCodePrefix は紹介コードの固定プレフィックス。
const ReferralCodePrefix = "GROWTH"

// referralCodeAlphabet は紹介コード本体に使用する文字集合。
// 視認性の悪い 0/O/I/l を除いた大文字英数字。
const referralCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ123456789"

// referralCodeLength は紹介コード本体の文字数。
const referralCodeLength = 6

// GenerateReferralCode は "GROWTH-XXXXXX" 形式の紹介コードを生成する。
// 本体はcrypto/randで生成した6文字。
func GenerateReferralCode() (string, error) {
	buf := make([]byte, referralCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate referral code: %w", err)
	}
	body := make([]byte, referralCodeLength)
	for i, b := range buf {
		body[i] = referralCodeAlphabet[int(b)%len(referralCodeAlphabet)]
	}
	return ReferralCodePrefix + "-" + string(body), nil
}

// ValidateReferralCode は紹介コードの形式を検証する。
// プレフィックス・区切り・本体の文字集合をすべて確認する。
func ValidateReferralCode(code string) bool {
	prefix := ReferralCodePrefix + "-"
	if !strings.HasPrefix(code, prefix) {
		return false
	}
	body := code[len(prefix):]
	if len(body) != referralCodeLength {
		return false
	}
	for _, c := range body {
		if !strings.ContainsRune(referralCodeAlphabet, c) {
			return false
		}
	}
	return true
}
