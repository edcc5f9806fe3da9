package model

import (
	"strings"
	"testing"
)

// 生成されたコードが GROWTH-XXXXXX 形式であることを検証
func TestGenerateReferralCode_Format(t *testing.T) {
	code, err := GenerateReferralCode()
	if err != nil {
		t.Fatalf("GenerateReferralCode() error = %v", err)
	}

	if !strings.HasPrefix(code, "GROWTH-") {
		t.Errorf("code = %q, want prefix %q", code, "GROWTH-")
	}
	if len(code) != len("GROWTH-")+6 {
		t.Errorf("len(code) = %d, want %d", len(code), len("GROWTH-")+6)
	}
	if !ValidateReferralCode(code) {
		t.Errorf("ValidateReferralCode(%q) = false, want true", code)
	}
}

// 生成されたコードに視認性の悪い文字が含まれないことを検証
func TestGenerateReferralCode_ExcludesAmbiguousCharacters(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := GenerateReferralCode()
		if err != nil {
			t.Fatalf("GenerateReferralCode() error = %v", err)
		}
		body := strings.TrimPrefix(code, "GROWTH-")
		for _, c := range "0OIl" {
			if strings.ContainsRune(body, c) {
				t.Fatalf("code %q contains ambiguous character %q", code, c)
			}
		}
	}
}

// 連続生成したコードが重複しないこと（衝突確率が実用上無視できること）を検証
func TestGenerateReferralCode_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		code, err := GenerateReferralCode()
		if err != nil {
			t.Fatalf("GenerateReferralCode() error = %v", err)
		}
		if seen[code] {
			t.Fatalf("duplicate code generated: %q", code)
		}
		seen[code] = true
	}
}

func TestValidateReferralCode(t *testing.T) {
	tests := []struct {
		name string
		code string
		want bool
	}{
		{"正常なコード", "GROWTH-AB12CD", true},
		{"正常なコード（英字のみ）", "GROWTH-ABCDEF", true},
		{"プレフィックスなし", "AB23CD", false},
		{"別プレフィックス", "BONUS-AB23CD", false},
		{"本体が短い", "GROWTH-AB23C", false},
		{"本体が長い", "GROWTH-AB23CDE", false},
		{"小文字を含む", "GROWTH-ab23cd", false},
		{"除外文字0を含む", "GROWTH-AB0BCD", false},
		{"除外文字Oを含む", "GROWTH-ABOBCD", false},
		{"除外文字Iを含む", "GROWTH-ABIBCD", false},
		{"空文字列", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateReferralCode(tt.code); got != tt.want {
				t.Errorf("ValidateReferralCode(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}
