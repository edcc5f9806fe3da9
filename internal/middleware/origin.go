package middleware

import (
	"net/url"
	"strings"
)

// OriginAllowed はOriginヘッダーの値が許可リストに適合するかを判定する。
// 許可リストはアプリケーション固有のリストと全アプリケーション共通のデフォルトの和。
// 判定規則:
//   - localhost と 127.0.0.1 は開発用途としてポートによらず常に許可
//   - 完全一致（スキーム・ポートを除いたホスト名同士）
//   - "*.example.net" 形式のワイルドカードは完全なラベル境界でのみ一致する
//     （"a.example.net" は一致、"example.net" 自身や "evil-example.net" は不一致）
func OriginAllowed(origin string, appOrigins, defaultOrigins []string) bool {
	host := originHost(origin)
	if host == "" {
		return false
	}

	if host == "localhost" || host == "127.0.0.1" {
		return true
	}

	for _, pattern := range appOrigins {
		if matchOriginPattern(host, pattern) {
			return true
		}
	}
	for _, pattern := range defaultOrigins {
		if matchOriginPattern(host, pattern) {
			return true
		}
	}
	return false
}

// originHost はOriginヘッダー値からホスト名（ポート除去・小文字）を取り出す。
// 解析できない値は空文字列を返す。
func originHost(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// matchOriginPattern はホスト名1件をパターン1件と照合する。
// パターンはホスト名そのものか "*.suffix" 形式のワイルドカード。
func matchOriginPattern(host, pattern string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" {
		return false
	}

	// パターンがURL形式で書かれていてもホスト部で照合する
	if strings.Contains(pattern, "://") {
		pattern = originHost(pattern)
		if pattern == "" {
			return false
		}
	}

	if after, ok := strings.CutPrefix(pattern, "*."); ok {
		// ラベル境界を含めたサフィックス一致。
		// ベアサフィックス自身はワイルドカードに一致しない
		return strings.HasSuffix(host, "."+after)
	}

	return host == pattern
}
