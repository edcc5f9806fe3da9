package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/growthgate/internal/model"
)

// automatedSignatures はUser-Agentに含まれる自動化クライアントの兆候。
// 小文字で照合する。
var automatedSignatures = []string{
	"bot",
	"crawler",
	"spider",
	"curl/",
	"wget/",
	"python-requests",
	"go-http-client",
	"headlesschrome",
	"phantomjs",
	"selenium",
	"puppeteer",
	"playwright",
	"scrapy",
}

// looksAutomated はUser-Agentが自動化クライアントの兆候を持つかを返す。
// 空のUser-Agentも自動化とみなす。
func looksAutomated(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return true
	}
	lower := strings.ToLower(userAgent)
	for _, sig := range automatedSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// NewBotFilterMiddleware は自動化クライアントの兆候を検出し、リクエストコンテキストに
// マークするミドルウェアを返す。この段階では拒否しない:
// 読み取り系操作は自動化クライアントにも応答し、拒否はRequireHumanを
// 通るクレジット獲得系操作に限る。
func NewBotFilterMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if looksAutomated(r.UserAgent()) {
				r = r.WithContext(markAutomated(r.Context()))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireHuman は自動化クライアントとマークされたリクエストを403で拒否するミドルウェア。
// クレジット獲得系の操作にのみ適用する。
func RequireHuman(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsAutomated(r.Context()) {
			slog.Warn("automated client rejected",
				slog.String("path", r.URL.Path),
				slog.String("user_agent", r.UserAgent()),
			)
			WriteErrorResponse(w, http.StatusForbidden, model.NewAutomatedClientError())
			return
		}
		next.ServeHTTP(w, r)
	})
}
