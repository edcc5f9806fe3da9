// Package handler はHTTP APIのハンドラー群を提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/growthgate/internal/middleware"
	"github.com/hitoshi/growthgate/internal/model"
	"github.com/hitoshi/growthgate/internal/referral"
)

// claimCookieName は訪問トークンを運ぶCookie名。
const claimCookieName = "growth_claim"

// ReferralServiceInterface は紹介ハンドラーが必要とするサービスインターフェース。
type ReferralServiceInterface interface {
	// Visit は紹介リンクの訪問を処理し、訪問トークンを発行する。
	Visit(ctx context.Context, app *model.App, code string) (*referral.VisitResult, error)
	// Exchange は紹介コードからidentity束縛のクレームトークンを発行する。
	Exchange(ctx context.Context, identity *model.Identity, code string) (*referral.ExchangeResult, error)
	// Claim はクレームトークンを検証し紹介関係を確定する。
	Claim(ctx context.Context, app *model.App, identity *model.Identity, token string) (*referral.ClaimResult, error)
}

// CodeAssigner は紹介コードの取得・割当のためのインターフェース。
type CodeAssigner interface {
	// EnsureReferralCode はidentityの紹介コードを返し、未割当なら割り当てる。
	EnsureReferralCode(ctx context.Context, identity *model.Identity) (string, error)
}

// AppLoader は訪問エンドポイントでアプリケーションを引くインターフェース。
// リンクの踏み手は未認証のため、クエリパラメータのアプリケーションIDから解決する。
type AppLoader interface {
	FindByID(ctx context.Context, id string) (*model.App, error)
}

// ReferralHandlerConfig は紹介ハンドラーの設定。
type ReferralHandlerConfig struct {
	BaseURL        string   // 共有リンクの生成に使う自身の公開URL
	CookieSecure   bool     // Secure属性を付けるかどうか
	CookieDomain   string   // Cookieのドメイン。空の場合はホスト限定
	DefaultOrigins []string // リダイレクト先検証に使う共通許可オリジン
}

// ReferralHandler は紹介フローのHTTPハンドラー。
type ReferralHandler struct {
	service ReferralServiceInterface
	codes   CodeAssigner
	apps    AppLoader
	config  ReferralHandlerConfig
}

// NewReferralHandler はReferralHandlerを生成する。
func NewReferralHandler(service ReferralServiceInterface, codes CodeAssigner, apps AppLoader, config ReferralHandlerConfig) *ReferralHandler {
	return &ReferralHandler{
		service: service,
		codes:   codes,
		apps:    apps,
		config:  config,
	}
}

// exchangeRequest はトークン交換リクエストのボディ。
type exchangeRequest struct {
	ReferralCode string `json:"referralCode"`
}

// exchangeResponse はトークン交換レスポンス。
type exchangeResponse struct {
	ClaimToken string `json:"claimToken"`
	ExpiresIn  int64  `json:"expiresIn"`
}

// claimRequest はクレームリクエストのボディ。トークンはCookieからも受け付ける。
type claimRequest struct {
	ClaimToken string `json:"claimToken"`
}

// claimResponse はクレームレスポンス。
type claimResponse struct {
	Claimed    bool   `json:"claimed"`
	State      string `json:"state"`
	ReferrerID string `json:"referrerId"`
	Balance    int64  `json:"balance"`
}

// codeResponse は紹介コード取得レスポンス。
type codeResponse struct {
	ReferralCode string `json:"referralCode"`
	ShareURL     string `json:"shareUrl"`
}

// Visit は紹介リンクの訪問を処理し、訪問先へリダイレクトする。
// GET /r/{code}?app={appID}&to={destination}
//
// 発行した訪問トークンはHttpOnly・SameSite=LaxのCookieに載せ、
// 未認証のリダイレクトをまたいで後続のクレームまで生き残らせる。
func (h *ReferralHandler) Visit(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	app, err := h.apps.FindByID(r.Context(), r.URL.Query().Get("app"))
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	if app == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewAppNotFoundError())
		return
	}

	result, err := h.service.Visit(r.Context(), app, code)
	if err != nil {
		middleware.WriteServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     claimCookieName,
		Value:    result.Token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(result.ExpiresIn),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	dest := h.redirectDestination(app, r.URL.Query().Get("to"))
	if dest == "" {
		// リダイレクト先を決められない場合はトークンを直接返す
		writeJSON(w, http.StatusOK, exchangeResponse{
			ClaimToken: result.Token,
			ExpiresIn:  result.ExpiresIn,
		})
		return
	}

	http.Redirect(w, r, dest, http.StatusFound)
}

// redirectDestination はリダイレクト先を決定する。
// ?to= の指定はアプリケーションの許可オリジンに対して検証し、
// 不許可の場合はアプリケーションのデフォルト（先頭の具体的な許可オリジン）に落とす。
func (h *ReferralHandler) redirectDestination(app *model.App, to string) string {
	if to != "" && middleware.OriginAllowed(to, app.AllowedOrigins, h.config.DefaultOrigins) {
		return to
	}
	for _, origin := range app.AllowedOrigins {
		if strings.Contains(origin, "*") {
			continue
		}
		if strings.Contains(origin, "://") {
			return origin
		}
		return "https://" + origin
	}
	return ""
}

// Exchange は紹介コードをidentity束縛のクレームトークンに交換する。
// POST /api/referral/exchange
func (h *ReferralHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldError("referralCode"))
		return
	}
	if req.ReferralCode == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldError("referralCode"))
		return
	}

	result, err := h.service.Exchange(r.Context(), identity, req.ReferralCode)
	if err != nil {
		middleware.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exchangeResponse{
		ClaimToken: result.Token,
		ExpiresIn:  result.ExpiresIn,
	})
}

// Claim はクレームトークンを検証し紹介関係を確定する。
// POST /api/referral/claim
// トークンはボディまたはgrowth_claim Cookieから受け取る。
func (h *ReferralHandler) Claim(w http.ResponseWriter, r *http.Request) {
	app, err := middleware.AppFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req claimRequest
	if r.Body != nil {
		// ボディなしのクレーム（Cookieのみ）も受け付ける
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	token := req.ClaimToken
	if token == "" {
		if cookie, err := r.Cookie(claimCookieName); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidTokenError())
		return
	}

	result, err := h.service.Claim(r.Context(), app, identity, token)
	if err != nil {
		middleware.WriteServiceError(w, err)
		return
	}

	// 使い終わったCookieを破棄する
	http.SetCookie(w, &http.Cookie{
		Name:     claimCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, claimResponse{
		Claimed:    result.Claimed,
		State:      string(model.ReferralStateClaimed),
		ReferrerID: result.ReferrerID,
		Balance:    result.Balance,
	})
}

// GetCode は呼び出し元identityの紹介コードを返す。未割当なら割り当てる。
// GET /api/referral/code
func (h *ReferralHandler) GetCode(w http.ResponseWriter, r *http.Request) {
	app, err := middleware.AppFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	code, err := h.codes.EnsureReferralCode(r.Context(), identity)
	if err != nil {
		middleware.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, codeResponse{
		ReferralCode: code,
		ShareURL:     h.config.BaseURL + "/r/" + code + "?app=" + app.ID,
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
