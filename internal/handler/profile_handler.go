package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/growthgate/internal/middleware"
	"github.com/hitoshi/growthgate/internal/model"
	"github.com/hitoshi/growthgate/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// SetName は表示名設定を処理し、初回のみボーナスを付与する。
	SetName(ctx context.Context, app *model.App, identity *model.Identity, name string) (*profile.Result, error)
	// VerifyEmail はメール確認済みイベントを処理し、初回のみボーナスを付与する。
	VerifyEmail(ctx context.Context, app *model.App, identity *model.Identity) (*profile.Result, error)
}

// ProfileHandler はプロフィール完成ボーナスのHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// setNameRequest は名前設定リクエストのボディ。
type setNameRequest struct {
	Name string `json:"name"`
}

// profileBonusResponse はプロフィールボーナスのレスポンス。
type profileBonusResponse struct {
	Granted bool  `json:"granted"`
	Balance int64 `json:"balance"`
}

// SetName は表示名設定を処理する。
// POST /api/profile/name
func (h *ProfileHandler) SetName(w http.ResponseWriter, r *http.Request) {
	app, identity, ok := appAndIdentity(w, r)
	if !ok {
		return
	}

	var req setNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldError("name"))
		return
	}

	result, err := h.service.SetName(r.Context(), app, identity, req.Name)
	if err != nil {
		middleware.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileBonusResponse{
		Granted: result.Granted,
		Balance: result.Balance,
	})
}

// EmailVerified はメール確認済みイベントを処理する。
// POST /api/profile/email-verified
func (h *ProfileHandler) EmailVerified(w http.ResponseWriter, r *http.Request) {
	app, identity, ok := appAndIdentity(w, r)
	if !ok {
		return
	}

	result, err := h.service.VerifyEmail(r.Context(), app, identity)
	if err != nil {
		middleware.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileBonusResponse{
		Granted: result.Granted,
		Balance: result.Balance,
	})
}

// appAndIdentity はコンテキストからアプリケーションとidentityを取り出す。
// どちらかが欠けている場合は401を書き込みfalseを返す。
func appAndIdentity(w http.ResponseWriter, r *http.Request) (*model.App, *model.Identity, bool) {
	app, err := middleware.AppFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, nil, false
	}
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, nil, false
	}
	return app, identity, true
}
