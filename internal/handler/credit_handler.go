package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/growthgate/internal/middleware"
	"github.com/hitoshi/growthgate/internal/model"
)

// CreditServiceInterface はクレジットハンドラーが必要とするサービスインターフェース。
type CreditServiceInterface interface {
	// Balance は指定identityの残高を返す。
	Balance(ctx context.Context, identityID string) (int64, error)
	// Adjust は管理者による任意の増減を追記し、操作後の残高を返す。
	Adjust(ctx context.Context, identityID string, amount int64, note string) (int64, error)
}

// IdentityFinder は管理者調整の対象identityの存在確認に使うインターフェース。
type IdentityFinder interface {
	FindByID(ctx context.Context, id string) (*model.Identity, error)
}

// CreditHandler はクレジット残高・管理者調整のHTTPハンドラー。
type CreditHandler struct {
	service    CreditServiceInterface
	identities IdentityFinder
}

// NewCreditHandler はCreditHandlerを生成する。
func NewCreditHandler(service CreditServiceInterface, identities IdentityFinder) *CreditHandler {
	return &CreditHandler{
		service:    service,
		identities: identities,
	}
}

// balanceResponse は残高照会レスポンス。
type balanceResponse struct {
	Balance int64 `json:"balance"`
}

// adjustRequest は管理者調整リクエストのボディ。
type adjustRequest struct {
	IdentityID string `json:"identityId"`
	Amount     int64  `json:"amount"`
	Note       string `json:"note"`
}

// Balance は呼び出し元identityの残高を返す。
// GET /api/credits/balance
// 残高は常に台帳行の合計から算出する。
func (h *CreditHandler) Balance(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	balance, err := h.service.Balance(r.Context(), identity.ID)
	if err != nil {
		middleware.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

// Adjust は管理者による任意のクレジット増減を処理する。
// POST /admin/credits/adjust
// 台帳は追記専用のため、誤付与の訂正も相殺行の追加で行う。
func (h *CreditHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldError("identityId"))
		return
	}
	if req.IdentityID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldError("identityId"))
		return
	}

	identity, err := h.identities.FindByID(r.Context(), req.IdentityID)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	if identity == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewIdentityNotFoundError(req.IdentityID))
		return
	}

	balance, err := h.service.Adjust(r.Context(), req.IdentityID, req.Amount, req.Note)
	if err != nil {
		middleware.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}
