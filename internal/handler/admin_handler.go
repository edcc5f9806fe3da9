package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/growthgate/internal/middleware"
	"github.com/hitoshi/growthgate/internal/model"
)

// AppAdminRepository は管理者ハンドラーが必要とするアプリケーション永続化インターフェース。
type AppAdminRepository interface {
	FindByID(ctx context.Context, id string) (*model.App, error)
	Create(ctx context.Context, app *model.App) error
}

// TokenIssuer はケーパビリティトークンの発行インターフェース。
type TokenIssuer interface {
	Issue(appID string, ttl time.Duration) (string, time.Time, error)
}

// AdminHandler はアプリケーション管理のHTTPハンドラー。
// サービス資格情報で保護された管理スコープ専用。
type AdminHandler struct {
	apps     AppAdminRepository
	issuer   TokenIssuer
	tokenTTL time.Duration
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(apps AppAdminRepository, issuer TokenIssuer, tokenTTL time.Duration) *AdminHandler {
	return &AdminHandler{
		apps:     apps,
		issuer:   issuer,
		tokenTTL: tokenTTL,
	}
}

// createAppRequest はアプリケーション登録リクエストのボディ。
type createAppRequest struct {
	Name           string   `json:"name"`
	OrganizationID string   `json:"organizationId"`
	IsolationMode  string   `json:"isolationMode"`
	AllowedOrigins []string `json:"allowedOrigins"`
	WebhookURL     string   `json:"webhookUrl"`
}

// appResponse はアプリケーション情報のレスポンス。
type appResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	OrganizationID string   `json:"organizationId"`
	IsolationMode  string   `json:"isolationMode"`
	AllowedOrigins []string `json:"allowedOrigins"`
	WebhookURL     string   `json:"webhookUrl,omitempty"`
}

// tokenResponse はケーパビリティトークン発行レスポンス。
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateApp はアプリケーションを登録する。
// POST /admin/apps
func (h *AdminHandler) CreateApp(w http.ResponseWriter, r *http.Request) {
	var req createAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldError("name"))
		return
	}
	if req.Name == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldError("name"))
		return
	}
	if req.OrganizationID == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldError("organizationId"))
		return
	}

	mode := model.IsolationMode(req.IsolationMode)
	if mode == "" {
		mode = model.IsolationModeIsolated
	}
	if mode != model.IsolationModeIsolated && mode != model.IsolationModeOrganization {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingFieldError("isolationMode"))
		return
	}

	app := &model.App{
		ID:             uuid.New().String(),
		Name:           req.Name,
		OrganizationID: req.OrganizationID,
		IsolationMode:  mode,
		AllowedOrigins: req.AllowedOrigins,
		WebhookURL:     req.WebhookURL,
		CreatedAt:      time.Now(),
	}
	if err := h.apps.Create(r.Context(), app); err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusCreated, toAppResponse(app))
}

// IssueToken は指定アプリケーションのケーパビリティトークンを発行する。
// POST /admin/apps/{id}/tokens
func (h *AdminHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "id")

	app, err := h.apps.FindByID(r.Context(), appID)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	if app == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewAppNotFoundError())
		return
	}

	token, expiresAt, err := h.issuer.Issue(app.ID, h.tokenTTL)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// toAppResponse はAppをAPIレスポンスに変換する。
func toAppResponse(app *model.App) appResponse {
	return appResponse{
		ID:             app.ID,
		Name:           app.Name,
		OrganizationID: app.OrganizationID,
		IsolationMode:  string(app.IsolationMode),
		AllowedOrigins: app.AllowedOrigins,
		WebhookURL:     app.WebhookURL,
	}
}
