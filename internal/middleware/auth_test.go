package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/growthgate/internal/captoken"
	"github.com/hitoshi/growthgate/internal/model"
)

// mockAppFinder はAppFinderのモック実装。
type mockAppFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.App, error)
}

func (m *mockAppFinder) FindByID(ctx context.Context, id string) (*model.App, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// --- NewServiceKeyMiddleware ---

// 正しいサービス資格情報で通過することを検証
func TestServiceKeyMiddleware_Accepts(t *testing.T) {
	handler := NewServiceKeyMiddleware("secret-key")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/admin/apps", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// 資格情報の欠落・不一致・形式違いがすべて同一の401になることを検証
func TestServiceKeyMiddleware_RejectsUniformly(t *testing.T) {
	handler := NewServiceKeyMiddleware("secret-key")(okHandler())

	cases := map[string]func(r *http.Request){
		"missing header": func(r *http.Request) {},
		"wrong key":      func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") },
		"no bearer":      func(r *http.Request) { r.Header.Set("Authorization", "secret-key") },
		"empty bearer":   func(r *http.Request) { r.Header.Set("Authorization", "Bearer ") },
	}

	var bodies []ErrorResponseBody
	for name, setup := range cases {
		req := httptest.NewRequest(http.MethodPost, "/admin/apps", nil)
		setup(req)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, rec.Code)
		}
		var body ErrorResponseBody
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("%s: failed to decode body: %v", name, err)
		}
		bodies = append(bodies, body)
	}

	// すべて同一のエラー本文
	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("rejection bodies differ: %+v vs %+v", bodies[0], bodies[i])
		}
	}
}

// --- NewCapabilityMiddleware ---

// 有効なケーパビリティトークンでアプリケーションがコンテキストに入ることを検証
func TestCapabilityMiddleware_LoadsApp(t *testing.T) {
	issuer := captoken.New("cap-secret")
	token, _, err := issuer.Issue("app-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	apps := &mockAppFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.App, error) {
			if id != "app-1" {
				t.Errorf("FindByID id = %q, want %q", id, "app-1")
			}
			return &model.App{ID: "app-1"}, nil
		},
	}

	var gotApp *model.App
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotApp, _ = AppFromContext(r.Context())
	})
	handler := NewCapabilityMiddleware(issuer, apps)(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if gotApp == nil || gotApp.ID != "app-1" {
		t.Errorf("app in context = %+v, want app-1", gotApp)
	}
}

// X-Growth-Tokenヘッダーでも認証できることを検証
func TestCapabilityMiddleware_AcceptsCustomHeader(t *testing.T) {
	issuer := captoken.New("cap-secret")
	token, _, _ := issuer.Issue("app-1", time.Hour)

	apps := &mockAppFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.App, error) {
			return &model.App{ID: "app-1"}, nil
		},
	}
	handler := NewCapabilityMiddleware(issuer, apps)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil)
	req.Header.Set("X-Growth-Token", token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// 無効トークン・期限切れ・アプリケーション消滅がすべて401になることを検証
func TestCapabilityMiddleware_Rejects(t *testing.T) {
	issuer := captoken.New("cap-secret")

	t.Run("no token", func(t *testing.T) {
		handler := NewCapabilityMiddleware(issuer, &mockAppFinder{})(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("token from different secret", func(t *testing.T) {
		foreign, _, _ := captoken.New("other-secret").Issue("app-1", time.Hour)
		handler := NewCapabilityMiddleware(issuer, &mockAppFinder{})(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil)
		req.Header.Set("Authorization", "Bearer "+foreign)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("app deleted after issuance", func(t *testing.T) {
		token, _, _ := issuer.Issue("app-gone", time.Hour)
		handler := NewCapabilityMiddleware(issuer, &mockAppFinder{})(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/api/credits/balance", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}
