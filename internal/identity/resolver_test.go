package identity

import (
	"context"
	"testing"
	"time"

	"github.com/hitoshi/growthgate/internal/model"
	"github.com/hitoshi/growthgate/internal/repository"
)

// --- モック定義 ---

// mockIdentityRepo はIdentityRepositoryのモック実装。
type mockIdentityRepo struct {
	findByScopeFn  func(ctx context.Context, scopeKey, fingerprintHash string) (*model.Identity, error)
	createFn       func(ctx context.Context, identity *model.Identity) (bool, error)
	assignCodeFn   func(ctx context.Context, identityID, code string) (string, error)
	findByIDFn     func(ctx context.Context, id string) (*model.Identity, error)
	findByCodeFn   func(ctx context.Context, code string) (*model.Identity, error)
	setReferredBFn func(ctx context.Context, identityID, referrerID string) (bool, error)
}

func (m *mockIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockIdentityRepo) FindByScopeAndFingerprint(ctx context.Context, scopeKey, fingerprintHash string) (*model.Identity, error) {
	if m.findByScopeFn != nil {
		return m.findByScopeFn(ctx, scopeKey, fingerprintHash)
	}
	return nil, nil
}

func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.Identity) (bool, error) {
	if m.createFn != nil {
		return m.createFn(ctx, identity)
	}
	return true, nil
}

func (m *mockIdentityRepo) FindByReferralCode(ctx context.Context, code string) (*model.Identity, error) {
	if m.findByCodeFn != nil {
		return m.findByCodeFn(ctx, code)
	}
	return nil, nil
}

func (m *mockIdentityRepo) AssignReferralCode(ctx context.Context, identityID, code string) (string, error) {
	if m.assignCodeFn != nil {
		return m.assignCodeFn(ctx, identityID, code)
	}
	return code, nil
}

func (m *mockIdentityRepo) SetReferredBy(ctx context.Context, identityID, referrerID string) (bool, error) {
	if m.setReferredBFn != nil {
		return m.setReferredBFn(ctx, identityID, referrerID)
	}
	return true, nil
}

var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)

func testApp(mode model.IsolationMode) *model.App {
	return &model.App{
		ID:             "app-1",
		OrganizationID: "org-1",
		IsolationMode:  mode,
		CreatedAt:      time.Now(),
	}
}

// --- Fingerprint ---

// 同一入力から常に同一ハッシュが導出されることを検証
func TestFingerprint_Deterministic(t *testing.T) {
	reqCtx := RequestContext{
		ClientIP:       "203.0.113.7",
		UserAgent:      "Mozilla/5.0",
		AcceptLanguage: "ja,en;q=0.9",
	}

	a := Fingerprint("hint-abc", reqCtx)
	b := Fingerprint("hint-abc", reqCtx)

	if a != b {
		t.Errorf("Fingerprint not deterministic: %q != %q", a, b)
	}
	if len(a) != 64 {
		t.Errorf("len(hash) = %d, want 64 (hex sha256)", len(a))
	}
}

// 入力のいずれかが異なればハッシュも異なることを検証
func TestFingerprint_DistinguishesInputs(t *testing.T) {
	base := RequestContext{ClientIP: "203.0.113.7", UserAgent: "Mozilla/5.0", AcceptLanguage: "ja"}

	baseline := Fingerprint("hint", base)

	variants := []string{
		Fingerprint("other-hint", base),
		Fingerprint("hint", RequestContext{ClientIP: "203.0.113.8", UserAgent: "Mozilla/5.0", AcceptLanguage: "ja"}),
		Fingerprint("hint", RequestContext{ClientIP: "203.0.113.7", UserAgent: "curl/8.0", AcceptLanguage: "ja"}),
	}

	for i, v := range variants {
		if v == baseline {
			t.Errorf("variant %d produced same hash as baseline", i)
		}
	}
}

// --- Resolve ---

// 既存identityがあればそれを返すことを検証
func TestResolver_Resolve_ExistingIdentity(t *testing.T) {
	existing := &model.Identity{ID: "identity-1", ScopeKey: "app:app-1"}
	repo := &mockIdentityRepo{
		findByScopeFn: func(ctx context.Context, scopeKey, fp string) (*model.Identity, error) {
			if scopeKey != "app:app-1" {
				t.Errorf("scopeKey = %q, want %q", scopeKey, "app:app-1")
			}
			return existing, nil
		},
		createFn: func(ctx context.Context, identity *model.Identity) (bool, error) {
			t.Error("Create should not be called for existing identity")
			return false, nil
		},
	}

	resolver := NewResolver(repo)
	got, err := resolver.Resolve(context.Background(), testApp(model.IsolationModeIsolated), "hint", RequestContext{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ID != "identity-1" {
		t.Errorf("ID = %q, want %q", got.ID, "identity-1")
	}
}

// 初見の訪問者に新規identityが作成されることを検証
func TestResolver_Resolve_CreatesOnFirstSight(t *testing.T) {
	var created *model.Identity
	repo := &mockIdentityRepo{
		createFn: func(ctx context.Context, identity *model.Identity) (bool, error) {
			created = identity
			return true, nil
		},
	}

	resolver := NewResolver(repo)
	got, err := resolver.Resolve(context.Background(), testApp(model.IsolationModeIsolated), "hint", RequestContext{ClientIP: "203.0.113.7"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if created == nil {
		t.Fatal("Create was not called")
	}
	if got.ID == "" {
		t.Error("new identity has empty ID")
	}
	if got.ScopeKey != "app:app-1" {
		t.Errorf("ScopeKey = %q, want %q", got.ScopeKey, "app:app-1")
	}
	if got.FingerprintHash == "" {
		t.Error("new identity has empty fingerprint hash")
	}
}

// organization分離モードではスコープキーが組織単位になることを検証
func TestResolver_Resolve_OrganizationScope(t *testing.T) {
	repo := &mockIdentityRepo{
		findByScopeFn: func(ctx context.Context, scopeKey, fp string) (*model.Identity, error) {
			if scopeKey != "org:org-1" {
				t.Errorf("scopeKey = %q, want %q", scopeKey, "org:org-1")
			}
			return &model.Identity{ID: "identity-1"}, nil
		},
	}

	resolver := NewResolver(repo)
	if _, err := resolver.Resolve(context.Background(), testApp(model.IsolationModeOrganization), "hint", RequestContext{}); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
}

// 別レプリカとの作成競合時に作成済みの行を読み直すことを検証
func TestResolver_Resolve_CreateRace(t *testing.T) {
	winner := &model.Identity{ID: "identity-winner"}
	calls := 0
	repo := &mockIdentityRepo{
		findByScopeFn: func(ctx context.Context, scopeKey, fp string) (*model.Identity, error) {
			calls++
			if calls == 1 {
				return nil, nil // 初回検索では見つからない
			}
			return winner, nil // 競合後の再検索で見つかる
		},
		createFn: func(ctx context.Context, identity *model.Identity) (bool, error) {
			return false, nil // 別レプリカが先に作成済み
		},
	}

	resolver := NewResolver(repo)
	got, err := resolver.Resolve(context.Background(), testApp(model.IsolationModeIsolated), "hint", RequestContext{})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ID != "identity-winner" {
		t.Errorf("ID = %q, want %q", got.ID, "identity-winner")
	}
}

// --- EnsureReferralCode ---

// 割当済みコードはそのまま返され、再割当しないことを検証
func TestResolver_EnsureReferralCode_AlreadyAssigned(t *testing.T) {
	repo := &mockIdentityRepo{
		assignCodeFn: func(ctx context.Context, identityID, code string) (string, error) {
			t.Error("AssignReferralCode should not be called")
			return "", nil
		},
	}

	resolver := NewResolver(repo)
	identity := &model.Identity{ID: "identity-1", ReferralCode: "GROWTH-AB12CD"}

	code, err := resolver.EnsureReferralCode(context.Background(), identity)
	if err != nil {
		t.Fatalf("EnsureReferralCode() error = %v", err)
	}
	if code != "GROWTH-AB12CD" {
		t.Errorf("code = %q, want %q", code, "GROWTH-AB12CD")
	}
}

// 未割当の場合に形式の正しいコードが割り当てられることを検証
func TestResolver_EnsureReferralCode_AssignsNew(t *testing.T) {
	repo := &mockIdentityRepo{}

	resolver := NewResolver(repo)
	identity := &model.Identity{ID: "identity-1"}

	code, err := resolver.EnsureReferralCode(context.Background(), identity)
	if err != nil {
		t.Fatalf("EnsureReferralCode() error = %v", err)
	}
	if !model.ValidateReferralCode(code) {
		t.Errorf("assigned code %q is not a valid referral code", code)
	}
	if identity.ReferralCode != code {
		t.Errorf("identity.ReferralCode = %q, want %q", identity.ReferralCode, code)
	}
}

// コード衝突時にリトライすることを検証
func TestResolver_EnsureReferralCode_RetriesOnCollision(t *testing.T) {
	attempts := 0
	repo := &mockIdentityRepo{
		assignCodeFn: func(ctx context.Context, identityID, code string) (string, error) {
			attempts++
			if attempts < 3 {
				return "", repository.ErrCodeTaken
			}
			return code, nil
		},
	}

	resolver := NewResolver(repo)
	identity := &model.Identity{ID: "identity-1"}

	if _, err := resolver.EnsureReferralCode(context.Background(), identity); err != nil {
		t.Fatalf("EnsureReferralCode() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}
