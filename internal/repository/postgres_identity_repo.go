package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/growthgate/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

const identityColumns = `id, app_id, scope_key, fingerprint_hash,
	COALESCE(referral_code, ''), COALESCE(referred_by::text, ''), created_at`

// scanIdentity は1行をmodel.Identityに読み込む。
func scanIdentity(row interface{ Scan(...any) error }) (*model.Identity, error) {
	identity := &model.Identity{}
	err := row.Scan(
		&identity.ID, &identity.AppID, &identity.ScopeKey, &identity.FingerprintHash,
		&identity.ReferralCode, &identity.ReferredBy, &identity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by ID: %w", err)
	}
	return identity, nil
}

// FindByScopeAndFingerprint はスコープキーとフィンガープリントでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByScopeAndFingerprint(ctx context.Context, scopeKey, fingerprintHash string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities
		 WHERE scope_key = $1 AND fingerprint_hash = $2`,
		scopeKey, fingerprintHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by fingerprint: %w", err)
	}
	return identity, nil
}

// Create はidentityを作成する。
// 同一(scope_key, fingerprint_hash)の行が既に存在する場合は何もせずfalseを返す。
// レプリカ間で初見の訪問者を同時に解決した場合の作成競合をON CONFLICTで吸収する。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, app_id, scope_key, fingerprint_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (scope_key, fingerprint_hash) DO NOTHING`,
		identity.ID, identity.AppID, identity.ScopeKey, identity.FingerprintHash, identity.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert identity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// FindByReferralCode は紹介コードでidentityを検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByReferralCode(ctx context.Context, code string) (*model.Identity, error) {
	identity, err := scanIdentity(r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE referral_code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by referral code: %w", err)
	}
	return identity, nil
}

// AssignReferralCode は未割当のidentityに紹介コードを割り当てる。
// referral_codeがnullの場合のみ更新し、割当済み・競合時は既存コードを返す。
func (r *PostgresIdentityRepo) AssignReferralCode(ctx context.Context, identityID, code string) (string, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET referral_code = $2
		 WHERE id = $1 AND referral_code IS NULL`,
		identityID, code,
	)
	if err != nil {
		var pqErr *pq.Error
		// 23505: 生成したコードが別identityに割当済み
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return "", ErrCodeTaken
		}
		return "", fmt.Errorf("failed to assign referral code: %w", err)
	}

	// 更新有無に関わらず現在のコードを読み直す（既割当の場合は既存コード）
	var current string
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(referral_code, '') FROM identities WHERE id = $1`,
		identityID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("identity not found: %s", identityID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read referral code: %w", err)
	}
	return current, nil
}

// SetReferredBy はreferred_byがnullの場合のみ紹介元を設定する。
// 条件付きUPDATE 1文で行うため、並行クレームでも最初の1回だけ成立する。
func (r *PostgresIdentityRepo) SetReferredBy(ctx context.Context, identityID, referrerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET referred_by = $2
		 WHERE id = $1 AND referred_by IS NULL`,
		identityID, referrerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set referred_by: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
