package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/growthgate/internal/model"
)

// PostgresLedgerRepo はPostgreSQLを使用した追記専用クレジット台帳リポジトリ。
// 行のUPDATE・DELETEは発行しない。
type PostgresLedgerRepo struct {
	db *sql.DB
}

// NewPostgresLedgerRepo はPostgresLedgerRepoを生成する。
func NewPostgresLedgerRepo(db *sql.DB) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{db: db}
}

// Append は取引行を1件追記する。
// 追記は可換なので同一identityへの並行呼び出しに対して安全。
func (r *PostgresLedgerRepo) Append(ctx context.Context, tx *model.CreditTransaction) error {
	metadata, err := marshalMetadata(tx.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO credit_transactions (id, identity_id, amount, reason, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		tx.ID, tx.IdentityID, tx.Amount, string(tx.Reason), metadata, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append credit transaction: %w", err)
	}
	return nil
}

// AppendOnce は一度限りの理由コードの取引行を追記する。
// 重複判定はINSERT自体に対する部分ユニークインデックス違反（23505）で行う。
// check-then-appendを別操作に分けると並行リクエストで二重付与が起きるため、
// 判定と追記をストア側の単一の原子的操作にしている。
func (r *PostgresLedgerRepo) AppendOnce(ctx context.Context, tx *model.CreditTransaction) error {
	err := r.Append(ctx, tx)
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrAlreadyGranted
	}
	return err
}

// SumByIdentity は指定identityの全取引の合計（残高）を返す。
// 毎回行の合計から算出し、別に保持したカウンタを参照しない。
func (r *PostgresLedgerRepo) SumByIdentity(ctx context.Context, identityID string) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE identity_id = $1`,
		identityID,
	).Scan(&sum)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to sum credit transactions: %w", err)
	}
	return sum, nil
}

// marshalMetadata はメタデータをJSONB格納用にシリアライズする。
func marshalMetadata(m map[string]string) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return raw, nil
}

// compile-time interface check
var _ LedgerRepository = (*PostgresLedgerRepo)(nil)
