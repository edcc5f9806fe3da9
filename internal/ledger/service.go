// Package ledger は追記専用クレジット台帳のサービス層を提供する。
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/growthgate/internal/model"
	"github.com/hitoshi/growthgate/internal/repository"
)

// GrantResult は付与操作の結果を表す。
type GrantResult struct {
	// Granted は今回の呼び出しで実際に行が追記されたかどうか。
	// 一度限りのボーナスが付与済みだった場合はfalse。
	Granted bool
	// Balance は操作後の残高（全取引行の合計）。
	Balance int64
}

// Service はクレジット台帳への追記と残高照会を提供する。
// 台帳は追記専用であり、更新・削除は行わない。訂正は相殺行の追加で表現する。
type Service struct {
	ledger repository.LedgerRepository
}

// NewService はServiceを生成する。
func NewService(ledger repository.LedgerRepository) *Service {
	return &Service{ledger: ledger}
}

// Append は取引行を1件追記する。繰り返し可能な理由コード向け。
func (s *Service) Append(ctx context.Context, identityID string, amount int64, reason model.CreditReason, metadata map[string]string) error {
	if !reason.IsValid() {
		return model.NewInvalidReasonError(string(reason))
	}

	tx := &model.CreditTransaction{
		ID:         uuid.New().String(),
		IdentityID: identityID,
		Amount:     amount,
		Reason:     reason,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}
	if err := s.ledger.Append(ctx, tx); err != nil {
		return fmt.Errorf("failed to append credit transaction: %w", err)
	}

	slog.Info("credit appended",
		slog.String("identity_id", identityID),
		slog.Int64("amount", amount),
		slog.String("reason", string(reason)),
	)
	return nil
}

// GrantOnce は一度限りのボーナスを付与する。付与済みの場合はエラーにせず
// Granted=falseの結果を返す（クライアントからは冪等な成功に見える）。
// 付与済み判定と追記はストアのユニーク制約による単一の原子的操作であり、
// 並行呼び出しでもちょうど1回だけ付与される。
func (s *Service) GrantOnce(ctx context.Context, identityID string, amount int64, reason model.CreditReason, metadata map[string]string) (*GrantResult, error) {
	if !reason.IsOneTime() {
		return nil, model.NewInvalidReasonError(string(reason))
	}

	tx := &model.CreditTransaction{
		ID:         uuid.New().String(),
		IdentityID: identityID,
		Amount:     amount,
		Reason:     reason,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}

	granted := true
	err := s.ledger.AppendOnce(ctx, tx)
	if errors.Is(err, repository.ErrAlreadyGranted) {
		granted = false
		slog.Info("one-time credit already granted",
			slog.String("identity_id", identityID),
			slog.String("reason", string(reason)),
		)
	} else if err != nil {
		return nil, fmt.Errorf("failed to grant one-time credit: %w", err)
	}

	balance, err := s.ledger.SumByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance after grant: %w", err)
	}

	if granted {
		slog.Info("one-time credit granted",
			slog.String("identity_id", identityID),
			slog.Int64("amount", amount),
			slog.String("reason", string(reason)),
		)
	}
	return &GrantResult{Granted: granted, Balance: balance}, nil
}

// Adjust は管理者による任意の増減を追記する。金額は負値も許容するがゼロは拒否する。
func (s *Service) Adjust(ctx context.Context, identityID string, amount int64, note string) (int64, error) {
	if amount == 0 {
		return 0, model.NewInvalidAmountError()
	}

	metadata := map[string]string{}
	if note != "" {
		metadata["note"] = note
	}
	if err := s.Append(ctx, identityID, amount, model.ReasonAdminAdjustment, metadata); err != nil {
		return 0, err
	}
	return s.ledger.SumByIdentity(ctx, identityID)
}

// Balance は指定identityの残高を返す。残高は常に取引行の合計から算出する。
func (s *Service) Balance(ctx context.Context, identityID string) (int64, error) {
	return s.ledger.SumByIdentity(ctx, identityID)
}
