package ledgerrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nexbit/dvs/internal/domain"
	"github.com/nexbit/dvs/internal/infrastructure/database"
)

type ledgerRepository struct {
	db     *database.DBManager
	logger zerolog.Logger
}

type ledgerTx struct {
	tx pgx.Tx
}

func New(db *database.DBManager, logger zerolog.Logger) ILedgerRepository {
	return &ledgerRepository{db: db, logger: logger}
}

func (r *ledgerRepository) FindPendingDepositsWithTxInfo(ctx context.Context) ([]domain.Deposit, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, user_id, tx_hash, network, amount, status, created_at
		FROM deposits
		WHERE status = 'pending' AND tx_hash IS NOT NULL AND tx_hash <> '' AND network IS NOT NULL
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending deposits: %w", err)
	}
	defer rows.Close()

	var deposits []domain.Deposit
	for rows.Next() {
		var d domain.Deposit
		var amount string
		if err := rows.Scan(&d.ID, &d.UserID, &d.TxHash, &d.Network, &amount, &d.Status, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deposit row: %w", err)
		}
		if d.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid deposit amount %q: %w", amount, err)
		}
		deposits = append(deposits, d)
	}
	return deposits, rows.Err()
}

func (r *ledgerRepository) GetDepositByTxHash(ctx context.Context, txHash string) (domain.Deposit, error) {
	var d domain.Deposit
	var amount string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, user_id, tx_hash, network, amount, status,
		       COALESCE(review_reason, ''), created_at
		FROM deposits
		WHERE tx_hash = $1
	`, domain.NormalizeTxHash(txHash)).Scan(
		&d.ID, &d.UserID, &d.TxHash, &d.Network, &amount, &d.Status, &d.ReviewReason, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deposit{}, ErrNotFound
		}
		return domain.Deposit{}, fmt.Errorf("failed to get deposit by tx hash: %w", err)
	}
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Deposit{}, fmt.Errorf("invalid deposit amount %q: %w", amount, err)
	}
	return d, nil
}

func (r *ledgerRepository) UpdateDepositNetwork(ctx context.Context, depositID string, network domain.Network) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE deposits SET network = $1, updated_at = now()
		WHERE id = $2 AND status = 'pending'
	`, network, depositID)
	if err != nil {
		return fmt.Errorf("failed to update deposit network: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ledgerRepository) MarkDepositManualReview(ctx context.Context, depositID, reason string) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE deposits
		SET status = 'manual_review', review_reason = $1, updated_at = now()
		WHERE id = $2 AND status = 'pending'
	`, reason, depositID)
	if err != nil {
		return fmt.Errorf("failed to mark deposit for manual review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ledgerRepository) GetUserBalance(ctx context.Context, userID string) (domain.Balance, error) {
	var b domain.Balance
	var amount string
	err := r.db.Pool.QueryRow(ctx, `
		SELECT user_id, amount, updated_at FROM balances WHERE user_id = $1
	`, userID).Scan(&b.UserID, &amount, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Balance{}, ErrNotFound
		}
		return domain.Balance{}, fmt.Errorf("failed to get balance: %w", err)
	}
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Balance{}, fmt.Errorf("invalid balance amount %q: %w", amount, err)
	}
	return b, nil
}

func (r *ledgerRepository) RunAtomic(ctx context.Context, fn func(tx ILedgerTx) error) error {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *ledgerRepository) Ping(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

func (t *ledgerTx) GetDepositForUpdate(ctx context.Context, depositID string) (domain.Deposit, error) {
	var d domain.Deposit
	var amount string
	err := t.tx.QueryRow(ctx, `
		SELECT id, user_id, tx_hash, network, amount, status, created_at
		FROM deposits
		WHERE id = $1
		FOR UPDATE
	`, depositID).Scan(&d.ID, &d.UserID, &d.TxHash, &d.Network, &amount, &d.Status, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deposit{}, ErrNotFound
		}
		return domain.Deposit{}, fmt.Errorf("failed to lock deposit: %w", err)
	}
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return domain.Deposit{}, fmt.Errorf("invalid deposit amount %q: %w", amount, err)
	}
	return d, nil
}

func (t *ledgerTx) MarkDepositApproved(ctx context.Context, deposit domain.Deposit) error {
	now := time.Now()
	tag, err := t.tx.Exec(ctx, `
		UPDATE deposits
		SET status = 'approved', network = $1, amount = $2, from_address = $3,
		    block_number = $4, verified_at = $5, approved_at = $5, updated_at = $5
		WHERE id = $6 AND status = 'pending'
	`, deposit.Network, deposit.Amount.String(), deposit.FromAddress, deposit.BlockNumber, now, deposit.ID)
	if err != nil {
		return fmt.Errorf("failed to approve deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *ledgerTx) GetBalanceForUpdate(ctx context.Context, userID string) (decimal.Decimal, error) {
	var amount string
	err := t.tx.QueryRow(ctx, `
		SELECT amount FROM balances WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// First credit for this user creates the balance row.
			_, err = t.tx.Exec(ctx, `
				INSERT INTO balances (user_id, amount, updated_at) VALUES ($1, 0, now())
			`, userID)
			if err != nil {
				return decimal.Zero, fmt.Errorf("failed to initialize balance: %w", err)
			}
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to lock balance: %w", err)
	}
	return decimal.NewFromString(amount)
}

func (t *ledgerTx) SetUserBalance(ctx context.Context, userID string, amount decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE balances SET amount = $1, updated_at = now() WHERE user_id = $2
	`, amount.String(), userID)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

func (t *ledgerTx) AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, user_id, type, amount, balance_before, balance_after,
		                            reference_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
	`, entry.ID, entry.UserID, entry.Type, entry.Amount.String(),
		entry.BalanceBefore.String(), entry.BalanceAfter.String(),
		entry.ReferenceID, entry.Description)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (t *ledgerTx) GetReferrerID(ctx context.Context, userID string) (string, error) {
	var referrerID *string
	err := t.tx.QueryRow(ctx, `
		SELECT referrer_id FROM users WHERE id = $1
	`, userID).Scan(&referrerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get referrer: %w", err)
	}
	if referrerID == nil {
		return "", nil
	}
	return *referrerID, nil
}

func (t *ledgerTx) CountApprovedDeposits(ctx context.Context, userID, excludeDepositID string) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM deposits
		WHERE user_id = $1 AND status = 'approved' AND id <> $2
	`, userID, excludeDepositID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count approved deposits: %w", err)
	}
	return count, nil
}
