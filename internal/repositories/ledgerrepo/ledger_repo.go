package ledgerrepo

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/nexbit/dvs/internal/domain"
)

var ErrNotFound = errors.New("record not found")

// ILedgerRepository is the engine's view of the ledger store. Everything the
// settlement pipeline mutates goes through RunAtomic so partial application
// is impossible.
type ILedgerRepository interface {
	FindPendingDepositsWithTxInfo(ctx context.Context) ([]domain.Deposit, error)
	GetDepositByTxHash(ctx context.Context, txHash string) (domain.Deposit, error)
	UpdateDepositNetwork(ctx context.Context, depositID string, network domain.Network) error
	MarkDepositManualReview(ctx context.Context, depositID, reason string) error
	GetUserBalance(ctx context.Context, userID string) (domain.Balance, error)
	RunAtomic(ctx context.Context, fn func(tx ILedgerTx) error) error
	Ping(ctx context.Context) error
}

// ILedgerTx exposes the operations available inside one atomic settlement
// unit. Row locks taken by the ForUpdate reads are held until commit.
type ILedgerTx interface {
	GetDepositForUpdate(ctx context.Context, depositID string) (domain.Deposit, error)
	MarkDepositApproved(ctx context.Context, deposit domain.Deposit) error
	GetBalanceForUpdate(ctx context.Context, userID string) (decimal.Decimal, error)
	SetUserBalance(ctx context.Context, userID string, amount decimal.Decimal) error
	AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error
	GetReferrerID(ctx context.Context, userID string) (string, error)
	CountApprovedDeposits(ctx context.Context, userID, excludeDepositID string) (int, error)
}
