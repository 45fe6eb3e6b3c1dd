package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Network string
type DepositStatus string

const (
	NetworkTron     Network = "tron"
	NetworkEthereum Network = "ethereum"
)

const (
	DepositStatusPending      DepositStatus = "pending"
	DepositStatusApproved     DepositStatus = "approved"
	DepositStatusManualReview DepositStatus = "manual_review"
)

// Deposit is one user-submitted payment claim. Status is monotonic: once
// approved or under manual review it never returns to pending.
type Deposit struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"user_id" db:"user_id"`
	TxHash       string          `json:"tx_hash" db:"tx_hash"`
	Network      Network         `json:"network" db:"network"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Status       DepositStatus   `json:"status" db:"status"`
	FromAddress  string          `json:"from_address" db:"from_address"`
	BlockNumber  int64           `json:"block_number" db:"block_number"`
	ReviewReason string          `json:"review_reason" db:"review_reason"`
	VerifiedAt   time.Time       `json:"verified_at" db:"verified_at"`
	ApprovedAt   time.Time       `json:"approved_at" db:"approved_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// VerificationTask is the queue's working copy of a pending deposit. It lives
// only in process memory and is rebuilt from the store on startup.
type VerificationTask struct {
	DepositID  string          `json:"deposit_id"`
	UserID     string          `json:"user_id"`
	TxHash     string          `json:"tx_hash"`
	Network    Network         `json:"network"`
	Amount     decimal.Decimal `json:"amount"`
	RetryCount int             `json:"retry_count"`
	CreatedAt  time.Time       `json:"created_at"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// NormalizeTxHash lowercases and trims a user-typed transaction hash so the
// same transaction always maps to the same queue key and unique constraint.
func NormalizeTxHash(txHash string) string {
	return strings.ToLower(strings.TrimSpace(txHash))
}

func TaskFromDeposit(d Deposit) VerificationTask {
	return VerificationTask{
		DepositID:  d.ID,
		UserID:     d.UserID,
		TxHash:     NormalizeTxHash(d.TxHash),
		Network:    d.Network,
		Amount:     d.Amount,
		CreatedAt:  d.CreatedAt,
		EnqueuedAt: time.Now(),
	}
}
