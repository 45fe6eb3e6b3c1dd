package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryType string

const (
	LedgerEntryDepositCredit  LedgerEntryType = "deposit_credit"
	LedgerEntryReferralReward LedgerEntryType = "referral_reward"
)

// LedgerEntry is an immutable record of one balance mutation. Entries are
// only ever appended, never updated or deleted.
type LedgerEntry struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	Type          LedgerEntryType `json:"type" db:"type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before" db:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after" db:"balance_after"`
	ReferenceID   string          `json:"reference_id" db:"reference_id"`
	Description   string          `json:"description" db:"description"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

type Balance struct {
	UserID    string          `json:"user_id" db:"user_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// ReferralReward is the outcome of the pure reward computation. The fixed
// bonus applies only to the referred user's first approved deposit; the
// commission applies to every approved deposit.
type ReferralReward struct {
	FixedBonus decimal.Decimal
	Commission decimal.Decimal
}

func (r ReferralReward) Total() decimal.Decimal {
	return r.FixedBonus.Add(r.Commission)
}
