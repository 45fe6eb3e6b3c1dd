package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VerifyError classifies the outcome of a failed verification attempt.
// Expected conditions are data, not Go errors; only malformed gateway
// responses surface as errors from a verifier.
type VerifyError string

const (
	VerifyErrNone                      VerifyError = ""
	VerifyErrNotFound                  VerifyError = "not_found"
	VerifyErrTxFailed                  VerifyError = "tx_failed"
	VerifyErrNoTransferFound           VerifyError = "no_transfer_found"
	VerifyErrRecipientMismatch         VerifyError = "recipient_mismatch"
	VerifyErrInsufficientConfirmations VerifyError = "insufficient_confirmations"
	VerifyErrRPC                       VerifyError = "rpc_error"
)

// Retryable reports whether the condition may clear on a later tick.
func (e VerifyError) Retryable() bool {
	switch e {
	case VerifyErrNotFound, VerifyErrInsufficientConfirmations, VerifyErrRPC:
		return true
	default:
		return false
	}
}

func (e VerifyError) Reason() string {
	switch e {
	case VerifyErrTxFailed:
		return "transaction reverted on chain"
	case VerifyErrNoTransferFound:
		return "no matching token transfer found"
	case VerifyErrRecipientMismatch:
		return "recipient mismatch: transfer was not sent to the platform address"
	case VerifyErrNotFound:
		return "transaction not found"
	case VerifyErrInsufficientConfirmations:
		return "insufficient confirmations"
	case VerifyErrRPC:
		return "chain gateway unavailable"
	default:
		return string(e)
	}
}

// Verdict is the structured result of one chain-verification attempt.
// It is transient and never persisted.
type Verdict struct {
	Valid          bool
	Amount         decimal.Decimal
	From           string
	To             string
	BlockNumber    int64
	Confirmations  int64
	BlockTimestamp time.Time
	Error          VerifyError
	Detail         string
}
