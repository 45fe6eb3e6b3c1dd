package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nexbit/dvs/internal/domain"
	"github.com/nexbit/dvs/internal/repositories/ledgerrepo"
	"github.com/nexbit/dvs/pkg/config"
)

// ISettlementPipeline atomically credits a verified deposit: balance update,
// ledger entry, deposit approval and the referral reward all commit together
// or not at all.
type ISettlementPipeline interface {
	Settle(ctx context.Context, task domain.VerificationTask, verdict domain.Verdict) error
}

type settlementPipeline struct {
	store    ledgerrepo.ILedgerRepository
	referral config.ReferralConfig
	events   domain.EventSink
	logger   zerolog.Logger
}

func New(store ledgerrepo.ILedgerRepository, referral config.ReferralConfig, events domain.EventSink, logger zerolog.Logger) ISettlementPipeline {
	return &settlementPipeline{
		store:    store,
		referral: referral,
		events:   events,
		logger:   logger,
	}
}

func (p *settlementPipeline) Settle(ctx context.Context, task domain.VerificationTask, verdict domain.Verdict) error {
	var approved domain.Deposit
	var newBalance domain.Balance
	settled := false

	err := p.store.RunAtomic(ctx, func(tx ledgerrepo.ILedgerTx) error {
		deposit, err := tx.GetDepositForUpdate(ctx, task.DepositID)
		if err != nil {
			return fmt.Errorf("failed to lock deposit %s: %w", task.DepositID, err)
		}

		// Idempotence backstop: another instance may already have settled
		// this deposit. A non-pending row makes the whole unit a no-op.
		if deposit.Status != domain.DepositStatusPending {
			p.logger.Info().
				Str("deposit_id", deposit.ID).
				Str("status", string(deposit.Status)).
				Msg("Deposit no longer pending, skipping settlement")
			return nil
		}

		balanceBefore, err := tx.GetBalanceForUpdate(ctx, deposit.UserID)
		if err != nil {
			return fmt.Errorf("failed to lock balance for user %s: %w", deposit.UserID, err)
		}

		// The on-chain amount is authoritative, not the user's claim.
		balanceAfter := balanceBefore.Add(verdict.Amount)

		deposit.Amount = verdict.Amount
		deposit.FromAddress = verdict.From
		deposit.BlockNumber = verdict.BlockNumber
		deposit.Network = task.Network
		if err := tx.MarkDepositApproved(ctx, deposit); err != nil {
			return fmt.Errorf("failed to approve deposit %s: %w", deposit.ID, err)
		}

		if err := tx.SetUserBalance(ctx, deposit.UserID, balanceAfter); err != nil {
			return err
		}

		if err := tx.AppendLedgerEntry(ctx, domain.LedgerEntry{
			ID:            uuid.New().String(),
			UserID:        deposit.UserID,
			Type:          domain.LedgerEntryDepositCredit,
			Amount:        verdict.Amount,
			BalanceBefore: balanceBefore,
			BalanceAfter:  balanceAfter,
			ReferenceID:   deposit.ID,
			Description:   fmt.Sprintf("Deposit %s credited from tx %s", deposit.ID, deposit.TxHash),
		}); err != nil {
			return err
		}

		if err := p.settleReferralReward(ctx, tx, deposit, verdict); err != nil {
			return err
		}

		deposit.Status = domain.DepositStatusApproved
		deposit.ApprovedAt = time.Now()
		approved = deposit
		newBalance = domain.Balance{UserID: deposit.UserID, Amount: balanceAfter, UpdatedAt: time.Now()}
		settled = true
		return nil
	})
	if err != nil {
		return err
	}

	if settled {
		p.logger.Info().
			Str("deposit_id", approved.ID).
			Str("tx_hash", approved.TxHash).
			Str("amount", verdict.Amount.String()).
			Str("network", string(approved.Network)).
			Msg("Deposit settled")

		p.events.Publish(domain.Event{Type: domain.EventDepositUpdated, Deposit: &approved})
		p.events.Publish(domain.Event{Type: domain.EventBalanceUpdated, Balance: &newBalance})
	}
	return nil
}

// settleReferralReward credits the referrer inside the deposit's own
// transaction so "exactly one first-deposit bonus" holds even across
// concurrent engine instances.
func (p *settlementPipeline) settleReferralReward(ctx context.Context, tx ledgerrepo.ILedgerTx, deposit domain.Deposit, verdict domain.Verdict) error {
	referrerID, err := tx.GetReferrerID(ctx, deposit.UserID)
	if err != nil {
		return err
	}
	if referrerID == "" {
		return nil
	}

	priorApproved, err := tx.CountApprovedDeposits(ctx, deposit.UserID, deposit.ID)
	if err != nil {
		return err
	}

	reward := ComputeReferralReward(p.referral, verdict.Amount, priorApproved == 0)
	if !reward.Total().IsPositive() {
		return nil
	}

	balanceBefore, err := tx.GetBalanceForUpdate(ctx, referrerID)
	if err != nil {
		return fmt.Errorf("failed to lock referrer balance: %w", err)
	}
	balanceAfter := balanceBefore.Add(reward.Total())

	if err := tx.SetUserBalance(ctx, referrerID, balanceAfter); err != nil {
		return err
	}

	return tx.AppendLedgerEntry(ctx, domain.LedgerEntry{
		ID:            uuid.New().String(),
		UserID:        referrerID,
		Type:          domain.LedgerEntryReferralReward,
		Amount:        reward.Total(),
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceAfter,
		ReferenceID:   deposit.ID,
		Description: fmt.Sprintf("Referral reward for deposit %s (bonus %s, commission %s)",
			deposit.ID, reward.FixedBonus.String(), reward.Commission.String()),
	})
}
