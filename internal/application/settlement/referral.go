package settlement

import (
	"github.com/shopspring/decimal"

	"github.com/nexbit/dvs/internal/domain"
	"github.com/nexbit/dvs/pkg/config"
)

var oneHundred = decimal.NewFromInt(100)

// ComputeReferralReward calculates what the referrer earns for one approved
// deposit: a fixed bonus on the referred user's first approved deposit plus
// a lifetime percentage commission on every deposit. Pure; no I/O.
func ComputeReferralReward(cfg config.ReferralConfig, depositAmount decimal.Decimal, firstDeposit bool) domain.ReferralReward {
	reward := domain.ReferralReward{
		FixedBonus: decimal.Zero,
		Commission: depositAmount.Mul(cfg.Percent()).Div(oneHundred),
	}
	if firstDeposit {
		reward.FixedBonus = cfg.Bonus()
	}
	return reward
}
