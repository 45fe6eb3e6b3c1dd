package currency

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FromBaseUnits converts a raw on-chain integer amount into a human amount
// using the token's decimal scale. All chain math stays in base units;
// conversion happens exactly once at the verifier boundary.
func FromBaseUnits(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, 0).Shift(-decimals)
}

// ToBaseUnits converts a human amount back into the token's smallest unit,
// truncating any precision beyond the token's scale.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}
