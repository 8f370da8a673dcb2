package types

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human amount into the asset's smallest unit, truncating dust
func ToBaseUnits(amount decimal.Decimal, decimals uint8) *big.Int {
	return amount.Shift(int32(decimals)).Truncate(0).BigInt()
}

// FromBaseUnits converts a smallest-unit amount into a human amount
func FromBaseUnits(amount *big.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// MinimumReceived applies a slippage tolerance in percent to an expected output:
// floor(out * (100 - slippage) / 100)
func MinimumReceived(out *big.Int, slippagePct decimal.Decimal) *big.Int {
	if out == nil || out.Sign() <= 0 {
		return big.NewInt(0)
	}
	if slippagePct.IsNegative() {
		slippagePct = decimal.Zero
	}
	if slippagePct.GreaterThan(decimal.NewFromInt(100)) {
		slippagePct = decimal.NewFromInt(100)
	}
	keep := decimal.NewFromInt(100).Sub(slippagePct)
	return decimal.NewFromBigInt(out, 0).Mul(keep).Div(decimal.NewFromInt(100)).Floor().BigInt()
}

// SlippageBps converts a percent tolerance to basis points
func SlippageBps(slippagePct decimal.Decimal) uint64 {
	return uint64(slippagePct.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

// ValidSlippage reports whether the tolerance lies in (0, 100]
func ValidSlippage(slippagePct decimal.Decimal) bool {
	return slippagePct.IsPositive() && slippagePct.LessThanOrEqual(decimal.NewFromInt(100))
}
