package solana

import (
	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/types"
)

// flatFee prices a transaction: a fixed cost per signature, the rent of any
// account it creates, and a buffered compute budget per instruction
func flatFee(signatures, instructions int, rent uint64) *types.FeeEstimate {
	if signatures < 1 {
		signatures = 1
	}
	compute := ComputeUnitsPerInstruction * uint64(instructions) * (100 + computeBufferPct) / 100
	return types.NewFlatFee(LamportsPerSignature*uint64(signatures), rent, compute)
}

// swapFee prices an aggregator swap, including the priority fee the
// assembled transaction pays for its compute budget
func (a *Adapter) swapFee(rent uint64) *types.FeeEstimate {
	fee := flatFee(1, swapInstructions, rent)
	fee.Lamports += priorityLamports(fee.GasLimit, a.cfg.ComputeUnitPrice)
	return fee
}

// priorityLamports converts a compute budget at a micro-lamport unit price,
// rounding up
func priorityLamports(units, microLamports uint64) uint64 {
	return (units*microLamports + 999_999) / 1_000_000
}

// feeFor prefers a caller-supplied flat estimate
func (a *Adapter) feeFor(exec chain.Execution, own *types.FeeEstimate) *types.FeeEstimate {
	if exec.Fee != nil && exec.Fee.Model == types.FeeModelFlat && exec.Fee.Validate() == nil {
		return exec.Fee
	}
	return own
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
