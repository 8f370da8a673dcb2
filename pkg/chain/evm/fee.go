package evm

import (
	"context"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"wallet-engine/pkg/types"
)

// Conservative gas limits used when simulation fails
const (
	GasNativeTransfer uint64 = 21000
	GasTokenTransfer  uint64 = 100000
	GasApprove        uint64 = 60000
	GasSwap           uint64 = 250000

	// gasBufferPct is added on top of a simulated gas limit
	gasBufferPct = 20
	// feeHistoryBlocks is the sample used for the priority fee median
	feeHistoryBlocks = 5
)

// txCall is one contract call or value transfer before fee and nonce are fixed
type txCall struct {
	kind        types.OperationKind
	from        common.Address
	to          common.Address
	value       *big.Int
	data        []byte
	fallbackGas uint64
}

func (c txCall) msg() ethereum.CallMsg {
	return ethereum.CallMsg{From: c.from, To: &c.to, Value: c.value, Data: c.data}
}

// estimateFee prices a call: EIP-1559 when the latest block carries a base
// fee, legacy otherwise.
func (a *Adapter) estimateFee(ctx context.Context, c txCall) (*types.FeeEstimate, error) {
	const op = "evm.fee"
	gasLimit := a.estimateGasLimit(ctx, c)

	// latest block decides the model
	var baseFee *big.Int
	err := a.call(ctx, op, func(ctx context.Context) error {
		h, err := a.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		baseFee = h.BaseFee
		return nil
	})
	if err != nil {
		return nil, types.As(types.FeeEstimationFailed, op, err)
	}

	if baseFee != nil {
		tip, err := a.priorityFee(ctx)
		if err != nil {
			return nil, types.As(types.FeeEstimationFailed, op, err)
		}
		// 2x base fee absorbs several full blocks of base fee growth
		maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
		maxFee.Add(maxFee, tip)
		if maxFee.Sign() <= 0 {
			return nil, types.E(types.FeeEstimationFailed, op, "node reported zero base and priority fee")
		}
		return types.NewEIP1559Fee(baseFee, tip, maxFee, gasLimit), nil
	}

	var gasPrice *big.Int
	err = a.call(ctx, op, func(ctx context.Context) error {
		var err error
		gasPrice, err = a.client.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return nil, types.As(types.FeeEstimationFailed, op, err)
	}
	if gasPrice == nil || gasPrice.Sign() <= 0 {
		return nil, types.E(types.FeeEstimationFailed, op, "node reported zero gas price")
	}
	return types.NewLegacyFee(gasPrice, gasLimit), nil
}

// estimateGasLimit simulates the call and adds the buffer; a failed
// simulation falls back to the per-operation constant
func (a *Adapter) estimateGasLimit(ctx context.Context, c txCall) uint64 {
	gas, err := a.client.EstimateGas(ctx, c.msg())
	if err != nil || gas == 0 {
		a.log.Warn().Err(err).Str("kind", string(c.kind)).Uint64("fallback", c.fallbackGas).Msg("Gas estimation failed, using default")
		return c.fallbackGas
	}
	if c.kind == types.OpNativeTransfer && gas == GasNativeTransfer && len(c.data) == 0 {
		// plain value transfers cost exactly 21000 to an EOA
		return gas
	}
	return gas * (100 + gasBufferPct) / 100
}

// priorityFee is the median 50th-percentile reward over recent blocks,
// falling back to the node's suggestion
func (a *Adapter) priorityFee(ctx context.Context) (*big.Int, error) {
	hist, err := a.client.FeeHistory(ctx, feeHistoryBlocks, nil, []float64{50})
	if err == nil && hist != nil {
		rewards := make([]*big.Int, 0, len(hist.Reward))
		for _, r := range hist.Reward {
			if len(r) > 0 && r[0] != nil {
				rewards = append(rewards, r[0])
			}
		}
		if len(rewards) > 0 {
			return median(rewards), nil
		}
	}
	if err != nil {
		a.log.Debug().Err(err).Msg("Fee history unavailable, using suggested tip")
	}

	var tip *big.Int
	err = a.call(ctx, "evm.tip", func(ctx context.Context) error {
		var err error
		tip, err = a.client.SuggestGasTipCap(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if tip == nil {
		return nil, types.E(types.FeeEstimationFailed, "evm.tip", "node returned no tip")
	}
	return tip, nil
}

func median(values []*big.Int) *big.Int {
	sorted := make([]*big.Int, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return new(big.Int).Set(sorted[mid])
	}
	sum := new(big.Int).Add(sorted[mid-1], sorted[mid])
	return sum.Div(sum, big.NewInt(2))
}
