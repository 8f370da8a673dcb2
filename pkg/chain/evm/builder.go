package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"wallet-engine/pkg/types"
)

func nativeTransferCall(from, to common.Address, amount *big.Int) txCall {
	return txCall{
		kind:        types.OpNativeTransfer,
		from:        from,
		to:          to,
		value:       amount,
		fallbackGas: GasNativeTransfer,
	}
}

func tokenTransferCall(from, token, to common.Address, amount *big.Int) (txCall, error) {
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return txCall{}, fmt.Errorf("failed to pack transfer data: %w", err)
	}
	return txCall{
		kind:        types.OpTokenTransfer,
		from:        from,
		to:          token,
		value:       big.NewInt(0),
		data:        data,
		fallbackGas: GasTokenTransfer,
	}, nil
}

func approveCall(from, token, spender common.Address, amount *big.Int) (txCall, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return txCall{}, fmt.Errorf("failed to pack approve data: %w", err)
	}
	return txCall{
		kind:        types.OpApprove,
		from:        from,
		to:          token,
		value:       big.NewInt(0),
		data:        data,
		fallbackGas: GasApprove,
	}, nil
}

// swapCall picks the router function by which side is native
func swapCall(from, router common.Address, nativeIn, nativeOut bool, path []common.Address, amountIn, minOut *big.Int, deadline time.Time) (txCall, error) {
	dl := big.NewInt(deadline.Unix())

	var (
		data  []byte
		value = big.NewInt(0)
		err   error
	)
	switch {
	case nativeIn && nativeOut:
		return txCall{}, types.E(types.InvalidAddress, "evm.swap", "cannot swap native for native")
	case nativeIn:
		data, err = routerABI.Pack("swapExactETHForTokens", minOut, path, from, dl)
		value = amountIn
	case nativeOut:
		data, err = routerABI.Pack("swapExactTokensForETH", amountIn, minOut, path, from, dl)
	default:
		data, err = routerABI.Pack("swapExactTokensForTokens", amountIn, minOut, path, from, dl)
	}
	if err != nil {
		return txCall{}, fmt.Errorf("failed to pack swap data: %w", err)
	}
	return txCall{
		kind:        types.OpSwap,
		from:        from,
		to:          router,
		value:       value,
		data:        data,
		fallbackGas: GasSwap,
	}, nil
}

// buildTx fixes fee and nonce; the fee model decides the envelope type
func buildTx(c txCall, fee *types.FeeEstimate, nonce uint64, chainID *big.Int) (*gethtypes.Transaction, error) {
	to := c.to
	value := c.value
	if value == nil {
		value = big.NewInt(0)
	}

	switch fee.Model {
	case types.FeeModelEIP1559:
		return gethtypes.NewTx(&gethtypes.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: fee.PriorityFee,
			GasFeeCap: fee.MaxFee,
			Gas:       fee.GasLimit,
			To:        &to,
			Value:     value,
			Data:      c.data,
		}), nil
	case types.FeeModelLegacy:
		return gethtypes.NewTx(&gethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: fee.GasPrice,
			Gas:      fee.GasLimit,
			To:       &to,
			Value:    value,
			Data:     c.data,
		}), nil
	}
	return nil, types.E(types.FeeEstimationFailed, "evm.build", "fee model %q cannot price an EVM transaction", fee.Model)
}

func signTx(tx *gethtypes.Transaction, chainID *big.Int, key *ecdsa.PrivateKey) (*gethtypes.Transaction, error) {
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}
