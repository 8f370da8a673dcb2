package evm

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/types"
)

// transferCall builds the native or ERC20 call behind a transfer intent
func (a *Adapter) transferCall(ctx context.Context, intent *types.Intent) (txCall, *big.Int, error) {
	if err := a.ValidateAddress(intent.From); err != nil {
		return txCall{}, nil, err
	}
	if err := a.ValidateAddress(intent.To); err != nil {
		return txCall{}, nil, err
	}
	from, to := common.HexToAddress(intent.From), common.HexToAddress(intent.To)

	decimals, err := a.decimals(ctx, intent.Asset)
	if err != nil {
		return txCall{}, nil, err
	}
	amount := types.ToBaseUnits(intent.Amount, decimals)
	if amount.Sign() <= 0 {
		return txCall{}, nil, types.E(types.InvalidAmount, "evm.transfer", "amount %s is below the smallest unit", intent.Amount)
	}

	if types.IsNative(intent.Asset) {
		return nativeTransferCall(from, to, amount), amount, nil
	}
	c, err := tokenTransferCall(from, common.HexToAddress(intent.Asset), to, amount)
	return c, amount, err
}

// EstimateTransferFee prices a native or ERC20 transfer
func (a *Adapter) EstimateTransferFee(ctx context.Context, intent *types.Intent) (*types.FeeEstimate, error) {
	c, _, err := a.transferCall(ctx, intent)
	if err != nil {
		return nil, err
	}
	return a.estimateFee(ctx, c)
}

// Transfer sends a native or ERC20 transfer and waits for its receipt
func (a *Adapter) Transfer(ctx context.Context, exec chain.Execution) (*types.BroadcastResult, error) {
	intent := exec.Intent
	key, err := a.signerFor(exec)
	if err != nil {
		return nil, err
	}

	c, amount, err := a.transferCall(ctx, intent)
	if err != nil {
		return nil, err
	}
	fee, err := a.feeFor(ctx, exec, c)
	if err != nil {
		return nil, err
	}

	if types.IsNative(intent.Asset) {
		err = a.requireNative(ctx, c.from, new(big.Int).Add(amount, fee.MaxCost()))
	} else {
		err = a.requireToken(ctx, c.from, intent.Asset, amount)
		if err == nil {
			err = a.requireNative(ctx, c.from, fee.MaxCost())
		}
	}
	if err != nil {
		return nil, err
	}

	return a.broadcast(ctx, c, fee, key, exec.Fee != nil, exec.OnSubmitted)
}

// signerFor parses the key and checks it controls the intent's sender
func (a *Adapter) signerFor(exec chain.Execution) (*ecdsa.PrivateKey, error) {
	key, addr, err := parseKey(exec.Signer)
	if err != nil {
		return nil, err
	}
	if exec.Intent.From != "" && !common.IsHexAddress(exec.Intent.From) {
		return nil, types.E(types.InvalidAddress, "evm.key", "invalid sender address: %s", exec.Intent.From)
	}
	if exec.Intent.From != "" && common.HexToAddress(exec.Intent.From) != addr {
		return nil, types.E(types.WalletUnavailable, "evm.key", "key controls %s, not %s", addr.Hex(), exec.Intent.From)
	}
	return key, nil
}

func (a *Adapter) feeFor(ctx context.Context, exec chain.Execution, c txCall) (*types.FeeEstimate, error) {
	if exec.Fee == nil {
		return a.estimateFee(ctx, c)
	}
	if err := exec.Fee.Validate(); err != nil {
		return nil, err
	}
	if exec.Fee.Model == types.FeeModelFlat {
		return nil, types.E(types.FeeEstimationFailed, "evm.fee", "flat fee cannot price an EVM transaction")
	}
	return exec.Fee, nil
}

func (a *Adapter) requireNative(ctx context.Context, owner common.Address, need *big.Int) error {
	have, err := a.NativeBalance(ctx, owner.Hex())
	if err != nil {
		return err
	}
	if have.Cmp(need) < 0 {
		return types.E(types.InsufficientBalance, "evm.balance", "insufficient balance: need %s %s (amount and max fee), have %s",
			types.FromBaseUnits(need, a.cfg.Decimals), a.cfg.Symbol, types.FromBaseUnits(have, a.cfg.Decimals))
	}
	return nil
}

func (a *Adapter) requireToken(ctx context.Context, owner common.Address, asset string, need *big.Int) error {
	have, err := a.TokenBalance(ctx, owner.Hex(), asset)
	if err != nil {
		return err
	}
	if have.Cmp(need) < 0 {
		decimals, _ := a.decimals(ctx, asset)
		return types.E(types.InsufficientBalance, "evm.balance", "insufficient token balance: need %s, have %s",
			types.FromBaseUnits(need, decimals), types.FromBaseUnits(have, decimals))
	}
	return nil
}

// broadcast runs the call through the state machine and decorates the result
func (a *Adapter) broadcast(ctx context.Context, c txCall, fee *types.FeeEstimate, key *ecdsa.PrivateKey, fixed bool, onSubmitted func(string)) (*types.BroadcastResult, error) {
	d := &driver{a: a, call: c, fee: fee, key: key, fixed: fixed}
	res, err := a.machine.Run(ctx, d, onSubmitted)
	if res != nil {
		res.Chain = a.cfg.ID
		res.Kind = c.kind
		res.Explorer = a.Params().ExplorerTxURL(res.TxHash)
	}
	return res, err
}
