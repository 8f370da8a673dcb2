package evm

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/types"
)

// swapPlan is the router call for a quote
func (a *Adapter) swapPlan(intent *types.Intent, quote *types.Quote) (txCall, error) {
	from := common.HexToAddress(intent.From)
	router := common.HexToAddress(a.cfg.Router)
	path := []common.Address{a.routeAsset(intent.Asset), a.routeAsset(intent.ToAsset)}
	deadline := a.now().Add(a.deadline)

	return swapCall(from, router, types.IsNative(intent.Asset), types.IsNative(intent.ToAsset),
		path, quote.InputAmount, quote.MinimumReceived, deadline)
}

// EstimateSwapFee prices the router call. An approval, when needed, is
// priced separately at execution.
func (a *Adapter) EstimateSwapFee(ctx context.Context, intent *types.Intent, quote *types.Quote) (*types.FeeEstimate, error) {
	if err := a.ValidateAddress(intent.From); err != nil {
		return nil, err
	}
	if err := a.ValidateRoute(intent, quote); err != nil {
		return nil, err
	}
	c, err := a.swapPlan(intent, quote)
	if err != nil {
		return nil, err
	}
	return a.estimateFee(ctx, c)
}

// Swap executes a quoted router swap, approving the router first when the
// allowance is short
func (a *Adapter) Swap(ctx context.Context, exec chain.Execution) (*types.BroadcastResult, error) {
	const op = "evm.swap"
	intent, quote := exec.Intent, exec.Quote

	if err := a.ValidateRoute(intent, quote); err != nil {
		return nil, err
	}
	key, err := a.signerFor(exec)
	if err != nil {
		return nil, err
	}

	decimals, err := a.decimals(ctx, intent.Asset)
	if err != nil {
		return nil, err
	}
	if amountIn := types.ToBaseUnits(intent.Amount, decimals); amountIn.Cmp(quote.InputAmount) != 0 {
		return nil, types.E(types.RouteMismatch, op, "quote input %s does not match intent amount %s", quote.InputAmount, amountIn)
	}

	owner := common.HexToAddress(intent.From)
	nativeIn := types.IsNative(intent.Asset)
	if !nativeIn {
		if err := a.requireToken(ctx, owner, intent.Asset, quote.InputAmount); err != nil {
			return nil, err
		}
	}

	var approval *types.BroadcastResult
	if !nativeIn {
		approval, err = a.ensureAllowance(ctx, key, owner, common.HexToAddress(intent.Asset), quote.InputAmount)
		if err != nil {
			if approval != nil {
				return &types.BroadcastResult{Chain: a.cfg.ID, Kind: types.OpSwap, Status: approval.Status, Approval: approval}, err
			}
			return nil, err
		}
	}

	c, err := a.swapPlan(intent, quote)
	if err != nil {
		return nil, err
	}
	fee, err := a.feeFor(ctx, exec, c)
	if err != nil {
		return nil, err
	}

	need := fee.MaxCost()
	if nativeIn {
		need.Add(need, quote.InputAmount)
	}
	if err := a.requireNative(ctx, owner, need); err != nil {
		return nil, err
	}

	a.log.Info().
		Str("route", quote.RouteID).
		Str("amount_in", quote.InputAmount.String()).
		Str("min_out", quote.MinimumReceived.String()).
		Msg("Executing swap")

	res, err := a.broadcast(ctx, c, fee, key, exec.Fee != nil, exec.OnSubmitted)
	if res != nil {
		res.Approval = approval
	}
	return res, err
}

// ensureAllowance approves exactly the swap input when the router's
// allowance is short. The approval gets its own receipt wait.
func (a *Adapter) ensureAllowance(ctx context.Context, key *ecdsa.PrivateKey, owner, token common.Address, amount *big.Int) (*types.BroadcastResult, error) {
	router := common.HexToAddress(a.cfg.Router)
	out, err := a.callERC20(ctx, token, "allowance", owner, router)
	if err != nil {
		return nil, err
	}
	allowance, _ := out[0].(*big.Int)
	if allowance != nil && allowance.Cmp(amount) >= 0 {
		return nil, nil
	}

	c, err := approveCall(owner, token, router, amount)
	if err != nil {
		return nil, err
	}
	fee, err := a.estimateFee(ctx, c)
	if err != nil {
		return nil, err
	}
	if err := a.requireNative(ctx, owner, fee.MaxCost()); err != nil {
		return nil, err
	}

	a.log.Info().Str("token", token.Hex()).Str("amount", amount.String()).Msg("Approving router")
	return a.broadcast(ctx, c, fee, key, false, nil)
}
