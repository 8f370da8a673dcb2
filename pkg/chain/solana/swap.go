package solana

import (
	"context"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/types"
)

// swapInstructions is the instruction count assumed for an aggregator route:
// compute budget, setup, swap and cleanup
const swapInstructions = 4

func (a *Adapter) requireJupiter(op string) error {
	if a.jupiter == nil {
		return types.E(types.QuoteUnavailable, op, "no aggregator configured for %s", a.cfg.Name)
	}
	return nil
}

// Quote asks Jupiter for the best route
func (a *Adapter) Quote(ctx context.Context, intent *types.Intent) (*types.Quote, error) {
	const op = "solana.quote"
	if err := a.requireJupiter(op); err != nil {
		return nil, err
	}

	inMint, err := mintOf(intent.Asset)
	if err != nil {
		return nil, err
	}
	outMint, err := mintOf(intent.ToAsset)
	if err != nil {
		return nil, err
	}
	if inMint.Equals(outMint) {
		return nil, types.E(types.QuoteUnavailable, op, "no route from %s to itself", inMint)
	}

	decimals, err := a.decimals(ctx, intent.Asset)
	if err != nil {
		return nil, err
	}
	amount := types.ToBaseUnits(intent.Amount, decimals)
	if amount.Sign() <= 0 || !amount.IsUint64() {
		return nil, types.E(types.InvalidAmount, op, "amount %s is out of range", intent.Amount)
	}

	slippage := intent.Slippage()
	bps := types.SlippageBps(slippage)
	if bps == 0 {
		bps = DefaultSlippageBps
	}

	jq, raw, err := a.jupiter.Quote(ctx, inMint.String(), outMint.String(), amount.Uint64(), bps)
	if err != nil {
		return nil, err
	}

	in, ok := new(big.Int).SetString(jq.InAmount, 10)
	if !ok {
		in = amount
	}
	out, ok := new(big.Int).SetString(jq.OutAmount, 10)
	if !ok || out.Sign() <= 0 {
		return nil, types.E(types.QuoteUnavailable, op, "aggregator returned no output amount")
	}

	q := &types.Quote{
		Chain:           a.cfg.ID,
		FromAsset:       assetRef(intent.Asset),
		ToAsset:         assetRef(intent.ToAsset),
		InputAmount:     in,
		OutputAmount:    out,
		MinimumReceived: types.MinimumReceived(out, slippage),
		SlippagePct:     slippage,
		RouteID:         fmt.Sprintf("jupiter:%s>%s", jq.InputMint, jq.OutputMint),
		Provider:        "Jupiter",
		Route:           raw,
		CreatedAt:       a.now().UTC(),
	}
	if impact, err := decimal.NewFromString(jq.PriceImpactPct); err == nil {
		pct := impact.Mul(decimal.NewFromInt(100)).Round(4)
		q.PriceImpactPct = &pct
	}

	if threshold, ok := new(big.Int).SetString(jq.OtherAmountThreshold, 10); ok && threshold.Cmp(q.MinimumReceived) != 0 {
		a.log.Debug().
			Str("aggregator", threshold.String()).
			Str("computed", q.MinimumReceived.String()).
			Msg("Aggregator threshold differs from computed minimum")
	}
	return q, nil
}

// ValidateRoute re-reads the mints declared inside the stored route
func (a *Adapter) ValidateRoute(intent *types.Intent, quote *types.Quote) error {
	const op = "solana.route"
	if quote == nil || len(quote.Route) == 0 {
		return types.E(types.RouteMismatch, op, "swap requires an aggregator route")
	}
	if quote.Chain != "" && quote.Chain != a.cfg.ID {
		return types.E(types.RouteMismatch, op, "quote is for chain %s, intent for %s", quote.Chain, a.cfg.ID)
	}
	if !quote.MatchesAssets(assetRef(intent.Asset), assetRef(intent.ToAsset)) {
		return types.E(types.RouteMismatch, op, "quote route %s -> %s does not match intent %s -> %s",
			quote.FromAsset, quote.ToAsset, intent.Asset, intent.ToAsset)
	}

	jq, err := ParseJupiterQuote(quote.Route)
	if err != nil {
		return types.E(types.RouteMismatch, op, "route is unreadable: %v", err)
	}
	inMint, err := mintOf(intent.Asset)
	if err != nil {
		return err
	}
	outMint, err := mintOf(intent.ToAsset)
	if err != nil {
		return err
	}
	if jq.InputMint != inMint.String() || jq.OutputMint != outMint.String() {
		return types.E(types.RouteMismatch, op, "route declares %s -> %s, intent wants %s -> %s",
			jq.InputMint, jq.OutputMint, inMint, outMint)
	}
	if quote.InputAmount == nil || jq.InAmount != quote.InputAmount.String() {
		return types.E(types.RouteMismatch, op, "route input amount %s differs from quote", jq.InAmount)
	}
	return nil
}

// swapDestination resolves the output token account; SOL output is unwrapped
// into the wallet and needs none
func (a *Adapter) swapDestination(ctx context.Context, owner solana.PublicKey, toAsset string) (*ATA, error) {
	if types.IsNative(toAsset) || toAsset == WrappedSOLMint {
		return nil, nil
	}
	mint, err := parsePublicKey(toAsset)
	if err != nil {
		return nil, err
	}
	return a.atas.Resolve(ctx, owner, mint)
}

func swapFloor(dest *ATA) uint64 {
	if dest != nil && !dest.Exists {
		return SwapFloorWithATA
	}
	return SwapFloor
}

// EstimateSwapFee prices the aggregator transaction, its priority fee and the
// output account rent
func (a *Adapter) EstimateSwapFee(ctx context.Context, intent *types.Intent, quote *types.Quote) (*types.FeeEstimate, error) {
	if err := a.ValidateRoute(intent, quote); err != nil {
		return nil, err
	}
	owner, err := parsePublicKey(intent.From)
	if err != nil {
		return nil, err
	}
	dest, err := a.swapDestination(ctx, owner, intent.ToAsset)
	if err != nil {
		return nil, err
	}
	return a.swapFee(dest.Surcharge()), nil
}

// Swap assembles the quoted route through Jupiter and waits for finality.
// Every signing attempt fetches a newly assembled transaction.
func (a *Adapter) Swap(ctx context.Context, exec chain.Execution) (*types.BroadcastResult, error) {
	const op = "solana.swap"
	intent, quote := exec.Intent, exec.Quote

	if err := a.requireJupiter(op); err != nil {
		return nil, err
	}
	if err := a.ValidateRoute(intent, quote); err != nil {
		return nil, err
	}
	key, err := parseKey(exec)
	if err != nil {
		return nil, err
	}
	owner := key.PublicKey()

	decimals, err := a.decimals(ctx, intent.Asset)
	if err != nil {
		return nil, err
	}
	if amountIn := types.ToBaseUnits(intent.Amount, decimals); amountIn.Cmp(quote.InputAmount) != 0 {
		return nil, types.E(types.RouteMismatch, op, "quote input %s does not match intent amount %s", quote.InputAmount, amountIn)
	}
	if !quote.InputAmount.IsUint64() {
		return nil, types.E(types.InvalidAmount, op, "amount %s is out of range", intent.Amount)
	}
	amount := quote.InputAmount.Uint64()

	dest, err := a.swapDestination(ctx, owner, intent.ToAsset)
	if err != nil {
		return nil, err
	}
	fee := a.feeFor(exec, a.swapFee(dest.Surcharge()))
	fees := maxU64(swapFloor(dest), fee.MaxCost().Uint64())

	have, err := a.lamports(ctx, owner)
	if err != nil {
		return nil, err
	}
	if types.IsNative(intent.Asset) {
		if have < amount+fees {
			return nil, insufficient(amount, fees, have)
		}
	} else {
		tokens, err := a.TokenBalance(ctx, owner.String(), intent.Asset)
		if err != nil {
			return nil, err
		}
		if tokens.Cmp(quote.InputAmount) < 0 {
			return nil, types.E(types.InsufficientBalance, op, "insufficient token balance: need %s, have %s",
				types.FromBaseUnits(quote.InputAmount, decimals), types.FromBaseUnits(tokens, decimals))
		}
		if have < fees {
			return nil, insufficient(0, fees, have)
		}
	}

	destination := ""
	if dest != nil && dest.Exists {
		destination = dest.Address.String()
	}
	prepare := func(ctx context.Context) (*solana.Transaction, error) {
		return a.jupiter.SwapTransaction(ctx, quote.Route, owner.String(), destination, a.cfg.ComputeUnitPrice)
	}

	a.log.Info().
		Str("route", quote.RouteID).
		Str("amount_in", quote.InputAmount.String()).
		Str("min_out", quote.MinimumReceived.String()).
		Msg("Executing swap")

	return a.broadcast(ctx, types.OpSwap, &driver{a: a, prepare: prepare, key: key}, exec.OnSubmitted)
}
