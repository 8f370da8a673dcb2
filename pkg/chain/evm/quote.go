package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"wallet-engine/pkg/types"
)

// MaxDisplayedImpact is the ceiling applied to computed price impact, in percent
var MaxDisplayedImpact = decimal.NewFromInt(5)

// routeAsset maps native references to the wrapped native token; pools only
// hold ERC20s
func (a *Adapter) routeAsset(asset string) common.Address {
	if types.IsNative(asset) {
		return common.HexToAddress(a.cfg.WrappedNative)
	}
	return common.HexToAddress(asset)
}

// Quote asks the router for the output of a two-hop path [from, to]
func (a *Adapter) Quote(ctx context.Context, intent *types.Intent) (*types.Quote, error) {
	const op = "evm.quote"

	if a.cfg.Router == "" {
		return nil, types.E(types.QuoteUnavailable, op, "no DEX router configured for %s", a.cfg.Name)
	}
	for _, asset := range []string{intent.Asset, intent.ToAsset} {
		if !types.IsNative(asset) {
			if err := a.ValidateAddress(asset); err != nil {
				return nil, err
			}
		}
	}

	from, to := a.routeAsset(intent.Asset), a.routeAsset(intent.ToAsset)
	if from == to {
		return nil, types.E(types.QuoteUnavailable, op, "no pool between %s and %s", intent.Asset, intent.ToAsset)
	}

	decimals, err := a.decimals(ctx, intent.Asset)
	if err != nil {
		return nil, err
	}
	amountIn := types.ToBaseUnits(intent.Amount, decimals)
	if amountIn.Sign() <= 0 {
		return nil, types.E(types.InvalidAmount, op, "amount %s is below the smallest unit", intent.Amount)
	}

	path := []common.Address{from, to}
	amountOut, err := a.amountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}

	slippage := intent.Slippage()
	q := &types.Quote{
		Chain:           a.cfg.ID,
		FromAsset:       assetRef(intent.Asset),
		ToAsset:         assetRef(intent.ToAsset),
		InputAmount:     amountIn,
		OutputAmount:    amountOut,
		MinimumReceived: types.MinimumReceived(amountOut, slippage),
		SlippagePct:     slippage,
		RouteID:         fmt.Sprintf("%s:%s>%s", a.cfg.Router, from.Hex(), to.Hex()),
		Provider:        a.cfg.DEX,
		CreatedAt:       a.now().UTC(),
	}

	// reference trade of one whole unit on the same path
	ref := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	refOut, err := a.amountsOut(ctx, ref, path)
	if err != nil {
		a.log.Debug().Err(err).Msg("Reference quote failed, price impact unknown")
		return q, nil
	}
	impact, clamped := priceImpact(amountIn, amountOut, ref, refOut)
	if impact != nil {
		q.PriceImpactPct = impact
		q.ImpactClamped = clamped
	}
	return q, nil
}

func assetRef(asset string) string {
	if types.IsNative(asset) {
		return types.NativeAsset
	}
	return common.HexToAddress(asset).Hex()
}

// amountsOut calls getAmountsOut and returns the last hop's amount
func (a *Adapter) amountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	const op = "evm.amounts_out"

	data, err := routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getAmountsOut: %w", err)
	}
	router := common.HexToAddress(a.cfg.Router)

	var raw []byte
	err = a.call(ctx, op, func(ctx context.Context) error {
		var err error
		raw, err = a.client.CallContract(ctx, ethereum.CallMsg{To: &router, Data: data}, nil)
		return err
	})
	if err != nil {
		if types.KindOf(err).Transient() {
			return nil, err
		}
		// a reverting router call means no pair or no reserves
		return nil, types.E(types.QuoteUnavailable, op, "no liquidity for path: %v", err)
	}

	out, err := routerABI.Unpack("getAmountsOut", raw)
	if err != nil || len(out) == 0 {
		return nil, types.E(types.QuoteUnavailable, op, "router returned no amounts")
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) < len(path) {
		return nil, types.E(types.QuoteUnavailable, op, "router returned malformed amounts")
	}
	last := amounts[len(amounts)-1]
	if last == nil || last.Sign() <= 0 {
		return nil, types.E(types.QuoteUnavailable, op, "no liquidity for path")
	}
	return last, nil
}

// priceImpact compares the realized rate with a reference rate, in percent.
// Negative impact (size better than reference) reports zero.
func priceImpact(amountIn, amountOut, refIn, refOut *big.Int) (*decimal.Decimal, bool) {
	if amountIn.Sign() <= 0 || refIn.Sign() <= 0 || refOut == nil || refOut.Sign() <= 0 {
		return nil, false
	}
	realized := decimal.NewFromBigInt(amountOut, 0).DivRound(decimal.NewFromBigInt(amountIn, 0), 36)
	reference := decimal.NewFromBigInt(refOut, 0).DivRound(decimal.NewFromBigInt(refIn, 0), 36)
	if reference.IsZero() {
		return nil, false
	}

	impact := decimal.NewFromInt(1).Sub(realized.DivRound(reference, 36)).Mul(decimal.NewFromInt(100))
	if impact.IsNegative() {
		impact = decimal.Zero
	}
	clamped := false
	if impact.GreaterThan(MaxDisplayedImpact) {
		impact = MaxDisplayedImpact
		clamped = true
	}
	impact = impact.Round(4)
	return &impact, clamped
}

// ValidateRoute checks the quote against the intent without touching the network
func (a *Adapter) ValidateRoute(intent *types.Intent, quote *types.Quote) error {
	const op = "evm.route"
	if quote == nil {
		return types.E(types.RouteMismatch, op, "swap requires a quote")
	}
	if quote.Chain != "" && quote.Chain != a.cfg.ID {
		return types.E(types.RouteMismatch, op, "quote is for chain %s, intent for %s", quote.Chain, a.cfg.ID)
	}
	if !quote.MatchesAssets(assetRef(intent.Asset), assetRef(intent.ToAsset)) {
		return types.E(types.RouteMismatch, op, "quote route %s -> %s does not match intent %s -> %s",
			quote.FromAsset, quote.ToAsset, intent.Asset, intent.ToAsset)
	}
	if quote.RouteID != "" && !strings.HasPrefix(quote.RouteID, a.cfg.Router+":") {
		return types.E(types.RouteMismatch, op, "quote was produced by a different router")
	}
	if quote.MinimumReceived == nil || quote.InputAmount == nil || quote.InputAmount.Sign() <= 0 {
		return types.E(types.RouteMismatch, op, "quote carries no amounts")
	}
	return nil
}
