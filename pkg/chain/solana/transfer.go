package solana

import (
	"context"
	"math/big"

	"github.com/gagliardetto/solana-go"

	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/types"
)

// transferPlan is a transfer resolved once for both pricing and building
type transferPlan struct {
	from, to solana.PublicKey
	amount   uint64
	native   bool
	mint     solana.PublicKey
	decimals uint8
	source   solana.PublicKey
	dest     *ATA
	ixs      []solana.Instruction
	fee      *types.FeeEstimate
}

func (a *Adapter) planTransfer(ctx context.Context, intent *types.Intent) (*transferPlan, error) {
	from, err := parsePublicKey(intent.From)
	if err != nil {
		return nil, err
	}
	to, err := parsePublicKey(intent.To)
	if err != nil {
		return nil, err
	}

	p := &transferPlan{from: from, to: to, native: types.IsNative(intent.Asset)}
	if p.native {
		p.decimals = 9
	} else {
		p.mint, err = parsePublicKey(intent.Asset)
		if err != nil {
			return nil, err
		}
		if p.decimals, err = a.decimals(ctx, intent.Asset); err != nil {
			return nil, err
		}
	}

	amount := types.ToBaseUnits(intent.Amount, p.decimals)
	if amount.Sign() <= 0 || !amount.IsUint64() {
		return nil, types.E(types.InvalidAmount, "solana.transfer", "amount %s is out of range", intent.Amount)
	}
	p.amount = amount.Uint64()

	if p.native {
		p.ixs = nativeTransferIxs(from, to, p.amount)
		p.fee = flatFee(1, len(p.ixs), 0)
		return p, nil
	}

	p.source, _, err = solana.FindAssociatedTokenAddress(from, p.mint)
	if err != nil {
		return nil, err
	}
	if p.dest, err = a.atas.Resolve(ctx, to, p.mint); err != nil {
		return nil, err
	}
	p.ixs = tokenTransferIxs(from, p.source, p.dest, p.amount, p.decimals)
	p.fee = flatFee(1, len(p.ixs), p.dest.Surcharge())
	return p, nil
}

// EstimateTransferFee prices a SOL or SPL transfer including the rent of a
// recipient token account that does not exist yet
func (a *Adapter) EstimateTransferFee(ctx context.Context, intent *types.Intent) (*types.FeeEstimate, error) {
	p, err := a.planTransfer(ctx, intent)
	if err != nil {
		return nil, err
	}
	return p.fee, nil
}

// Transfer sends SOL or an SPL token and waits for finality
func (a *Adapter) Transfer(ctx context.Context, exec chain.Execution) (*types.BroadcastResult, error) {
	key, err := parseKey(exec)
	if err != nil {
		return nil, err
	}
	p, err := a.planTransfer(ctx, exec.Intent)
	if err != nil {
		return nil, err
	}
	fees := a.feeFor(exec, p.fee).MaxCost().Uint64()

	have, err := a.lamports(ctx, p.from)
	if err != nil {
		return nil, err
	}
	if p.native {
		if have < p.amount+fees {
			return nil, insufficient(p.amount, fees, have)
		}
	} else {
		tokens, err := a.tokenAccountBalance(ctx, p.source)
		if err != nil {
			return nil, err
		}
		if tokens < p.amount {
			return nil, types.E(types.InsufficientBalance, "solana.balance", "insufficient token balance: need %s, have %s",
				types.FromBaseUnits(new(big.Int).SetUint64(p.amount), p.decimals), types.FromBaseUnits(new(big.Int).SetUint64(tokens), p.decimals))
		}
		if have < fees {
			return nil, insufficient(0, fees, have)
		}
	}

	kind := types.OpNativeTransfer
	if !p.native {
		kind = types.OpTokenTransfer
	}
	d := &driver{a: a, prepare: a.localPrepare(p.ixs, p.from), key: key}
	return a.broadcast(ctx, kind, d, exec.OnSubmitted)
}
