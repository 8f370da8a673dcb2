package solana

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"wallet-engine/pkg/chain"
	"wallet-engine/pkg/types"
)

// nftPlan is an NFT transfer resolved once for pricing and building
type nftPlan struct {
	from   solana.PublicKey
	holder solana.PublicKey
	dest   *ATA
	ixs    []solana.Instruction
	fee    *types.FeeEstimate
}

// holderAccount finds the owner's token account holding the single unit of mint
func (a *Adapter) holderAccount(ctx context.Context, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	var accounts []*rpc.TokenAccount
	err := a.pool.Do(ctx, "solana.nft_holder", func(ctx context.Context, c RPC) error {
		out, err := c.GetTokenAccountsByOwner(ctx, owner,
			&rpc.GetTokenAccountsConfig{Mint: mint.ToPointer()},
			&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64, Commitment: a.commit},
		)
		if err != nil {
			return err
		}
		if out != nil {
			accounts = out.Value
		}
		return nil
	})
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to get token accounts: %w", err)
	}

	for _, acct := range accounts {
		if acct == nil || acct.Account.Data == nil {
			continue
		}
		var ta token.Account
		if err := bin.NewBinDecoder(acct.Account.Data.GetBinary()).Decode(&ta); err != nil {
			continue
		}
		if ta.Amount == 1 {
			return acct.Pubkey, nil
		}
	}
	return solana.PublicKey{}, types.E(types.InsufficientBalance, "solana.nft", "%s does not hold NFT %s", owner, mint)
}

func (a *Adapter) planNFT(ctx context.Context, intent *types.Intent) (*nftPlan, error) {
	from, err := parsePublicKey(intent.From)
	if err != nil {
		return nil, err
	}
	to, err := parsePublicKey(intent.To)
	if err != nil {
		return nil, err
	}
	mint, err := parsePublicKey(intent.Asset)
	if err != nil {
		return nil, err
	}

	p := &nftPlan{from: from}
	if p.holder, err = a.holderAccount(ctx, from, mint); err != nil {
		return nil, err
	}
	if p.dest, err = a.atas.Resolve(ctx, to, mint); err != nil {
		return nil, err
	}
	p.ixs = tokenTransferIxs(from, p.holder, p.dest, 1, 0)
	p.fee = flatFee(1, len(p.ixs), p.dest.Surcharge())
	return p, nil
}

// EstimateNFTFee prices an NFT transfer
func (a *Adapter) EstimateNFTFee(ctx context.Context, intent *types.Intent) (*types.FeeEstimate, error) {
	p, err := a.planNFT(ctx, intent)
	if err != nil {
		return nil, err
	}
	return p.fee, nil
}

// TransferNFT moves the single unit of an NFT mint
func (a *Adapter) TransferNFT(ctx context.Context, exec chain.Execution) (*types.BroadcastResult, error) {
	key, err := parseKey(exec)
	if err != nil {
		return nil, err
	}
	p, err := a.planNFT(ctx, exec.Intent)
	if err != nil {
		return nil, err
	}

	fees := maxU64(NFTFeeFloor, a.feeFor(exec, p.fee).MaxCost().Uint64())
	have, err := a.lamports(ctx, p.from)
	if err != nil {
		return nil, err
	}
	if have < fees {
		return nil, insufficient(0, fees, have)
	}

	d := &driver{a: a, prepare: a.localPrepare(p.ixs, p.from), key: key}
	return a.broadcast(ctx, types.OpNFTTransfer, d, exec.OnSubmitted)
}
