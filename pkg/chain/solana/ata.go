package solana

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ATA is the resolved associated token account of an owner for a mint.
// The fee model and the builder share one resolution so both agree on
// whether the account must be created.
type ATA struct {
	Owner   solana.PublicKey
	Mint    solana.PublicKey
	Address solana.PublicKey
	Exists  bool
	// Rent is the exemption minimum charged when the account is created
	Rent uint64
}

// Surcharge is the rent owed by this transaction for the account
func (r *ATA) Surcharge() uint64 {
	if r == nil || r.Exists {
		return 0
	}
	return r.Rent
}

// ATAResolver derives associated token accounts and checks their existence
type ATAResolver struct {
	pool   *Pool
	commit rpc.CommitmentType
	rent   atomic.Uint64
}

// NewATAResolver creates a resolver over the pool
func NewATAResolver(pool *Pool, commit rpc.CommitmentType) *ATAResolver {
	return &ATAResolver{pool: pool, commit: commit}
}

// Resolve derives the account address and fetches whether it exists
func (r *ATAResolver) Resolve(ctx context.Context, owner, mint solana.PublicKey) (*ATA, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive associated token address: %w", err)
	}

	exists, err := r.exists(ctx, addr)
	if err != nil {
		return nil, err
	}
	res := &ATA{Owner: owner, Mint: mint, Address: addr, Exists: exists}
	if !exists {
		res.Rent = r.Rent(ctx)
	}
	return res, nil
}

func (r *ATAResolver) exists(ctx context.Context, account solana.PublicKey) (bool, error) {
	var found bool
	err := r.pool.Do(ctx, "solana.ata", func(ctx context.Context, c RPC) error {
		out, err := c.GetAccountInfoWithOpts(ctx, account, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: r.commit,
		})
		if errors.Is(err, rpc.ErrNotFound) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = out != nil && out.Value != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check token account: %w", err)
	}
	return found, nil
}

// Rent returns the token account exemption minimum. The node's answer is
// remembered; a failed lookup uses the mainnet constant without caching it.
func (r *ATAResolver) Rent(ctx context.Context) uint64 {
	if v := r.rent.Load(); v > 0 {
		return v
	}
	var rent uint64
	err := r.pool.Do(ctx, "solana.rent", func(ctx context.Context, c RPC) error {
		var err error
		rent, err = c.GetMinimumBalanceForRentExemption(ctx, TokenAccountSize, r.commit)
		return err
	})
	if err != nil || rent == 0 {
		r.pool.log.Debug().Err(err).Msg("Rent lookup failed, using default")
		return TokenAccountRent
	}
	r.rent.Store(rent)
	return rent
}
