// Package chain defines the capability set every chain adapter implements and
// the registry that maps chain identifiers to adapters.
package chain

import (
	"context"
	"math/big"

	"wallet-engine/pkg/types"
)

// Adapter is the base every chain implementation satisfies.
type Adapter interface {
	Params() types.ChainParams
	// ValidateAddress parses an address in the chain's native format
	ValidateAddress(address string) error
	// Ping is a lightweight liveness call
	Ping(ctx context.Context) error
}

// Signer is the key material for one operation. Adapters parse it into their
// own keypair type and must call Wipe when done.
type Signer interface {
	Secret() []byte
	Wipe()
}

// Execution carries everything an adapter needs to run one intent.
type Execution struct {
	Intent *types.Intent
	Signer Signer
	// Fee overrides the adapter's own estimate when set
	Fee *types.FeeEstimate
	// Quote is required for swaps
	Quote *types.Quote
	// OnSubmitted is called once the network accepted a transaction hash
	OnSubmitted func(hash string)
}

// Balance reads native and token balances in base units
type Balance interface {
	NativeBalance(ctx context.Context, owner string) (*big.Int, error)
	TokenBalance(ctx context.Context, owner, asset string) (*big.Int, error)
}

// Transfer moves native coins and fungible tokens
type Transfer interface {
	EstimateTransferFee(ctx context.Context, intent *types.Intent) (*types.FeeEstimate, error)
	Transfer(ctx context.Context, exec Execution) (*types.BroadcastResult, error)
}

// Swap quotes and executes exchanges between two assets on one chain
type Swap interface {
	Quote(ctx context.Context, intent *types.Intent) (*types.Quote, error)
	EstimateSwapFee(ctx context.Context, intent *types.Intent, quote *types.Quote) (*types.FeeEstimate, error)
	// ValidateRoute re-checks the quote's declared assets against the intent
	// without any network call
	ValidateRoute(intent *types.Intent, quote *types.Quote) error
	Swap(ctx context.Context, exec Execution) (*types.BroadcastResult, error)
}

// TokenInfo resolves token metadata
type TokenInfo interface {
	TokenInfo(ctx context.Context, asset string) (*types.Token, error)
}

// NFT transfers single non-fungible units
type NFT interface {
	EstimateNFTFee(ctx context.Context, intent *types.Intent) (*types.FeeEstimate, error)
	TransferNFT(ctx context.Context, exec Execution) (*types.BroadcastResult, error)
}

// History lists recent on-chain activity of an address
type History interface {
	History(ctx context.Context, owner string, limit int) ([]types.HistoryEntry, error)
}

// Secret is in-memory key material satisfying Signer
type Secret []byte

// Secret returns the raw key bytes
func (s Secret) Secret() []byte { return s }

// Wipe zeroes the key bytes in place
func (s Secret) Wipe() {
	for i := range s {
		s[i] = 0
	}
}
