package types

import (
	"github.com/shopspring/decimal"
)

// OperationKind is the kind of transaction an intent asks for
type OperationKind string

const (
	OpNativeTransfer OperationKind = "native_transfer"
	OpTokenTransfer  OperationKind = "token_transfer"
	OpSwap           OperationKind = "swap"
	OpNFTTransfer    OperationKind = "nft_transfer"
	OpApprove        OperationKind = "approve"
)

// DefaultSlippage is applied when a swap intent carries none, in percent
var DefaultSlippage = decimal.NewFromFloat(0.5)

// Intent is the caller's unsigned request. It is never mutated by the engine.
type Intent struct {
	Kind OperationKind `json:"kind"`
	// Chain selects the adapter
	Chain ChainID `json:"chain"`
	// WalletID references the key-store wallet that signs
	WalletID string `json:"wallet_id"`
	// From is the sender address; it must match the wallet's address
	From string `json:"from"`
	To   string `json:"to,omitempty"`

	// Asset is the transferred or swapped-from asset, NativeAsset for the native coin
	Asset   string `json:"asset"`
	ToAsset string `json:"to_asset,omitempty"`

	// Amount is in human units; NFT transfers ignore it
	Amount      decimal.Decimal `json:"amount"`
	SlippagePct decimal.Decimal `json:"slippage_pct"`
}

// Slippage returns the tolerance, substituting the default for zero
func (i *Intent) Slippage() decimal.Decimal {
	if i.SlippagePct.IsZero() {
		return DefaultSlippage
	}
	return i.SlippagePct
}

// Validate checks the chain-independent invariants
func (i *Intent) Validate() error {
	const op = "intent.validate"
	switch i.Kind {
	case OpNativeTransfer, OpTokenTransfer, OpSwap, OpNFTTransfer:
	default:
		return E(ExecutionFailed, op, "unsupported operation %q", i.Kind)
	}
	if i.From == "" {
		return E(InvalidAddress, op, "sender address is required")
	}
	if i.Kind != OpSwap && i.To == "" {
		return E(InvalidAddress, op, "recipient address is required")
	}
	if i.Kind != OpNFTTransfer && !i.Amount.IsPositive() {
		return E(InvalidAmount, op, "amount must be greater than 0, got %s", i.Amount)
	}
	if i.Kind == OpTokenTransfer && IsNative(i.Asset) {
		return E(InvalidAddress, op, "token transfer requires a token address")
	}
	if i.Kind == OpNFTTransfer && IsNative(i.Asset) {
		return E(InvalidAddress, op, "nft transfer requires a mint address")
	}
	if i.Kind == OpSwap {
		if i.ToAsset == "" {
			return E(InvalidAddress, op, "swap requires a destination asset")
		}
		if sameAsset(i.Asset, i.ToAsset) {
			return E(InvalidAddress, op, "cannot swap an asset for itself")
		}
		if !ValidSlippage(i.Slippage()) {
			return E(InvalidAmount, op, "slippage must be within (0, 100], got %s", i.SlippagePct)
		}
	}
	return nil
}
