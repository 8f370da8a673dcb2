package types

import (
	"fmt"
	"strings"
)

// Family selects the adapter implementation for a chain
type Family string

const (
	FamilyEVM    Family = "evm"
	FamilySolana Family = "solana"
)

// ChainID is the opaque identifier for a configured chain, e.g. "eth" or "solana"
type ChainID string

// Normalize lower-cases and trims a chain identifier
func (c ChainID) Normalize() ChainID {
	return ChainID(strings.ToLower(strings.TrimSpace(string(c))))
}

// FeeModelKind names how a chain prices transactions
type FeeModelKind string

const (
	FeeModelLegacy  FeeModelKind = "legacy"
	FeeModelEIP1559 FeeModelKind = "eip1559"
	FeeModelFlat    FeeModelKind = "flat"
)

// NativeAsset is the asset reference used for a chain's native coin
const NativeAsset = "native"

// IsNative reports whether an asset reference denotes the native coin
func IsNative(asset string) bool {
	switch strings.ToLower(strings.TrimSpace(asset)) {
	case "", NativeAsset, "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee":
		return true
	}
	return false
}

// ChainParams holds the immutable parameters for one chain
type ChainParams struct {
	ID             ChainID
	Family         Family
	Name           string
	NativeSymbol   string
	NativeDecimals uint8
	// FeeModel is the preferred model; EVM adapters still choose per block
	FeeModel      FeeModelKind
	ExplorerURL   string
	WrappedNative string
	// EVMChainID is the EIP-155 chain id, zero for non-EVM chains
	EVMChainID int64
}

// ExplorerTxURL returns a link to the transaction on the chain's explorer
func (p ChainParams) ExplorerTxURL(hash string) string {
	if p.ExplorerURL == "" || hash == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(p.ExplorerURL, "/"), hash)
}
