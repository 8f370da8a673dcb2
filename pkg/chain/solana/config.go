package solana

import (
	"wallet-engine/pkg/types"
)

// Well-known mints and programs
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	DefaultJupiterURL = "https://quote-api.jup.ag/v6"
)

// PublicFallbacks are tried after the configured endpoints
var PublicFallbacks = []string{
	"https://api.mainnet-beta.solana.com",
	"https://solana-api.projectserum.com",
}

// Fee constants in lamports
const (
	LamportsPerSignature uint64 = 5000
	// TokenAccountRent is used when the node cannot report the exemption minimum
	TokenAccountRent uint64 = 2039280
	TokenAccountSize uint64 = 165

	ComputeUnitsPerInstruction uint64 = 200000
	computeBufferPct                  = 10

	// swap balance floors on top of the input amount
	SwapFloorWithATA uint64 = 3000000
	SwapFloor        uint64 = 1000000
	// NFTFeeFloor is the least SOL a sender needs to pay for an NFT transfer
	NFTFeeFloor uint64 = 1000000

	DefaultSlippageBps           = 50
	DefaultComputeUnitPriceMicro = 1000
)

// Config holds the parameters of the Solana network
type Config struct {
	ID      types.ChainID
	Name    string
	RPCURL  string
	Backups []string
	// Fallbacks replaces PublicFallbacks when set
	Fallbacks  []string
	Commitment string
	// SkipPreflight disables simulation on submission
	SkipPreflight bool
	Explorer      string
	JupiterURL    string
	// ComputeUnitPrice is the priority fee asked of Jupiter, in micro-lamports
	ComputeUnitPrice uint64
	RPS              float64
}

// DefaultConfig returns mainnet defaults
func DefaultConfig() Config {
	return Config{
		ID:               "solana",
		Name:             "Solana",
		RPCURL:           PublicFallbacks[0],
		Commitment:       "confirmed",
		Explorer:         "https://solscan.io",
		JupiterURL:       DefaultJupiterURL,
		ComputeUnitPrice: DefaultComputeUnitPriceMicro,
	}
}

// URLs returns the pool order: primary, backups, then public fallbacks not
// already listed
func (c Config) URLs() []string {
	seen := map[string]bool{}
	var out []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	add(c.RPCURL)
	for _, u := range c.Backups {
		add(u)
	}
	fallbacks := c.Fallbacks
	if fallbacks == nil {
		fallbacks = PublicFallbacks
	}
	for _, u := range fallbacks {
		add(u)
	}
	return out
}

// Params converts the config into chain parameters
func (c Config) Params() types.ChainParams {
	return types.ChainParams{
		ID:             c.ID,
		Family:         types.FamilySolana,
		Name:           c.Name,
		NativeSymbol:   "SOL",
		NativeDecimals: 9,
		FeeModel:       types.FeeModelFlat,
		ExplorerURL:    c.Explorer,
		WrappedNative:  WrappedSOLMint,
	}
}
