package evm

import (
	"wallet-engine/pkg/types"
)

// Config holds the static parameters of one EVM chain
type Config struct {
	ID            types.ChainID
	Name          string
	ChainID       int64
	RPCURL        string
	Symbol        string
	Decimals      uint8
	Explorer      string
	WrappedNative string
	Router        string
	DEX           string
	RPS           float64
}

// Params converts the config into chain parameters
func (c Config) Params() types.ChainParams {
	return types.ChainParams{
		ID:             c.ID,
		Family:         types.FamilyEVM,
		Name:           c.Name,
		NativeSymbol:   c.Symbol,
		NativeDecimals: c.Decimals,
		FeeModel:       types.FeeModelEIP1559,
		ExplorerURL:    c.Explorer,
		WrappedNative:  c.WrappedNative,
		EVMChainID:     c.ChainID,
	}
}

// DefaultChains is the static per-chain DEX table
var DefaultChains = map[types.ChainID]Config{
	"eth": {
		ID: "eth", Name: "Ethereum", ChainID: 1, Symbol: "ETH", Decimals: 18,
		Explorer:      "https://etherscan.io",
		WrappedNative: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		Router:        "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",
		DEX:           "Uniswap V2",
	},
	"bsc": {
		ID: "bsc", Name: "BNB Smart Chain", ChainID: 56, Symbol: "BNB", Decimals: 18,
		Explorer:      "https://bscscan.com",
		WrappedNative: "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c",
		Router:        "0x10ED43C718714eb63d5aA57B78B54704E256024E",
		DEX:           "PancakeSwap",
	},
	"matic": {
		ID: "matic", Name: "Polygon", ChainID: 137, Symbol: "MATIC", Decimals: 18,
		Explorer:      "https://polygonscan.com",
		WrappedNative: "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270",
		Router:        "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff",
		DEX:           "QuickSwap",
	},
	"avax": {
		ID: "avax", Name: "Avalanche C-Chain", ChainID: 43114, Symbol: "AVAX", Decimals: 18,
		Explorer:      "https://snowtrace.io",
		WrappedNative: "0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7",
		Router:        "0x60aE616a2155Ee3d9A68541Ba4544862310933d4",
		DEX:           "TraderJoe",
	},
	"base": {
		ID: "base", Name: "Base", ChainID: 8453, Symbol: "ETH", Decimals: 18,
		Explorer:      "https://basescan.org",
		WrappedNative: "0x4200000000000000000000000000000000000006",
		Router:        "0x327Df1E6de05895d2ab08513aaDD9313Fe505d86",
		DEX:           "BaseSwap",
	},
	"arbitrum": {
		ID: "arbitrum", Name: "Arbitrum One", ChainID: 42161, Symbol: "ETH", Decimals: 18,
		Explorer:      "https://arbiscan.io",
		WrappedNative: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1",
		Router:        "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506",
		DEX:           "SushiSwap",
	},
	"optimism": {
		ID: "optimism", Name: "Optimism", ChainID: 10, Symbol: "ETH", Decimals: 18,
		Explorer:      "https://optimistic.etherscan.io",
		WrappedNative: "0x4200000000000000000000000000000000000006",
	},
}
