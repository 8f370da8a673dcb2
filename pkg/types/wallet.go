package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is a key-store record
type Wallet struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Chain   ChainID `json:"chain"`
	Address string  `json:"address"`
	// EncryptedKey is the sealed private key; empty for watch-only wallets
	EncryptedKey []byte    `json:"encrypted_key,omitempty"`
	Active       bool      `json:"active"`
	WatchOnly    bool      `json:"watch_only"`
	CreatedAt    time.Time `json:"created_at"`
}

// Token is cached token metadata
type Token struct {
	Chain    ChainID `json:"chain"`
	Address  string  `json:"address"`
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Decimals uint8   `json:"decimals"`
	// IsNFT marks supply-1, zero-decimal mints
	IsNFT     bool      `json:"is_nft,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Price is a token price snapshot
type Price struct {
	Chain          ChainID         `json:"chain"`
	Address        string          `json:"address"`
	PriceUSD       decimal.Decimal `json:"price_usd"`
	PriceChange24h decimal.Decimal `json:"price_change_24h"`
	FetchedAt      time.Time       `json:"fetched_at"`
}

// HistoryEntry is one on-chain activity item for an address
type HistoryEntry struct {
	Chain     ChainID   `json:"chain"`
	TxHash    string    `json:"tx_hash"`
	Status    TxStatus  `json:"status"`
	BlockRef  string    `json:"block_ref,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Memo      string    `json:"memo,omitempty"`
	Error     string    `json:"error,omitempty"`
}
