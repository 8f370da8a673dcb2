package types

import (
	"encoding/json"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a perishable router/aggregator snapshot for one swap
type Quote struct {
	Chain           ChainID         `json:"chain"`
	FromAsset       string          `json:"from_asset"`
	ToAsset         string          `json:"to_asset"`
	InputAmount     *big.Int        `json:"input_amount"`
	OutputAmount    *big.Int        `json:"output_amount"`
	MinimumReceived *big.Int        `json:"minimum_received"`
	SlippagePct     decimal.Decimal `json:"slippage_pct"`

	// PriceImpactPct is nil when the impact could not be computed
	PriceImpactPct *decimal.Decimal `json:"price_impact_pct,omitempty"`
	ImpactClamped  bool             `json:"impact_clamped,omitempty"`

	RouteID  string `json:"route_id"`
	Provider string `json:"provider"`
	// Route is the aggregator's opaque response, replayed verbatim at assembly
	Route json.RawMessage `json:"route,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the snapshot is older than ttl
func (q *Quote) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(q.CreatedAt) > ttl
}

// MatchesAssets compares the quote's declared assets with an intent's
func (q *Quote) MatchesAssets(from, to string) bool {
	return sameAsset(q.FromAsset, from) && sameAsset(q.ToAsset, to)
}

func sameAsset(a, b string) bool {
	if IsNative(a) && IsNative(b) {
		return true
	}
	// EVM addresses compare case-insensitively, base58 mints do not
	if strings.HasPrefix(a, "0x") || strings.HasPrefix(a, "0X") {
		return strings.EqualFold(a, b)
	}
	return a == b
}
