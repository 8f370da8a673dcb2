package types

// SwapRequest represents a parsed swap command before asset resolution
type SwapRequest struct {
	Amount      string
	SourceToken string
	DestToken   string
	Chain       string
	// DestChain is set for cross-chain requests routed through the bridge
	DestChain     string
	RecipientAddr string
	RefundAddr    string
}

// CrossChain reports whether the request leaves its source chain
func (r *SwapRequest) CrossChain() bool {
	return r.DestChain != "" && r.DestChain != r.Chain
}

// QuoteDisplay holds formatted quote information for display
type QuoteDisplay struct {
	SourceAmount   string
	SourceToken    string
	DestAmount     string
	DestToken      string
	MinimumAmount  string
	PriceImpact    string
	Route          string
	Fee            string
	EstimatedTime  string
	DepositAddress string
}

// BridgeStatus represents the current status of a cross-chain execution
type BridgeStatus struct {
	DepositAddress string
	Status         string
	Message        string
	TxHashes       []string
	AmountOut      string
	UpdatedAt      string
}

// Terminal reports whether the bridge execution has settled
func (s *BridgeStatus) Terminal() bool {
	switch s.Status {
	case "SUCCESS", "COMPLETED", "FAILED", "REFUNDED":
		return true
	}
	return false
}
