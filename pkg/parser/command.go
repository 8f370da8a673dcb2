package parser

import (
	"fmt"
	"regexp"
	"strings"

	"wallet-engine/pkg/types"
)

// <amount> <token> TO <token> [ON <chain>] [VIA|INTO <chain>]
var swapPattern = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9]+)\s+TO\s+([A-Z0-9]+)(?:\s+ON\s+([A-Z0-9_-]+))?(?:\s+(?:VIA|INTO)\s+([A-Z0-9_-]+))?$`)

// ParseSwapCommand parses a natural language swap command
// Examples:
//   - "swap 1 SOL to USDC"
//   - "1.5 ETH to USDT on eth"
//   - "100 USDC to ETH on solana via base"
func ParseSwapCommand(command string) (*types.SwapRequest, error) {
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")
	command = strings.TrimPrefix(command, "SWAP ")

	matches := swapPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid swap command format. Expected: 'swap <amount> <token> to <token> [on <chain>]' (e.g., 'swap 1 SOL to USDC')")
	}

	return &types.SwapRequest{
		Amount:      matches[1],
		SourceToken: NormalizeTokenSymbol(matches[2]),
		DestToken:   NormalizeTokenSymbol(matches[3]),
		Chain:       strings.ToLower(matches[4]),
		DestChain:   strings.ToLower(matches[5]),
	}, nil
}

// ValidateSwapRequest validates that a swap request has all required fields
func ValidateSwapRequest(req *types.SwapRequest) error {
	if req.Amount == "" {
		return fmt.Errorf("amount is required")
	}
	if req.SourceToken == "" {
		return fmt.Errorf("source token is required")
	}
	if req.DestToken == "" {
		return fmt.Errorf("destination token is required")
	}
	if req.SourceToken == req.DestToken && !req.CrossChain() {
		return fmt.Errorf("source and destination token are the same")
	}
	return nil
}

// NormalizeTokenSymbol maps wrapped-native aliases to the native symbol
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"WETH":   "ETH",
		"WSOL":   "SOL",
		"WBNB":   "BNB",
		"WMATIC": "MATIC",
		"WAVAX":  "AVAX",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
