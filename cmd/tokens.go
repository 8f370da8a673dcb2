package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wallet-engine/pkg/bridge"
	"wallet-engine/pkg/client"
	"wallet-engine/pkg/types"
)

var (
	filterChain  string
	filterSymbol string
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Cross-chain operations through the 1Click API",
	Long: `Cross-chain operations through the 1Click API. Cross-chain swaps themselves
run through "swap ... into <chain>"; deposits are tracked with "status".`,
}

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens", "ls"},
	Short:   "List all bridgeable tokens",
	Long: `List all tokens supported by the 1Click API.

You can filter tokens by chain or symbol.

Examples:
  wallet-engine bridge tokens
  wallet-engine bridge tokens --chain solana
  wallet-engine bridge tokens --symbol USDC`,
	RunE: runListTokens,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)
	bridgeCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Filter by chain")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
}

func runListTokens(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		b, err := a.bridge()
		if err != nil {
			return err
		}

		var tokens []client.Token
		err = spin(cmd, "Fetching supported tokens...", func() error {
			var err error
			tokens, err = b.Tokens(ctx)
			return err
		})
		if err != nil {
			return err
		}

		filtered := filterTokens(tokens, filterChain, filterSymbol)
		if jsonOutput(cmd) {
			return printJSON(filtered)
		}
		displayTokens(filtered)
		return nil
	})
}

// filterTokens keeps tokens on chain whose symbol contains symbol. Chain is
// an engine id or an API blockchain name.
func filterTokens(tokens []client.Token, chain, symbol string) []client.Token {
	blockchain := ""
	if chain != "" {
		blockchain = bridge.Blockchain(types.ChainID(chain))
	}
	var out []client.Token
	for _, t := range tokens {
		if blockchain != "" && !strings.EqualFold(t.Blockchain, blockchain) {
			continue
		}
		if symbol != "" && !strings.Contains(strings.ToUpper(t.Symbol), strings.ToUpper(symbol)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func displayTokens(tokens []client.Token) {
	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	banner("SUPPORTED TOKENS", 90)

	byChain := make(map[string][]client.Token)
	for _, t := range tokens {
		byChain[t.Blockchain] = append(byChain[t.Blockchain], t)
	}
	chains := make([]string, 0, len(byChain))
	for c := range byChain {
		chains = append(chains, c)
	}
	sort.Strings(chains)

	for _, c := range chains {
		color.Cyan("\n%s", strings.ToUpper(c))
		fmt.Println(strings.Repeat("-", 90))

		for _, t := range byChain[c] {
			address := t.ContractAddress
			if len(address) > 40 {
				address = address[:37] + "..."
			}
			fmt.Printf("  %-10s  %2d decimals  %s\n",
				color.YellowString(t.Symbol),
				t.Decimals,
				color.HiBlackString(address))
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	fmt.Printf("\nTotal: %d tokens across %d blockchains\n\n", len(tokens), len(chains))
}
