package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wallet-engine/pkg/engine"
	"wallet-engine/pkg/store"
	"wallet-engine/pkg/types"
)

// ownerFlags select an address either through a wallet or directly
type ownerFlags struct {
	wallet  string
	chain   string
	address string
}

func (f *ownerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.wallet, "wallet", "", "Wallet ID")
	cmd.Flags().StringVar(&f.chain, "chain", "", "Chain ID (required with --address)")
	cmd.Flags().StringVar(&f.address, "address", "", "Address to inspect instead of a wallet")
}

func (f *ownerFlags) resolve(ctx context.Context, a *app) (types.ChainID, string, error) {
	if f.address != "" {
		if f.chain == "" {
			return "", "", fmt.Errorf("--chain is required with --address")
		}
		return types.ChainID(f.chain).Normalize(), f.address, nil
	}
	if f.wallet == "" {
		return "", "", fmt.Errorf("either --wallet or --address is required")
	}
	w, err := a.keystore.Wallet(ctx, f.wallet)
	if err != nil {
		return "", "", err
	}
	return w.Chain, w.Address, nil
}

var (
	balanceOwner ownerFlags
	historyOwner ownerFlags
	historyLimit int

	recordsChain  string
	recordsWallet string
	recordsStatus string
	recordsLimit  int
)

var balanceCmd = &cobra.Command{
	Use:   "balance [token...]",
	Short: "Show native and token balances",
	Long: `Show the native balance of a wallet or address, plus any tokens given by
address, mint or symbol. Balances are valued in USD when prices are available.

Examples:
  wallet-engine balance --wallet <id>
  wallet-engine balance USDC --chain solana --address <owner>`,
	RunE: runBalance,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent on-chain activity",
	RunE:  runHistory,
}

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List transactions recorded by this engine",
	RunE:  runRecords,
}

var priceCmd = &cobra.Command{
	Use:   "price <chain> [token...]",
	Short: "Show token prices in USD",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPrice,
}

func init() {
	rootCmd.AddCommand(balanceCmd, historyCmd, recordsCmd, priceCmd)

	balanceOwner.register(balanceCmd)
	historyOwner.register(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of entries")

	recordsCmd.Flags().StringVar(&recordsChain, "chain", "", "Filter by chain")
	recordsCmd.Flags().StringVar(&recordsWallet, "wallet", "", "Filter by wallet ID")
	recordsCmd.Flags().StringVar(&recordsStatus, "status", "", "Filter by status (submitted, confirmed, failed, timed_out)")
	recordsCmd.Flags().IntVar(&recordsLimit, "limit", 50, "Maximum number of records")
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		id, owner, err := balanceOwner.resolve(ctx, a)
		if err != nil {
			return err
		}
		assets := make([]string, 0, len(args))
		for _, ref := range args {
			asset, err := a.resolveAsset(ctx, id, ref)
			if err != nil {
				return err
			}
			assets = append(assets, asset)
		}

		var holdings []engine.Holding
		err = spin(cmd, "Fetching balances...", func() error {
			var err error
			holdings, err = a.engine.Balances(ctx, id, owner, assets...)
			return err
		})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(holdings)
		}

		banner("BALANCES", 70)
		fmt.Printf("\n  Owner: %s (%s)\n\n", color.CyanString(owner), id)
		for _, h := range holdings {
			value := ""
			if !h.ValueUSD.IsZero() {
				value = color.HiBlackString("$" + h.ValueUSD.StringFixed(2))
			}
			fmt.Printf("  %-10s  %-24s  %s\n", color.YellowString(h.Symbol), h.Amount.String(), value)
		}
		fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
		return nil
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		id, owner, err := historyOwner.resolve(ctx, a)
		if err != nil {
			return err
		}
		var entries []types.HistoryEntry
		err = spin(cmd, "Fetching history...", func() error {
			var err error
			entries, err = a.engine.History(ctx, id, owner, historyLimit)
			return err
		})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(entries)
		}
		if len(entries) == 0 {
			fmt.Println("\nNo activity found.")
			return nil
		}

		banner("HISTORY", 90)
		for _, e := range entries {
			when := ""
			if !e.Timestamp.IsZero() {
				when = e.Timestamp.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Printf("  %-19s  %-10s  %s\n", when, coloredTxStatus(e.Status), color.HiBlackString(e.TxHash))
			if e.Error != "" {
				fmt.Printf("  %-19s  %s\n", "", color.RedString(e.Error))
			}
		}
		fmt.Println(strings.Repeat("=", 90) + "\n")
		return nil
	})
}

func runRecords(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		recs, err := a.engine.Records(ctx, store.RecordFilter{
			Chain:  types.ChainID(recordsChain).Normalize(),
			Wallet: recordsWallet,
			Status: types.TxStatus(recordsStatus),
			Limit:  recordsLimit,
		})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(recs)
		}
		if len(recs) == 0 {
			fmt.Println("\nNo records found.")
			return nil
		}

		banner("TRANSACTION RECORDS", 100)
		for _, r := range recs {
			fmt.Printf("  %s  %-8s  %-15s  %-10s  %s\n",
				r.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
				r.Chain,
				r.Kind,
				coloredTxStatus(r.Status),
				color.HiBlackString(r.TxHash))
			if r.Error != "" {
				fmt.Printf("  %19s  %s\n", "", color.RedString(r.Error))
			}
		}
		fmt.Println(strings.Repeat("=", 100))
		fmt.Printf("\nTotal: %d records\n\n", len(recs))
		return nil
	})
}

func runPrice(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id := types.ChainID(args[0]).Normalize()
	return withApp(ctx, func(a *app) error {
		refs := args[1:]
		if len(refs) == 0 {
			refs = []string{types.NativeAsset}
		}
		assets := make([]string, 0, len(refs))
		for _, ref := range refs {
			asset, err := a.resolveAsset(ctx, id, ref)
			if err != nil {
				return err
			}
			assets = append(assets, asset)
		}

		var prices map[string]types.Price
		err := spin(cmd, "Fetching prices...", func() error {
			var err error
			prices, err = a.prices.Prices(ctx, id, assets)
			return err
		})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(prices)
		}

		banner("PRICES", 70)
		for i, asset := range assets {
			p, ok := prices[asset]
			if !ok {
				fmt.Printf("  %-12s  %s\n", color.YellowString(refs[i]), color.HiBlackString("no price"))
				continue
			}
			change := p.PriceChange24h.StringFixed(2) + "%"
			if p.PriceChange24h.IsNegative() {
				change = color.RedString(change)
			} else {
				change = color.GreenString(change)
			}
			fmt.Printf("  %-12s  $%-14s  %s\n", color.YellowString(refs[i]), p.PriceUSD.StringFixed(4), change)
		}
		fmt.Println(strings.Repeat("=", 70) + "\n")
		return nil
	})
}
