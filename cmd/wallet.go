package cmd

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"wallet-engine/pkg/types"
)

// secretEnv lets scripts import a key without a terminal
const secretEnv = "WALLET_ENGINE_IMPORT_SECRET"

var (
	walletChain   string
	watchAddress  string
	includeClosed bool
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage key-store wallets",
}

var walletImportCmd = &cobra.Command{
	Use:   "import <name>",
	Short: "Import a private key, or add a watch-only address",
	Long: `Import a private key into the encrypted key store.

The key is read from a hidden prompt, or from the ` + secretEnv + `
environment variable. EVM keys are hex, Solana keys are base58. With --address
the wallet is watch-only and holds no key.

Examples:
  wallet-engine wallet import main --chain eth
  wallet-engine wallet import cold --chain solana --address <pubkey>`,
	Args: cobra.ExactArgs(1),
	RunE: runWalletImport,
}

var walletListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List wallets",
	RunE:    runWalletList,
}

var walletDeactivateCmd = &cobra.Command{
	Use:   "deactivate <wallet-id>",
	Short: "Deactivate a wallet so it can no longer sign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.keystore.Deactivate(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !jsonOutput(cmd) {
				printSuccess(fmt.Sprintf("Wallet %s deactivated.", args[0]))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletImportCmd, walletListCmd, walletDeactivateCmd)

	walletImportCmd.Flags().StringVar(&walletChain, "chain", "", "Chain ID the wallet belongs to")
	walletImportCmd.Flags().StringVar(&watchAddress, "address", "", "Add a watch-only wallet for this address")
	_ = walletImportCmd.MarkFlagRequired("chain")

	walletListCmd.Flags().BoolVar(&includeClosed, "all", false, "Include deactivated wallets")
}

func readSecret(prompt string) (string, error) {
	if s := os.Getenv(secretEnv); s != "" {
		return s, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(secret)), nil
}

func runWalletImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		entry, err := a.registry.Get(types.ChainID(walletChain).Normalize())
		if err != nil {
			return err
		}
		params := entry.Adapter.Params()

		var w *types.Wallet
		if watchAddress != "" {
			if err := entry.Adapter.ValidateAddress(watchAddress); err != nil {
				return err
			}
			w, err = a.keystore.AddWatchOnly(ctx, args[0], params.ID, watchAddress)
		} else {
			var secret string
			if secret, err = readSecret(fmt.Sprintf("Private key for %s: ", params.Name)); err != nil {
				return err
			}
			w, err = a.keystore.Import(ctx, args[0], params, secret)
		}
		if err != nil {
			return err
		}

		if jsonOutput(cmd) {
			return printJSON(w)
		}
		printSuccess(fmt.Sprintf("Wallet %s imported.\n  ID:      %s\n  Address: %s",
			color.YellowString(w.Name), w.ID, color.CyanString(w.Address)))
		return nil
	})
}

func runWalletList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		wallets, err := a.keystore.List(ctx)
		if err != nil {
			return err
		}
		filtered := wallets[:0]
		for _, w := range wallets {
			if w.Active || includeClosed {
				filtered = append(filtered, w)
			}
		}

		if jsonOutput(cmd) {
			return printJSON(filtered)
		}
		if len(filtered) == 0 {
			fmt.Println("\nNo wallets found. Import one with: wallet-engine wallet import <name> --chain <chain>")
			return nil
		}

		banner("WALLETS", 90)
		for _, w := range filtered {
			flags := ""
			if w.WatchOnly {
				flags += " watch-only"
			}
			if !w.Active {
				flags += " inactive"
			}
			fmt.Printf("  %-36s  %-10s  %-8s  %s%s\n",
				w.ID,
				color.YellowString(w.Name),
				w.Chain,
				color.CyanString(w.Address),
				color.HiBlackString(flags))
		}
		fmt.Println(strings.Repeat("=", 90))
		fmt.Printf("\nTotal: %d wallets\n\n", len(filtered))
		return nil
	})
}
