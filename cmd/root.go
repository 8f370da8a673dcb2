package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"wallet-engine/config"
	"wallet-engine/pkg/log"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "wallet-engine",
	Short: "Execute wallet transactions across EVM chains and Solana",
	Long: `wallet-engine signs, broadcasts and tracks transactions for managed wallets
on EVM chains and Solana. Transfers, swaps and NFT sends go through the same
quote, fee and confirmation pipeline, and every outcome is recorded.

Examples:
  wallet-engine wallet import main --chain eth
  wallet-engine send 0.1 native --chain eth --wallet <id> --to 0xabc...
  wallet-engine swap 1 SOL to USDC --wallet <id>
  wallet-engine bridge quote 1 SOL to ETH --from-chain solana --to-chain eth --recipient 0xabc...
  wallet-engine health`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		level := cfg.Log.Level
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = "debug"
		}
		return log.Init(level, cfg.Log.JSON, cfg.Log.File)
	},
}

// Execute runs the root command
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $HOME/.wallet-engine.yaml)")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
