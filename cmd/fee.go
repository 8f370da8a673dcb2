package cmd

import (
	"github.com/spf13/cobra"

	"wallet-engine/pkg/types"
)

var (
	feeFlags   txFlags
	feeToAsset string
)

var feeCmd = &cobra.Command{
	Use:   "fee <amount> <asset>",
	Short: "Estimate the network fee of a transfer or swap",
	Long: `Estimate the fee of a transfer, or of a swap when --to-asset is given.
The estimate is valued in USD when a price is available.

Examples:
  wallet-engine fee 0.1 ETH --wallet <id> --to 0xabc...
  wallet-engine fee 1 SOL --wallet <id> --to-asset USDC`,
	Args: cobra.ExactArgs(2),
	RunE: runFee,
}

func init() {
	rootCmd.AddCommand(feeCmd)
	feeCmd.Flags().StringVar(&feeFlags.wallet, "wallet", "", "Wallet ID that would sign")
	feeCmd.Flags().StringVar(&feeFlags.chain, "chain", "", "Chain ID (defaults to the wallet's chain)")
	feeCmd.Flags().StringVar(&feeFlags.to, "to", "", "Recipient address (transfers)")
	feeCmd.Flags().StringVar(&feeToAsset, "to-asset", "", "Asset to swap into")
	feeCmd.Flags().StringVar(&feeFlags.slippage, "slippage", "", "Slippage tolerance in percent (swaps)")
	_ = feeCmd.MarkFlagRequired("wallet")
}

func runFee(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}

	return withApp(ctx, func(a *app) error {
		in, err := feeFlags.intent(ctx, a, types.OpNativeTransfer)
		if err != nil {
			return err
		}
		in.Amount = amount
		if in.Asset, err = a.resolveAsset(ctx, in.Chain, args[1]); err != nil {
			return err
		}
		switch {
		case feeToAsset != "":
			in.Kind = types.OpSwap
			in.To = ""
			if in.ToAsset, err = a.resolveAsset(ctx, in.Chain, feeToAsset); err != nil {
				return err
			}
		case !types.IsNative(in.Asset):
			in.Kind = types.OpTokenTransfer
		}

		var fee *types.FeeEstimate
		err = spin(cmd, "Estimating fee...", func() error {
			var err error
			fee, err = a.engine.EstimateFee(ctx, in, nil)
			return err
		})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(fee)
		}
		entry, err := a.registry.Get(in.Chain)
		if err != nil {
			return err
		}
		displayFee(fee, entry.Adapter.Params())
		return nil
	})
}
