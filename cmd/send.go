package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wallet-engine/pkg/engine"
	"wallet-engine/pkg/types"
)

// txFlags are shared by the commands that build an intent
type txFlags struct {
	chain    string
	wallet   string
	to       string
	slippage string
	yes      bool
}

func (f *txFlags) register(cmd *cobra.Command, withTo bool) {
	cmd.Flags().StringVar(&f.wallet, "wallet", "", "Wallet ID that signs the transaction")
	cmd.Flags().StringVar(&f.chain, "chain", "", "Chain ID (defaults to the wallet's chain)")
	if withTo {
		cmd.Flags().StringVar(&f.to, "to", "", "Recipient address")
		_ = cmd.MarkFlagRequired("to")
	}
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Skip confirmation prompt")
	_ = cmd.MarkFlagRequired("wallet")
}

// intent starts an intent for the wallet, filling chain and sender from it
func (f *txFlags) intent(ctx context.Context, a *app, kind types.OperationKind) (*types.Intent, error) {
	w, err := a.keystore.Wallet(ctx, f.wallet)
	if err != nil {
		return nil, err
	}
	in := &types.Intent{
		Kind:     kind,
		Chain:    w.Chain,
		WalletID: w.ID,
		From:     w.Address,
		To:       f.to,
	}
	if f.chain != "" {
		in.Chain = types.ChainID(f.chain).Normalize()
	}
	if f.slippage != "" {
		s, err := parseAmount(f.slippage)
		if err != nil {
			return nil, err
		}
		in.SlippagePct = s
	}
	return in, nil
}

var sendFlags txFlags

var sendCmd = &cobra.Command{
	Use:   "send <amount> <asset>",
	Short: "Transfer native coins or tokens",
	Long: `Transfer the native coin or a token from a managed wallet.

The asset is "native", the chain's native symbol, a token address or mint, or
a symbol known to the bridge token list.

Examples:
  wallet-engine send 0.1 ETH --wallet <id> --to 0xabc...
  wallet-engine send 25 EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v --wallet <id> --to <owner>`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendFlags.register(sendCmd, true)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}

	return withApp(ctx, func(a *app) error {
		in, err := sendFlags.intent(ctx, a, types.OpNativeTransfer)
		if err != nil {
			return err
		}
		in.Amount = amount
		if in.Asset, err = a.resolveAsset(ctx, in.Chain, args[1]); err != nil {
			return err
		}
		if !types.IsNative(in.Asset) {
			in.Kind = types.OpTokenTransfer
		}
		return execute(cmd, a, in, sendFlags.yes, engine.ExecuteOptions{})
	})
}

// execute estimates, confirms and runs an intent, then prints the outcome
func execute(cmd *cobra.Command, a *app, in *types.Intent, yes bool, opts engine.ExecuteOptions) error {
	ctx := cmd.Context()
	entry, err := a.registry.Get(in.Chain)
	if err != nil {
		return err
	}
	params := entry.Adapter.Params()

	if !yes && !jsonOutput(cmd) {
		var fee *types.FeeEstimate
		err := spin(cmd, "Estimating fee...", func() error {
			var err error
			fee, err = a.engine.EstimateFee(ctx, in, opts.Quote)
			return err
		})
		if err != nil {
			return err
		}
		displayFee(fee, params)
		if !confirm(fmt.Sprintf("Send %s on %s?", in.Kind, params.Name)) {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	var res *types.BroadcastResult
	execErr := spin(cmd, "Broadcasting transaction...", func() error {
		var err error
		res, err = a.engine.Execute(ctx, in, opts)
		return err
	})

	if jsonOutput(cmd) {
		if res != nil {
			if err := printJSON(res); err != nil {
				return err
			}
		}
		return execErr
	}
	if res != nil {
		displayResult(res, params)
	}
	if execErr == nil {
		color.Green("Transaction confirmed.")
	}
	return execErr
}
