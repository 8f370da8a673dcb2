package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wallet-engine/pkg/bridge"
	"wallet-engine/pkg/engine"
	"wallet-engine/pkg/parser"
	"wallet-engine/pkg/types"
)

var (
	swapFlags   txFlags
	recipient   string
	refundTo    string
	quoteWallet string
	quoteChain  string
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <token> to <token> [on <chain>] [via <chain>]",
	Short: "Swap tokens through the chain's DEX router or aggregator",
	Long: `Swap tokens from a managed wallet using natural language.

Same-chain swaps go through the chain's router (EVM) or Jupiter (Solana).
Naming a destination chain with "via" or "into" routes the swap through the
1Click bridge instead.

Examples:
  wallet-engine swap 1 SOL to USDC --wallet <id>
  wallet-engine swap 0.5 ETH to USDT on eth --wallet <id> --slippage 1
  wallet-engine swap 10 USDC to ETH on solana into eth --wallet <id> --recipient 0xabc...`,
	Args: cobra.MinimumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwap(cmd, args, false)
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token> to <token> [on <chain>] [via <chain>]",
	Short: "Quote a swap without executing it",
	Args:  cobra.MinimumNArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwap(cmd, args, true)
	},
}

func init() {
	rootCmd.AddCommand(swapCmd)
	rootCmd.AddCommand(quoteCmd)

	swapFlags.register(swapCmd, false)
	swapCmd.Flags().StringVar(&swapFlags.slippage, "slippage", "", "Slippage tolerance in percent (default 0.5)")
	swapCmd.Flags().StringVar(&recipient, "recipient", "", "Recipient on the destination chain (cross-chain only)")
	swapCmd.Flags().StringVar(&refundTo, "refund-to", "", "Refund address on the source chain (defaults to the wallet)")

	quoteCmd.Flags().StringVar(&quoteWallet, "wallet", "", "Wallet ID the swap would be sent from")
	quoteCmd.Flags().StringVar(&quoteChain, "chain", "", "Chain ID (defaults to the wallet's chain)")
	quoteCmd.Flags().StringVar(&swapFlags.slippage, "slippage", "", "Slippage tolerance in percent (default 0.5)")
	quoteCmd.Flags().StringVar(&recipient, "recipient", "", "Recipient on the destination chain (cross-chain only)")
	_ = quoteCmd.MarkFlagRequired("wallet")
}

func runSwap(cmd *cobra.Command, args []string, quoteOnly bool) error {
	ctx := cmd.Context()
	if quoteOnly {
		swapFlags.wallet = quoteWallet
		swapFlags.chain = quoteChain
	}

	req, err := parser.ParseSwapCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}
	if err := parser.ValidateSwapRequest(req); err != nil {
		return err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return err
	}
	if req.Chain != "" && swapFlags.chain == "" {
		swapFlags.chain = req.Chain
	}

	return withApp(ctx, func(a *app) error {
		in, err := swapFlags.intent(ctx, a, types.OpSwap)
		if err != nil {
			return err
		}
		in.Amount = amount
		req.Chain = string(in.Chain)

		if req.CrossChain() {
			req.RecipientAddr = recipient
			req.RefundAddr = refundTo
			if req.RefundAddr == "" {
				req.RefundAddr = in.From
			}
			return runBridgeSwap(cmd, a, req, in, quoteOnly)
		}

		if in.Asset, err = a.resolveAsset(ctx, in.Chain, req.SourceToken); err != nil {
			return err
		}
		if in.ToAsset, err = a.resolveAsset(ctx, in.Chain, req.DestToken); err != nil {
			return err
		}

		var quote *types.Quote
		err = spin(cmd, "Getting swap quote...", func() error {
			var err error
			quote, err = a.engine.GetQuote(ctx, in)
			return err
		})
		if err != nil {
			return err
		}

		if quoteOnly && jsonOutput(cmd) {
			return printJSON(quote)
		}
		if !jsonOutput(cmd) {
			display, err := quoteDisplay(ctx, a, quote, req)
			if err != nil {
				return err
			}
			displayQuote(display, req)
		}
		if quoteOnly {
			return nil
		}
		return execute(cmd, a, in, swapFlags.yes, engine.ExecuteOptions{Quote: quote})
	})
}

func quoteDisplay(ctx context.Context, a *app, q *types.Quote, req *types.SwapRequest) (*types.QuoteDisplay, error) {
	from, err := a.engine.TokenInfo(ctx, q.Chain, q.FromAsset)
	if err != nil {
		return nil, err
	}
	to, err := a.engine.TokenInfo(ctx, q.Chain, q.ToAsset)
	if err != nil {
		return nil, err
	}

	d := &types.QuoteDisplay{
		SourceAmount:  types.FromBaseUnits(q.InputAmount, from.Decimals).String(),
		SourceToken:   req.SourceToken,
		DestAmount:    types.FromBaseUnits(q.OutputAmount, to.Decimals).String(),
		DestToken:     req.DestToken,
		MinimumAmount: types.FromBaseUnits(q.MinimumReceived, to.Decimals).String(),
		PriceImpact:   "unknown",
		Route:         q.Provider,
	}
	if q.PriceImpactPct != nil {
		d.PriceImpact = q.PriceImpactPct.StringFixed(2) + "%"
		if q.ImpactClamped {
			d.PriceImpact += " (clamped)"
		}
	}
	if q.RouteID != "" {
		d.Route += " " + q.RouteID
	}
	return d, nil
}

func displayQuote(d *types.QuoteDisplay, req *types.SwapRequest) {
	banner("SWAP QUOTE", 60)

	fmt.Printf("\n  From:              %s %s\n", d.SourceAmount, color.YellowString(d.SourceToken))
	fmt.Printf("  To:                ~%s %s\n", d.DestAmount, color.YellowString(d.DestToken))
	if d.MinimumAmount != "" {
		fmt.Printf("  Minimum Received:  %s %s\n", d.MinimumAmount, color.YellowString(d.DestToken))
	}
	if d.PriceImpact != "" {
		fmt.Printf("  Price Impact:      %s\n", d.PriceImpact)
	}
	if d.Route != "" {
		fmt.Printf("  Route:             %s\n", d.Route)
	}
	if d.EstimatedTime != "" {
		fmt.Printf("  Estimated Time:    %s\n", d.EstimatedTime)
	}
	if d.DepositAddress != "" {
		fmt.Printf("  Deposit Address:   %s\n", color.CyanString(d.DepositAddress))
	}
	if req.Chain != "" {
		fmt.Printf("  Source Chain:      %s\n", req.Chain)
	}
	if req.DestChain != "" {
		fmt.Printf("  Destination Chain: %s\n", req.DestChain)
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func bridgeRequest(req *types.SwapRequest, in *types.Intent) bridge.Request {
	return bridge.Request{
		FromChain: in.Chain,
		ToChain:   types.ChainID(req.DestChain),
		FromToken: req.SourceToken,
		ToToken:   req.DestToken,
		Amount:    in.Amount,
		Recipient: req.RecipientAddr,
		RefundTo:  req.RefundAddr,
		WalletID:  in.WalletID,
		// 1Click takes basis points
		SlippageBps: int32(types.SlippageBps(in.Slippage())),
	}
}

func runBridgeSwap(cmd *cobra.Command, a *app, req *types.SwapRequest, in *types.Intent, quoteOnly bool) error {
	ctx := cmd.Context()
	if req.RecipientAddr == "" {
		return types.E(types.InvalidAddress, "cli.swap", "--recipient is required for cross-chain swaps")
	}
	b, err := a.bridge()
	if err != nil {
		return err
	}
	breq := bridgeRequest(req, in)

	var plan *bridge.Plan
	err = spin(cmd, "Getting cross-chain quote...", func() error {
		var err error
		plan, err = b.Quote(ctx, breq)
		return err
	})
	if err != nil {
		return err
	}
	if quoteOnly && jsonOutput(cmd) {
		return printJSON(plan)
	}
	if !jsonOutput(cmd) {
		displayQuote(&types.QuoteDisplay{
			SourceAmount:  plan.Quote.AmountIn,
			SourceToken:   req.SourceToken,
			DestAmount:    plan.Quote.AmountOut,
			DestToken:     req.DestToken,
			Route:         "1Click " + plan.Origin.AssetID + " -> " + plan.Destination.AssetID,
			EstimatedTime: fmt.Sprintf("%.0f seconds", plan.Quote.TimeEstimate),
		}, req)
	}
	if quoteOnly {
		return nil
	}
	if !swapFlags.yes && !jsonOutput(cmd) && !confirm("\nProceed with swap?") {
		fmt.Println("Swap cancelled.")
		return nil
	}

	var res *bridge.Result
	execErr := spin(cmd, "Sending bridge deposit...", func() error {
		var err error
		res, err = b.Execute(ctx, breq)
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
	if res != nil && res.Deposit != nil {
		entry, err := a.registry.Get(in.Chain)
		if err == nil {
			displayResult(res.Deposit, entry.Adapter.Params())
		}
	}
	if execErr != nil {
		return execErr
	}
	for _, w := range res.Warnings {
		color.Yellow("Warning: %s", w)
	}
	printSuccess(fmt.Sprintf("Deposit sent. Track it with: wallet-engine status %s --watch", res.Quote.DepositAddress))
	return nil
}
