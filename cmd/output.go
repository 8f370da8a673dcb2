package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wallet-engine/pkg/types"
)

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// spin shows a spinner for the duration of fn unless output is JSON
func spin(cmd *cobra.Command, suffix string, fn func() error) error {
	if jsonOutput(cmd) {
		return fn()
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	s.Start()
	err := fn()
	s.Stop()
	return err
}

func banner(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	pad := (width - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	color.Green(strings.Repeat(" ", pad) + title)
	fmt.Println(strings.Repeat("=", width))
}

func confirm(prompt string) bool {
	fmt.Printf("%s (y/N): ", prompt)
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, types.E(types.InvalidAmount, "cli", "invalid amount %q", s)
	}
	return d, nil
}

func coloredTxStatus(s types.TxStatus) string {
	switch s {
	case types.StatusConfirmed:
		return color.GreenString(string(s))
	case types.StatusPending, types.StatusSubmitted:
		return color.YellowString(string(s))
	case types.StatusFailed, types.StatusTimedOut:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}

func displayResult(res *types.BroadcastResult, params types.ChainParams) {
	banner("TRANSACTION RESULT", 70)

	if res.Approval != nil {
		fmt.Printf("\n  Approval Tx:     %s (%s)\n", color.HiBlackString(res.Approval.TxHash), coloredTxStatus(res.Approval.Status))
	}
	fmt.Printf("\n  Chain:           %s\n", res.Chain)
	fmt.Printf("  Operation:       %s\n", res.Kind)
	fmt.Printf("  Status:          %s\n", coloredTxStatus(res.Status))
	fmt.Printf("  Tx Hash:         %s\n", color.CyanString(res.TxHash))
	if res.BlockRef != "" {
		fmt.Printf("  Block:           %s\n", res.BlockRef)
	}
	if res.FeePaid != nil {
		fmt.Printf("  Fee Paid:        %s %s\n", types.FromBaseUnits(res.FeePaid, params.NativeDecimals), params.NativeSymbol)
	}
	if res.Rebuilds > 0 {
		fmt.Printf("  Rebuilds:        %d\n", res.Rebuilds)
	}
	if res.Explorer != "" {
		fmt.Printf("  Explorer:        %s\n", color.HiBlackString(res.Explorer))
	}
	if res.RawError != "" {
		fmt.Printf("  Error:           %s\n", color.RedString(res.RawError))
	}
	for _, w := range res.Warnings {
		fmt.Printf("  Warning:         %s\n", color.YellowString(w))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func displayFee(fee *types.FeeEstimate, params types.ChainParams) {
	banner("FEE ESTIMATE", 70)
	fmt.Printf("\n  Chain:           %s\n", params.ID)
	fmt.Printf("  Model:           %s\n", fee.String())
	fmt.Printf("  Max Cost:        %s %s\n", types.FromBaseUnits(fee.MaxCost(), params.NativeDecimals), params.NativeSymbol)
	if !fee.ValueUSD.IsZero() {
		fmt.Printf("  Value:           $%s\n", fee.ValueUSD.String())
	}
	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}
