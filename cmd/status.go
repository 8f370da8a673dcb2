package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"wallet-engine/pkg/types"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <deposit-address>",
	Short: "Check the status of a cross-chain swap",
	Long: `Check the execution status of a cross-chain swap by its deposit address.

Examples:
  wallet-engine status 0x1234...abcd
  wallet-engine status 0x1234...abcd --watch
  wallet-engine status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the swap settles")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	depositAddress := args[0]

	return withApp(ctx, func(a *app) error {
		b, err := a.pollingBridge(time.Duration(watchInterval) * time.Second)
		if err != nil {
			return err
		}

		if watchStatus {
			if jsonOutput(cmd) {
				return fmt.Errorf("watch mode not supported with JSON output")
			}
			fmt.Printf("\nWatching swap status (Deposit Address: %s)\n", color.CyanString(depositAddress))
			fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n", watchInterval)

			st, err := b.Watch(ctx, depositAddress, displayStatus)
			if err != nil {
				return err
			}
			if st.Status != "SUCCESS" && st.Status != "COMPLETED" {
				return fmt.Errorf("swap ended with status %s", st.Status)
			}
			return nil
		}

		var st *types.BridgeStatus
		err = spin(cmd, "Checking swap status...", func() error {
			var err error
			st, err = b.Status(ctx, depositAddress)
			return err
		})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(st)
		}
		displayStatus(st)
		return nil
	})
}

func displayStatus(st *types.BridgeStatus) {
	banner("SWAP STATUS", 70)

	fmt.Printf("\n  Deposit Address: %s\n", color.CyanString(st.DepositAddress))
	fmt.Printf("  Status:          %s\n", getColoredStatus(st.Status))
	if st.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339, st.UpdatedAt); err == nil {
			fmt.Printf("  Last Updated:    %s\n", t.Local().Format("2006-01-02 15:04:05"))
		}
	}
	for _, hash := range st.TxHashes {
		fmt.Printf("  Tx:              %s\n", color.HiBlackString(hash))
	}
	if st.AmountOut != "" {
		fmt.Printf("  Amount Out:      %s\n", st.AmountOut)
	}
	if st.Message != "" {
		fmt.Printf("  Message:         %s\n", st.Message)
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "SUCCESS", "COMPLETED":
		return color.GreenString(status)
	case "PENDING_DEPOSIT", "PENDING", "PROCESSING", "KNOWN_DEPOSIT_TX":
		return color.YellowString(status)
	case "FAILED", "REFUNDED":
		return color.RedString(status)
	case "INCOMPLETE_DEPOSIT":
		return color.MagentaString(status)
	default:
		return status
	}
}
