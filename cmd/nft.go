package cmd

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"wallet-engine/pkg/engine"
	"wallet-engine/pkg/types"
)

var nftFlags txFlags

var nftCmd = &cobra.Command{
	Use:   "nft",
	Short: "Non-fungible token operations",
}

var nftSendCmd = &cobra.Command{
	Use:   "send <mint>",
	Short: "Transfer one NFT",
	Long: `Transfer a single NFT to another owner. The recipient's token account is
created when it does not exist.

Examples:
  wallet-engine nft send <mint> --wallet <id> --to <owner>`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app) error {
			in, err := nftFlags.intent(ctx, a, types.OpNFTTransfer)
			if err != nil {
				return err
			}
			in.Asset = args[0]
			in.Amount = decimal.NewFromInt(1)
			return execute(cmd, a, in, nftFlags.yes, engine.ExecuteOptions{})
		})
	},
}

func init() {
	rootCmd.AddCommand(nftCmd)
	nftCmd.AddCommand(nftSendCmd)
	nftFlags.register(nftSendCmd, true)
}
