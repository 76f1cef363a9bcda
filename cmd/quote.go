package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"omnibridge/pkg/types"
)

var (
	quoteFrom      string
	quoteTo        string
	quoteRecipient string
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token>",
	Short: "Quote the fees for a cross-network transfer",
	Long: `Quote the full USD fee breakdown for a prospective transfer without
submitting anything on chain.

Examples:
  omnibridge quote 100 USDC --from arbitrum --to base
  omnibridge quote 0.5 WETH --from ethereum --to arbitrum --json`,
	Args: cobra.ExactArgs(2),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&quoteFrom, "from", "", "Source network (REQUIRED)")
	quoteCmd.Flags().StringVar(&quoteTo, "to", "", "Destination network (REQUIRED)")
	quoteCmd.Flags().StringVar(&quoteRecipient, "recipient", "", "Recipient address (defaults to your own)")
	quoteCmd.MarkFlagRequired("from")
	quoteCmd.MarkFlagRequired("to")
}

func runQuote(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx := context.Background()
	a, err := newApp(ctx, verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	recipient := quoteRecipient
	if recipient == "" {
		recipient = a.sender
	}
	req := types.TransferRequest{
		SourceNetwork:      quoteFrom,
		DestinationNetwork: quoteTo,
		Token:              args[1],
		Amount:             args[0],
		SenderAddress:      a.sender,
		RecipientAddress:   recipient,
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}

	quote, err := a.fees.Quote(ctx, req)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(quote, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayQuote(quote, req)
}

func displayQuote(quote *types.FeeQuote, req types.TransferRequest) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                    TRANSFER QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Route:             %s -> %s\n", req.SourceNetwork, req.DestinationNetwork)
	fmt.Printf("  Amount:            %s %s\n", req.Amount, color.YellowString(req.Token))
	fmt.Printf("  Protocol Fee:      $%s\n", quote.Breakdown.ProtocolFee.StringFixed(4))
	fmt.Printf("  Gas Fee:           $%s\n", quote.Breakdown.GasFee.StringFixed(4))
	fmt.Printf("  Bridge Fee:        $%s\n", quote.Breakdown.BridgeFee.StringFixed(4))
	fmt.Printf("  Total:             %s\n", color.CyanString("$"+quote.TotalFeeUSD.StringFixed(4)))
	fmt.Printf("  Estimated Time:    %d seconds\n", quote.EstimatedTimeSeconds)
	if quote.Fallback {
		fmt.Printf("\n  %s\n", color.YellowString("Note: live fee query unavailable, quote uses static estimates"))
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
