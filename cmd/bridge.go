package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"omnibridge/pkg/events"
	"omnibridge/pkg/monitor"
	"omnibridge/pkg/types"
)

var (
	bridgeFrom      string
	bridgeTo        string
	bridgeRecipient string
	bridgeNoConfirm bool
	bridgeNoMonitor bool
)

var bridgeCmd = &cobra.Command{
	Use:   "bridge <amount> <token>",
	Short: "Transfer tokens to another network",
	Long: `Transfer tokens from one network to another through the messaging
endpoint. The command quotes fees, approves the token if needed, submits the
transfer and then follows it across both networks until completion.

IMPORTANT:
  - You MUST specify --from and --to networks
  - The recipient defaults to your own address on the destination network

Examples:
  # Transfer with live monitoring
  omnibridge bridge 100 USDC --from arbitrum --to base --recipient 0x123...

  # Submit only, check later with the status command
  omnibridge bridge 100 USDC --from arbitrum --to base --no-monitor

  # Skip the confirmation prompt
  omnibridge bridge 100 USDC --from arbitrum --to base --yes`,
	Args: cobra.ExactArgs(2),
	Run:  runBridge,
}

func init() {
	rootCmd.AddCommand(bridgeCmd)

	bridgeCmd.Flags().StringVar(&bridgeFrom, "from", "", "Source network (REQUIRED)")
	bridgeCmd.Flags().StringVar(&bridgeTo, "to", "", "Destination network (REQUIRED)")
	bridgeCmd.Flags().StringVar(&bridgeRecipient, "recipient", "", "Recipient address (defaults to your own)")
	bridgeCmd.Flags().BoolVarP(&bridgeNoConfirm, "yes", "y", false, "Skip confirmation prompt")
	bridgeCmd.Flags().BoolVar(&bridgeNoMonitor, "no-monitor", false, "Submit without waiting for completion")
	bridgeCmd.MarkFlagRequired("from")
	bridgeCmd.MarkFlagRequired("to")
}

func runBridge(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx := context.Background()
	a, err := newApp(ctx, verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	recipient := bridgeRecipient
	if recipient == "" {
		recipient = a.sender
	}
	req := types.TransferRequest{
		SourceNetwork:      bridgeFrom,
		DestinationNetwork: bridgeTo,
		Token:              args[1],
		Amount:             args[0],
		SenderAddress:      a.sender,
		RecipientAddress:   recipient,
	}

	quote, err := a.fees.Quote(ctx, req)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if !jsonOutput {
		displayQuote(quote, req)
		if !bridgeNoConfirm && !confirmBridge() {
			fmt.Println("\nTransfer cancelled.")
			os.Exit(0)
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		attachProgressDisplay(a.dispatcher, s)
		s.Suffix = " Submitting transfer..."
		s.Start()
	}

	result, err := a.executor.Bridge(ctx, req)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		color.Green("\n✓ Transfer submitted and confirmed on %s", req.SourceNetwork)
		fmt.Printf("  Transaction Hash: %s\n", color.CyanString(result.TxHash))
	}

	if bridgeNoMonitor {
		finishBridge(result, nil, jsonOutput, req)
		return
	}

	if !jsonOutput {
		s.Suffix = " Waiting for cross-network delivery..."
		s.Start()
	}
	status, err := a.monitor.Monitor(ctx, monitor.Params{
		TxHash:             result.TxHash,
		SourceNetwork:      req.SourceNetwork,
		DestinationNetwork: req.DestinationNetwork,
		Token:              req.Token,
		SenderAddress:      req.SenderAddress,
		Amount:             req.Amount,
	})
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		if !jsonOutput {
			color.Red("\nTransfer did not complete: %v", err)
			fmt.Println("You can retry monitoring with:")
			color.Cyan("  omnibridge status %s --from %s --to %s --watch\n", result.TxHash, req.SourceNetwork, req.DestinationNetwork)
		}
		finishBridge(result, status, jsonOutput, req)
		os.Exit(1)
	}

	finishBridge(result, status, jsonOutput, req)
}

func finishBridge(result *types.Result, status *types.MonitorStatus, jsonOutput bool, req types.TransferRequest) {
	if jsonOutput {
		output := map[string]interface{}{
			"result": result,
		}
		if status != nil {
			output["status"] = status
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	if status != nil && status.Status == types.StatusCompleted {
		printSuccess(color.GreenString("✓ Transfer completed on %s", req.DestinationNetwork))
	} else {
		fmt.Println("\nYou can follow the transfer with:")
		color.Cyan("  omnibridge status %s --from %s --to %s --watch\n", result.TxHash, req.SourceNetwork, req.DestinationNetwork)
	}
}

// attachProgressDisplay mirrors executor events onto the spinner suffix so
// the long-running steps show what they are waiting for.
func attachProgressDisplay(d *events.Dispatcher, s *spinner.Spinner) {
	d.Subscribe(events.KindApprovalRequired, func(events.Event) {
		s.Suffix = " Waiting for token approval..."
	})
	d.Subscribe(events.KindApprovalConfirmed, func(events.Event) {
		s.Suffix = " Approval confirmed, submitting transfer..."
	})
	d.Subscribe(events.KindTransactionSent, func(events.Event) {
		s.Suffix = " Waiting for source confirmation..."
	})
	d.Subscribe(events.KindStatusUpdate, func(e events.Event) {
		if st, ok := e.Payload.(types.MonitorStatus); ok {
			s.Suffix = fmt.Sprintf(" %s (%d%%)...", st.Status, st.Progress)
		}
	})
}

func confirmBridge() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with transfer? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
